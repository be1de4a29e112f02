package push_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shodh/internal/common/cache"
	"shodh/internal/common/mq"
	"shodh/internal/model"
	"shodh/internal/push"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T, cfg push.HubConfig) (*push.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := push.NewHub(cfg)
	router := gin.New()
	router.GET("/ws-submissions", hub.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws-submissions"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *push.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, hub.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readSubmission(t *testing.T, conn *websocket.Conn) model.Submission {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	sub, err := model.DecodeSubmission(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return sub
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, url := startHub(t, push.HubConfig{})
	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, hub, 2)

	n, err := hub.BroadcastSubmission(model.Submission{ID: "9", Status: model.StatusJudging})
	if err != nil || n != 2 {
		t.Fatalf("expected delivery to 2 clients, got %d (%v)", n, err)
	}
	for _, conn := range []*websocket.Conn{a, b} {
		if sub := readSubmission(t, conn); sub.ID != "9" || sub.Status != model.StatusJudging {
			t.Fatalf("unexpected submission %+v", sub)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub, url := startHub(t, push.HubConfig{SendBuffer: 1, WriteTimeout: 50 * time.Millisecond})
	_ = dial(t, url)
	waitClients(t, hub, 1)

	big := []byte(`{"id":1,"status":"JUDGING","code":"` + strings.Repeat("x", 1<<16) + `"}`)
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slow client was not dropped")
		}
		hub.Broadcast(big)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub, url := startHub(t, push.HubConfig{})
	conn := dial(t, url)
	waitClients(t, hub, 1)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients after close")
	}
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	_, url := startHub(t, push.HubConfig{AllowedOrigins: []string{"http://localhost:3000"}})
	header := http.Header{"Origin": []string{"http://evil.test"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected handshake to fail for unknown origin")
	}
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
	got      chan struct{}
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{got: make(chan struct{}, 16)}
}

func (b *recordingBroadcaster) Broadcast(payload []byte) int {
	b.mu.Lock()
	b.payloads = append(b.payloads, payload)
	b.mu.Unlock()
	b.got <- struct{}{}
	return 1
}

func (b *recordingBroadcaster) wait(t *testing.T) model.Submission {
	t.Helper()
	select {
	case <-b.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("nothing broadcast")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, err := model.DecodeSubmission(b.payloads[len(b.payloads)-1])
	if err != nil {
		t.Fatalf("broadcast payload is invalid: %v", err)
	}
	return sub
}

func TestRelaySource(t *testing.T) {
	out := newRecordingBroadcaster()
	src := push.NewRelaySource(out)
	if err := src.Publish(context.Background(), model.Submission{ID: "3", Status: model.StatusPending}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if sub := out.wait(t); sub.ID != "3" {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestRedisSourceRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithConfig(&cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis cache failed: %v", err)
	}
	defer rc.Close()

	src := push.NewRedisSource(rc, "")
	out := newRecordingBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(mr.PubSubChannels("*")) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not established")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mr.Publish(push.DefaultRedisChannel, "not json")
	if err := src.Publish(ctx, model.Submission{ID: "11", Status: model.StatusAccepted, Verdict: model.StringPtr("ACCEPTED")}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if sub := out.wait(t); sub.ID != "11" || sub.Status != model.StatusAccepted {
		t.Fatalf("unexpected submission %+v", sub)
	}
	out.mu.Lock()
	count := len(out.payloads)
	out.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected malformed update to be dropped, got %d payloads", count)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
}

type fakeQueue struct {
	mu        sync.Mutex
	published []*mq.Message
	topic     string
	handlers  map[string]mq.HandlerFunc
}

func (q *fakeQueue) Publish(_ context.Context, topic string, m *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.topic = topic
	q.published = append(q.published, m)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, topic string, h mq.HandlerFunc, _ *mq.SubscribeOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]mq.HandlerFunc)
	}
	q.handlers[topic] = h
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) handler(t *testing.T, topic string) mq.HandlerFunc {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		q.mu.Lock()
		h := q.handlers[topic]
		q.mu.Unlock()
		if h != nil {
			return h
		}
		if time.Now().After(deadline) {
			t.Fatalf("source did not subscribe to %s", topic)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKafkaSource(t *testing.T) {
	q := &fakeQueue{}
	src := push.NewKafkaSource(q, q, "", "", "web-1")

	if err := src.Publish(context.Background(), model.Submission{ID: "21", Status: model.StatusJudging}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if q.topic != push.DefaultRelayTopic || len(q.published) != 1 || q.published[0].ID != "21" {
		t.Fatalf("unexpected publish: topic=%q msgs=%d", q.topic, len(q.published))
	}
	var decoded model.Submission
	if err := json.Unmarshal(q.published[0].Body, &decoded); err != nil || decoded.ID != "21" {
		t.Fatalf("unexpected body %s", q.published[0].Body)
	}

	out := newRecordingBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx, out) }()

	status := q.handler(t, push.DefaultKafkaTopic)
	_ = status(ctx, mq.NewMessage("x", []byte("{bad")))
	_ = status(ctx, mq.NewMessage("21", []byte(`{"id":21,"status":"ACCEPTED"}`)))
	if sub := out.wait(t); sub.ID != "21" || sub.Status != model.StatusAccepted {
		t.Fatalf("unexpected submission %+v", sub)
	}

	relay := q.handler(t, push.DefaultRelayTopic)
	_ = relay(ctx, mq.NewMessage("22", []byte(`{"id":22,"status":"PENDING"}`)))
	if sub := out.wait(t); sub.ID != "22" || sub.Status != model.StatusPending {
		t.Fatalf("unexpected relayed submission %+v", sub)
	}
}

func TestSourceConfigNormalize(t *testing.T) {
	cfg := push.SourceConfig{}
	if err := cfg.Normalize(); err != nil || cfg.Type != push.SourceRelay || cfg.RedisChannel != push.DefaultRedisChannel {
		t.Fatalf("unexpected defaults %+v (%v)", cfg, err)
	}
	if cfg.RelayTopic != push.DefaultRelayTopic {
		t.Fatalf("unexpected relay topic %q", cfg.RelayTopic)
	}
	bad := push.SourceConfig{Type: "nats"}
	if err := bad.Normalize(); err == nil {
		t.Fatalf("expected unknown source error")
	}
	shared := push.SourceConfig{Type: push.SourceKafka, KafkaTopic: "events", RelayTopic: "events"}
	if err := shared.Normalize(); err == nil {
		t.Fatalf("expected shared topic error")
	}
}
