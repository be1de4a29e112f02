package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shodh/internal/backend"
	"shodh/internal/cli/watch"
	"shodh/internal/common/cache"
	"shodh/internal/model"
	"shodh/internal/push"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

type judgeBackend struct {
	mu    sync.Mutex
	polls int
}

func (b *judgeBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/submissions":
			_, _ = w.Write([]byte(`{"id":42,"status":"PENDING","problemId":1,"contestId":1,"userId":7,"language":"PYTHON"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/submissions/42":
			b.mu.Lock()
			b.polls++
			n := b.polls
			b.mu.Unlock()
			if n == 1 {
				_, _ = w.Write([]byte(`{"id":42,"status":"JUDGING","revision":1}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":42,"status":"ACCEPTED","verdict":"ACCEPTED","executionTime":42,"memoryUsed":16,"output":"3","revision":2}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/code-mentor/review/42":
			_, _ = w.Write([]byte(`{"id":1,"submissionId":42,"feedback":"Clean solution","qualityScore":8}`))
		case r.URL.Path == "/api/problems/contest/1/leaderboard":
			_, _ = w.Write([]byte(`[{"userId":2,"username":"bob","totalScore":50,"problemsSolved":1},{"userId":1,"username":"alice","totalScore":90,"problemsSolved":3}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	})
}

func newTestServer(t *testing.T, backendURL string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &AppConfig{}
	cfg.Backend.BaseURL = backendURL
	if err := normalize(cfg); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	hub := push.NewHub(cfg.Push.Hub)
	t.Cleanup(hub.Close)
	source := buildSource(cfg.Push.Source, hub, nil, nil)
	svc, err := buildServices(context.Background(), cfg, hub, source, nil, nil)
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	srv := httptest.NewServer(buildRouter(cfg, svc))
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes(t *testing.T) {
	judge := httptest.NewServer((&judgeBackend{}).handler())
	defer judge.Close()
	srv := newTestServer(t, judge.URL)

	cases := []struct {
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK, `"status":"ok"`},
		{http.MethodGet, "/api/contests", "", http.StatusOK, `"id":1`},
		{http.MethodGet, "/api/nowhere", "", http.StatusNotFound, `"message":"Route not found"`},
		{http.MethodGet, "/api/contest/2/problems", "", http.StatusOK, `"id":4`},
		{http.MethodGet, "/api/contest/99", "", http.StatusNotFound, `"trace_id"`},
		{http.MethodPost, "/api/contest/1/join", `{"userId":7}`, http.StatusOK, `"hasJoined":true`},
		{http.MethodPost, "/api/contest/1/check-joined", `{"userId":7}`, http.StatusOK, `"hasJoined":true`},
		{http.MethodGet, "/api/contest/1/leaderboard", "", http.StatusOK, `"username":"bob","totalScore":50,"problemsSolved":1,"rank":1`},
		{http.MethodGet, "/api/problem/1/test-cases", "", http.StatusNotFound, `{"message":"not found"}`},
		{http.MethodPost, "/api/submission/submit", `{"userId":7,"problemId":1,"contestId":1,"code":"print(3)","language":"PYTHON"}`, http.StatusOK, `"status":"PENDING"`},
		{http.MethodGet, "/api/submission/42", "", http.StatusOK, `"id":42`},
		{http.MethodPost, "/api/submissions/42/review", "", http.StatusOK, `"feedback":"Clean solution"`},
		{http.MethodPost, "/api/submissions/43/review", "", http.StatusNotFound, `{"message":"not found"}`},
		{http.MethodGet, "/api/submissions?userId=7", "", http.StatusOK, `"userId":7`},
	}
	for _, tc := range cases {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("build request failed: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("%s %s failed: %v", tc.method, tc.path, err)
		}
		var body json.RawMessage
		_ = json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()
		if resp.StatusCode != tc.status || !strings.Contains(string(body), tc.want) {
			t.Fatalf("%s %s: got %d %s", tc.method, tc.path, resp.StatusCode, body)
		}
		if resp.Header.Get("X-Trace-Id") == "" {
			t.Fatalf("%s %s: missing trace id header", tc.method, tc.path)
		}
	}
}

func TestSubmitAndWatchEndToEnd(t *testing.T) {
	judge := &judgeBackend{}
	judgeSrv := httptest.NewServer(judge.handler())
	defer judgeSrv.Close()
	srv := newTestServer(t, judgeSrv.URL)

	resp, err := srv.Client().Post(srv.URL+"/api/submissions", "application/json",
		strings.NewReader(`{"userId":7,"problemId":1,"contestId":1,"code":"print(3)","language":"PYTHON"}`))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	var initial model.Submission
	err = json.NewDecoder(resp.Body).Decode(&initial)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if initial.ID != "42" || initial.Status != model.StatusPending || initial.Verdict != nil {
		t.Fatalf("unexpected initial record %+v", initial)
	}

	fetcher, err := backend.NewWithHTTPClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("client failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := watch.Run(ctx, watch.Options{
		Fetcher:  fetcher,
		Interval: 20 * time.Millisecond,
		PushURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws-submissions",
	}, initial)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if final.Status != model.StatusAccepted || final.ExecutionTime == nil || *final.ExecutionTime != 42 {
		t.Fatalf("unexpected final record %+v", final)
	}
	if final.Output == nil || *final.Output != "3" || final.Revision != 2 {
		t.Fatalf("final record must equal the last response, got %+v", final)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	judge := httptest.NewServer((&judgeBackend{}).handler())
	defer judge.Close()
	mr := miniredis.RunT(t)

	cfg := &AppConfig{}
	cfg.Backend.BaseURL = judge.URL
	cfg.Trace.TrustUserIDHeader = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Submission.RateLimit.Enabled = true
	cfg.Submission.RateLimit.UserMax = 1
	if err := normalize(cfg); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		t.Fatalf("redis failed: %v", err)
	}
	defer func() { _ = redisCache.Close() }()

	hub := push.NewHub(cfg.Push.Hub)
	defer hub.Close()
	svc, err := buildServices(context.Background(), cfg, hub, buildSource(cfg.Push.Source, hub, redisCache, nil), redisCache, nil)
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	router := buildRouter(cfg, svc)

	body := `{"userId":7,"problemId":1,"contestId":1,"code":"print(3)"}`
	submit := func(path string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-Id", "7")
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	if got := submit("/api/submissions"); got != http.StatusOK {
		t.Fatalf("first submit: expected 200, got %d", got)
	}
	if got := submit("/api/submission/submit"); got != http.StatusTooManyRequests {
		t.Fatalf("second submit: expected 429, got %d", got)
	}
}
