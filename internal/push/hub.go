// Package push relays submission updates to websocket clients.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"shodh/internal/model"
	"shodh/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HubConfig configures the websocket hub.
type HubConfig struct {
	SendBuffer     int           `yaml:"sendBuffer"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	PingInterval   time.Duration `yaml:"pingInterval"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

func (c *HubConfig) applyDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

// Broadcaster fans a payload out to connected clients.
type Broadcaster interface {
	Broadcast(payload []byte) int
}

// Hub keeps the connected push clients. Every update goes to every client;
// clients filter by submission id.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Handle upgrades the request and registers the client.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}
	logger.Debug(c.Request.Context(), "push client connected", zap.String("client_id", cl.id))

	go h.writeLoop(cl)
	go h.readLoop(cl)
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	h.wg.Add(2)
	return true
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	cl.shutdown()
}

// readLoop drains client frames so control messages are processed.
func (h *Hub) readLoop(cl *client) {
	defer h.wg.Done()
	defer h.unregister(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	defer func() { _ = cl.conn.Close() }()

	for {
		select {
		case <-cl.done:
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		case payload := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.unregister(cl)
				return
			}
		case <-ticker.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				h.unregister(cl)
				return
			}
		}
	}
}

// Broadcast queues payload for every client and returns how many accepted it.
// Clients whose send buffer is full are disconnected.
func (h *Hub) Broadcast(payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for cl := range h.clients {
		select {
		case cl.send <- payload:
			delivered++
		default:
			delete(h.clients, cl)
			cl.shutdown()
			logger.Warn(context.Background(), "dropping slow push client", zap.String("client_id", cl.id))
		}
	}
	return delivered
}

// BroadcastSubmission encodes sub and broadcasts it.
func (h *Hub) BroadcastSubmission(sub model.Submission) (int, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return 0, err
	}
	return h.Broadcast(payload), nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their loops to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for cl := range clients {
		cl.shutdown()
	}
	h.wg.Wait()
}
