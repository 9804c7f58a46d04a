// Package realtime pushes refreshed price snapshots over WebSocket.
//
// Dashboards that would otherwise poll GET /prices subscribe once at /ws
// and receive every new snapshot as it lands. The stream carries the same
// public payload as the unmetered endpoint; scoped data stays behind the
// metered routes.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/bazaar/internal/metrics"
)

const (
	maxSubscribers = 10000
	pingEvery      = 30 * time.Second
	writeDeadline  = 10 * time.Second
	readDeadline   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser client
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// frame is one message on the stream.
type frame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
}

// Hub fans snapshot updates out to every connected subscriber. Fan-out is
// synchronous under the subscriber lock; a subscriber whose buffer is full
// is dropped rather than allowed to stall the rest.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool

	// last replays the most recent snapshot to subscribers that connect
	// between refreshes.
	last atomic.Pointer[[]byte]
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every subscriber and stops
// accepting upgrades.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("realtime hub started")
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	for s := range h.subs {
		close(s.out)
		delete(h.subs, s)
	}
	h.mu.Unlock()

	metrics.ActiveWebSocketClients.Set(0)
	h.log.Info("realtime hub stopped")
}

// BroadcastSnapshot sends a refreshed snapshot payload to every
// subscriber and remembers it for late joiners.
func (h *Hub) BroadcastSnapshot(data any) {
	payload, err := json.Marshal(frame{
		Type:      "snapshot",
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.log.Error("snapshot frame marshal failed", "error", err)
		return
	}
	h.last.Store(&payload)

	h.mu.Lock()
	for s := range h.subs {
		select {
		case s.out <- payload:
		default:
			// Buffer full; the write loop is stuck or gone
			close(s.out)
			delete(h.subs, s)
		}
	}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(float64(n))
}

// HandleWebSocket upgrades the request and attaches a subscriber.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if len(h.subs) >= maxSubscribers {
		h.mu.Unlock()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, out: make(chan []byte, 256)}
	if last := h.last.Load(); last != nil {
		s.out <- *last
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.log.Debug("ws subscriber connected", "total", n)

	go h.writeLoop(s)
	go h.readLoop(s)
}

func (h *Hub) detach(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		close(s.out)
		delete(h.subs, s)
	}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.log.Debug("ws subscriber disconnected", "total", n)
}

// writeLoop drains the outbound buffer and keeps the connection alive
// with pings. A closed out channel means the hub dropped the subscriber.
func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound messages; the stream is one-way but reads
// drive pong handling and disconnect detection.
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.detach(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(4 * 1024)
	_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
