// Package websocket streams scheduler notifications to WebSocket clients.
//
// Clients open a WebSocket connection to:
//
//	GET /ws
//
// and receive one JSON frame per warning fired and per event executed:
//
//	{"type":"warning","event":{...},"at":<unix ms>}
//	{"type":"executed","event":{...},"at":<unix ms>}
//
// The Hub fans frames out to every connected client. A client that cannot
// keep up (send buffer full) is disconnected rather than allowed to stall
// the tick loop.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	gorillaws "github.com/gorilla/websocket"

	"github.com/hickagpt/agenda/internal/event"
)

// Frame types pushed to clients.
const (
	FrameWarning  = "warning"
	FrameExecuted = "executed"
)

// Frame is the JSON structure the server sends to clients.
type Frame struct {
	Type  string       `json:"type"` // "warning" | "executed"
	Event event.Record `json:"event"`
	At    int64        `json:"at"` // tick instant, UTC milliseconds
}

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin WebSocket upgrade requests.
	// A request is considered same-origin when its Origin header matches the
	// Host header (scheme-agnostic). Requests without an Origin header
	// (e.g. from native clients/curl) are always allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client, allow
		}
		parsed, err := parseHost(origin)
		if err != nil {
			return false
		}
		return parsed == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// parseHost returns the host:port (or just host) portion of a URL string.
func parseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", rawURL)
	}
	return u.Host, nil
}

// sendBuffer is the per-client frame buffer. A burst larger than this while
// the client's link is saturated drops the client.
const sendBuffer = 64

// Hub tracks connected clients and broadcasts frames to all of them.
// All methods are safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Frame]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan Frame]struct{})}
}

// Broadcast queues f for every connected client. Non-blocking: a client with
// a full buffer is detached and its channel closed.
func (h *Hub) Broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- f:
		default:
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// ClientCount returns the number of currently attached clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// attach registers a new client channel.
func (h *Hub) attach() chan Frame {
	ch := make(chan Frame, sendBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// detach removes a client channel if it is still registered.
func (h *Hub) detach(ch chan Frame) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Handler serves the WebSocket feed endpoint.
type Handler struct {
	Hub *Hub
}

// ServeHTTP upgrades the connection and streams frames until the client
// disconnects or falls behind.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := h.Hub.attach()
	defer h.Hub.detach(ch)

	// Drain client frames so control messages (close, ping) are processed;
	// the feed itself is one-way.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readClosed:
			return
		case f, ok := <-ch:
			if !ok {
				return // dropped by the hub for falling behind
			}
			data, _ := json.Marshal(f)
			if err := conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
				return
			}
		}
	}
}
