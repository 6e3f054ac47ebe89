// Package hub mirrors the in-process renderer callbacks (§6's "bind()")
// over WebSocket to any number of connected observers — a detached
// terminal UI, a browser dashboard. Grounded on
// internal/orchestrator/streaming/client.go's per-connection
// ReadPump/WritePump pair with ping/pong keepalive and a non-blocking
// buffered Send that drops rather than blocks a slow consumer. The hub
// only observes orchestration; it never drives it, so a slow or
// disconnected client cannot stall a turn.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fedi-cli/fedi/internal/common/logger"
	"github.com/fedi-cli/fedi/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 64
)

// RenderEvent is the JSON frame every client receives: an agent's output
// line, a status transition, or a relayed bus message, scoped to the
// session that produced it.
type RenderEvent struct {
	SessionID string         `json:"sessionId"`
	Type      string         `json:"type"` // "output", "status", "message"
	Agent     model.AgentId  `json:"agent,omitempty"`
	Text      string         `json:"text,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Status    string         `json:"status,omitempty"`
	From      model.AgentId  `json:"from,omitempty"`
	To        model.AgentId  `json:"to,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans RenderEvents out to every registered Client, filtered by each
// client's subscribed session ids (a client subscribed to none receives
// everything).
type Hub struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

// New returns an empty Hub.
func New(log *logger.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*Client]bool)}
}

// ServeWS upgrades r to a WebSocket connection and registers a Client for
// it, starting its read/write pumps in their own goroutines.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		sessionIDs: make(map[string]bool),
		log:        h.log,
	}

	h.register(c)
	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast re-emits ev to every client subscribed to ev.SessionID (or to
// every client that has not scoped itself to a particular session).
func (h *Hub) Broadcast(ev RenderEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.SessionID) {
			continue
		}
		if !c.Send(raw) {
			h.log.Warn("dropping render event for a slow websocket client")
		}
	}
}

// ClientCount returns the number of currently registered clients, for
// diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
