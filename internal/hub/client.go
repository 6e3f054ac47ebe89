package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fedi-cli/fedi/internal/common/logger"
)

// subscriptionMessage is sent by a client to scope itself to one or more
// session ids; an unscoped client (never having sent one) receives every
// session's events.
type subscriptionMessage struct {
	Action     string   `json:"action"` // "subscribe", "unsubscribe"
	SessionIDs []string `json:"sessionIds"`
}

// Client is one WebSocket observer connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	mu         sync.RWMutex
	sessionIDs map[string]bool
}

func (c *Client) wants(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.sessionIDs) == 0 {
		return true
	}
	return c.sessionIDs[sessionID]
}

func (c *Client) subscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionIDs[id] = true
}

func (c *Client) unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessionIDs, id)
}

// Send queues msg for delivery, dropping it rather than blocking if the
// client's buffer is already full.
func (c *Client) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var sub subscriptionMessage
		if err := json.Unmarshal(message, &sub); err != nil {
			c.log.Warn("invalid subscription message", zap.Error(err))
			continue
		}
		switch sub.Action {
		case "subscribe":
			for _, id := range sub.SessionIDs {
				c.subscribe(id)
			}
		case "unsubscribe":
			for _, id := range sub.SessionIDs {
				c.unsubscribe(id)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
