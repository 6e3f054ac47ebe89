// Package eventmirror publishes bus traffic to NATS for external
// observability tooling. It is strictly an optional side channel: the
// bus (internal/bus) remains the single in-process source of truth and
// keeps its synchronous delivery semantics; nothing published here is
// ever read back into the bus. Grounded on
// apps/backend/internal/events/bus/nats.go's connection-options and
// publish-with-logging idiom, narrowed from a full pub/sub/request-reply
// EventBus implementation to a one-directional, fire-and-forget mirror —
// this system has no subscriber-side use for NATS, only an external
// observability one.
package eventmirror

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fedi-cli/fedi/internal/bus"
	"github.com/fedi-cli/fedi/internal/common/config"
	"github.com/fedi-cli/fedi/internal/common/logger"
)

// Mirror publishes bus events to NATS subjects scoped per session.
type Mirror struct {
	conn *nats.Conn
	log  *logger.Logger
}

// New connects to cfg.URL and returns a Mirror. If cfg.URL is empty the
// mirror is disabled entirely: New returns (nil, nil) and callers should
// treat a nil *Mirror as "do nothing".
func New(cfg config.NATSConfig, log *logger.Logger) (*Mirror, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("fedi-orchestrator"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats mirror disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats mirror reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats mirror: %w", err)
	}

	log.Info("nats mirror connected", zap.String("url", cfg.URL))
	return &Mirror{conn: conn, log: log}, nil
}

// mirroredEvent is the wire shape published to NATS; it flattens
// bus.Event into something a standalone observability tool can decode
// without importing this module.
type mirroredEvent struct {
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	RelayCount int      `json:"relayCount"`
	Timestamp time.Time `json:"timestamp"`
}

// Publish mirrors ev to "fedi.relay.<sessionID>", fire-and-forget. A nil
// Mirror (the disabled case) makes this a no-op, so callers never need to
// nil-check before calling it.
func (m *Mirror) Publish(sessionID string, ev bus.Event) {
	if m == nil {
		return
	}

	payload := mirroredEvent{
		Kind:       string(ev.Kind),
		Reason:     ev.Reason,
		From:       string(ev.Message.From),
		To:         string(ev.Message.To),
		Content:    ev.Message.Content,
		RelayCount: ev.Message.RelayCount,
		Timestamp:  ev.Message.Timestamp,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	subject := "fedi.relay." + sessionID
	if err := m.conn.Publish(subject, raw); err != nil {
		m.log.Warn("failed to publish mirrored event", zap.String("subject", subject), zap.Error(err))
	}
}

// Close drains and closes the NATS connection. A nil Mirror makes this a
// no-op.
func (m *Mirror) Close() {
	if m == nil || m.conn == nil {
		return
	}
	if err := m.conn.Drain(); err != nil {
		m.conn.Close()
	}
}
