// Package relay bridges an agent driver's stdout stream to the message
// bus: it watches accumulated output for directive lines, relays what it
// finds, flushes whatever is left as plain output on a debounce timer, and
// falls back to a safety-net relay when a worker-triggered turn ends
// without ever emitting a directive. Grounded on this codebase's
// streaming.Client ping/debounce timer usage, generalized from a
// WebSocket keepalive ticker to draft-flush and safety-net debounce
// timers serving the same "don't lose buffered output" concern.
package relay

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedi-cli/fedi/internal/bus"
	"github.com/fedi-cli/fedi/internal/directive"
	"github.com/fedi-cli/fedi/internal/model"
)

const (
	DefaultDraftFlush         = 150 * time.Millisecond
	DefaultSafetyNetDebounce  = 500 * time.Millisecond
	DefaultMaxRelaysPerWindow = 50
	DefaultRelayWindow        = 60 * time.Second
)

// Config parameterizes a Controller; zero values fall back to the
// documented defaults.
type Config struct {
	DraftFlush         time.Duration
	SafetyNetDebounce  time.Duration
	MaxRelaysPerWindow int
	RelayWindow        time.Duration
}

func (c Config) withDefaults() Config {
	if c.DraftFlush == 0 {
		c.DraftFlush = DefaultDraftFlush
	}
	if c.SafetyNetDebounce == 0 {
		c.SafetyNetDebounce = DefaultSafetyNetDebounce
	}
	if c.MaxRelaysPerWindow == 0 {
		c.MaxRelaysPerWindow = DefaultMaxRelaysPerWindow
	}
	if c.RelayWindow == 0 {
		c.RelayWindow = DefaultRelayWindow
	}
	return c
}

// FlushHandler receives the plain (non-directive) text a draft buffer
// accumulated once its debounce timer fires.
type FlushHandler func(agent model.AgentId, text string)

// draft tracks one agent's in-flight turn: unflushed text, pending
// directive/safety-net timers, and who triggered the current turn.
type draft struct {
	pending       string
	plain         []string
	flushTimer    *time.Timer
	safetyTimer   *time.Timer
	gen           int
	sawDirective  bool
	triggeredBy   model.AgentId
	correlationID string

	// awaitingTarget is set when a [TO:x] directive arrived with empty
	// content; subsequent non-blank lines are collected into awaitingLines
	// as its content until a blank line or another directive finalizes it.
	awaitingTarget *model.AgentId
	awaitingLines  []string
}

// Controller implements directive capture, draft flush, safety-net relay,
// and rate limiting described in this codebase's relay contract.
type Controller struct {
	mu         sync.Mutex
	bus        *bus.Bus
	cfg        Config
	drafts     map[model.AgentId]*draft
	relayTimes []time.Time
	onFlush    FlushHandler
	now        func() time.Time
}

// New returns a Controller wired to b.
func New(b *bus.Bus, cfg Config) *Controller {
	return &Controller{
		bus:    b,
		cfg:    cfg.withDefaults(),
		drafts: make(map[model.AgentId]*draft),
		now:    time.Now,
	}
}

// SetFlushHandler registers the callback invoked when a draft's debounce
// timer flushes its remaining plain text.
func (c *Controller) SetFlushHandler(h FlushHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFlush = h
}

func (c *Controller) draftFor(agent model.AgentId) *draft {
	d, ok := c.drafts[agent]
	if !ok {
		d = &draft{}
		c.drafts[agent] = d
	}
	return d
}

// NotifyTurnStart records which agent (if any) triggered agent's new turn,
// so a turn that ends without a directive can be attributed for the
// safety net, and the correlationID of the message that triggered it, so
// any relay emitted during this turn continues the same chain instead of
// starting a fresh one. triggeredBy and correlationID are both "" for a
// user-initiated turn.
func (c *Controller) NotifyTurnStart(agent, triggeredBy model.AgentId, correlationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draftFor(agent)
	d.pending = ""
	d.plain = nil
	d.awaitingTarget = nil
	d.awaitingLines = nil
	d.sawDirective = false
	d.triggeredBy = triggeredBy
	d.correlationID = correlationID
	d.gen++
	c.cancelTimersLocked(d)
}

// Append feeds a chunk of an agent's stdout into its draft buffer,
// extracting and relaying any complete directive lines, and (re)arming
// the draft-flush debounce timer for whatever plain text remains.
func (c *Controller) Append(agent model.AgentId, text string) {
	c.mu.Lock()
	d := c.draftFor(agent)
	d.pending += text

	for {
		idx := strings.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		d.pending = d.pending[idx+1:]
		c.processLineLocked(agent, d, line)
	}

	c.armFlushLocked(agent, d)
	c.mu.Unlock()
}

// processLineLocked inspects one complete line for directives. Relay
// directives are dispatched immediately, except one whose own content is
// empty, which instead waits to absorb the next non-empty line(s) of the
// draft (up to a blank line or another directive) as its content.
// Everything else accumulates as plain draft text destined for the flush
// handler or the safety net.
func (c *Controller) processLineLocked(agent model.AgentId, d *draft, line string) {
	res := directive.Parse(line)

	if d.awaitingTarget != nil {
		if len(res.Tokens) == 0 && strings.TrimSpace(line) == "" {
			c.finalizeAwaitingLocked(agent, d)
			return
		}
		if len(res.Tokens) > 0 {
			c.finalizeAwaitingLocked(agent, d)
		} else {
			d.awaitingLines = append(d.awaitingLines, line)
			return
		}
	}

	if len(res.Tokens) == 0 {
		if strings.TrimSpace(line) != "" {
			d.plain = append(d.plain, line)
		}
		return
	}

	for _, tok := range res.Tokens {
		if tok.Kind != model.DirectiveRelay {
			continue
		}
		if tok.Content == "" {
			target := tok.Target
			d.awaitingTarget = &target
			d.awaitingLines = nil
			continue
		}
		d.sawDirective = true
		d.gen++
		c.cancelSafetyLocked(d)
		c.relayLocked(agent, tok.Target, tok.Content)
	}
}

// finalizeAwaitingLocked relays the content collected for a prior
// empty-content directive, or drops it if nothing non-empty followed.
func (c *Controller) finalizeAwaitingLocked(agent model.AgentId, d *draft) {
	target := *d.awaitingTarget
	content := strings.TrimSpace(strings.Join(d.awaitingLines, "\n"))
	d.awaitingTarget = nil
	d.awaitingLines = nil
	if content == "" {
		return
	}
	d.sawDirective = true
	d.gen++
	c.cancelSafetyLocked(d)
	c.relayLocked(agent, target, content)
}

func (c *Controller) armFlushLocked(agent model.AgentId, d *draft) {
	if d.flushTimer != nil {
		d.flushTimer.Stop()
	}
	d.flushTimer = time.AfterFunc(c.cfg.DraftFlush, func() {
		c.flush(agent)
	})
}

func (c *Controller) flush(agent model.AgentId) {
	c.mu.Lock()
	d, ok := c.drafts[agent]
	if !ok || len(d.plain) == 0 {
		c.mu.Unlock()
		return
	}
	text := strings.Join(d.plain, "\n")
	d.plain = nil
	handler := c.onFlush
	c.mu.Unlock()

	if handler != nil {
		handler(agent, text)
	}
}

// NotifyTurnEnd is called once the driver reports an agent's turn has
// finished (status transitions to waiting). It flushes any remaining
// draft text immediately and, if this was a lead turn triggered by a
// worker's message that never emitted a directive, arms the safety-net
// timer.
func (c *Controller) NotifyTurnEnd(agent model.AgentId) {
	c.mu.Lock()
	d := c.draftFor(agent)
	if d.awaitingTarget != nil {
		c.finalizeAwaitingLocked(agent, d)
	}
	remaining := strings.Join(append(d.plain, strings.TrimSpace(d.pending)), "\n")
	remaining = strings.TrimSpace(remaining)
	d.plain = nil
	d.pending = ""
	if d.flushTimer != nil {
		d.flushTimer.Stop()
	}

	handler := c.onFlush
	needsSafetyNet := agent == "lead" && !d.sawDirective && d.triggeredBy != "" && remaining != ""
	gen := 0
	originalSender := d.triggeredBy
	if needsSafetyNet {
		d.gen++
		gen = d.gen
	}
	c.mu.Unlock()

	if handler != nil && remaining != "" {
		handler(agent, remaining)
	}
	if needsSafetyNet {
		c.armSafetyNet(agent, originalSender, remaining, gen)
	}
}

func (c *Controller) armSafetyNet(agent, originalSender model.AgentId, text string, gen int) {
	c.mu.Lock()
	d := c.draftFor(agent)
	if d.safetyTimer != nil {
		d.safetyTimer.Stop()
	}
	d.safetyTimer = time.AfterFunc(c.cfg.SafetyNetDebounce, func() {
		c.fireSafetyNet(agent, originalSender, text, gen)
	})
	c.mu.Unlock()
}

func (c *Controller) fireSafetyNet(agent, originalSender model.AgentId, text string, gen int) {
	c.mu.Lock()
	d, ok := c.drafts[agent]
	if !ok || d.gen != gen {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.relay(agent, originalSender, text)
}

func (c *Controller) cancelTimersLocked(d *draft) {
	c.cancelSafetyLocked(d)
	if d.flushTimer != nil {
		d.flushTimer.Stop()
		d.flushTimer = nil
	}
}

func (c *Controller) cancelSafetyLocked(d *draft) {
	if d.safetyTimer != nil {
		d.safetyTimer.Stop()
		d.safetyTimer = nil
	}
}

// relayLocked is relay() for callers that already hold c.mu: it releases
// the lock for the actual bus call (which may itself invoke subscriber
// callbacks), then reacquires it so the caller can keep mutating the
// draft under lock.
func (c *Controller) relayLocked(from, to model.AgentId, content string) {
	c.mu.Unlock()
	c.relay(from, to, content)
	c.mu.Lock()
}

// relay applies the rate limiter before handing off to the bus. It
// continues the correlation chain of the message that triggered from's
// current turn, if any, so MaxRelayDepth can actually be reached across a
// genuine lead<->worker exchange; only an original, user-triggered relay
// (no incoming correlationID) mints a fresh chain.
func (c *Controller) relay(from, to model.AgentId, content string) bool {
	c.mu.Lock()
	d := c.draftFor(from)
	correlationID := d.correlationID

	now := c.now()
	cutoff := now.Add(-c.cfg.RelayWindow)
	kept := c.relayTimes[:0]
	for _, t := range c.relayTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.relayTimes = kept

	if len(c.relayTimes) >= c.cfg.MaxRelaysPerWindow {
		c.mu.Unlock()
		c.bus.RelayBlockedRateLimited(from, to)
		return false
	}
	c.relayTimes = append(c.relayTimes, now)

	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	d.correlationID = correlationID
	c.mu.Unlock()

	return c.bus.Relay(from, to, content, correlationID)
}
