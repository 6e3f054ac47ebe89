// Package bus implements the message bus: routing, correlation tracking,
// bounded history, and fan-out to subscribers. Grounded on this codebase's
// event-bus lineage (events/bus), but deliberately adapted away from that
// package's async goroutine-per-subscriber dispatch: this bus delivers
// synchronously, in subscriber registration order, with concurrent Send
// calls serialized so history indices are strictly increasing, matching
// the ordering guarantees the orchestrator depends on.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedi-cli/fedi/internal/model"
)

const (
	// MaxRelayDepth bounds how many hops a single correlation chain may take.
	MaxRelayDepth = 5

	maxHistory            = 500
	maxCorrelationEntries = 200
	correlationTTL        = 10 * time.Minute
)

// EventKind identifies which of the bus's event types a Handler receives.
type EventKind string

const (
	EventMessage      EventKind = "message"
	EventRelay        EventKind = "relay"
	EventRelayBlocked EventKind = "relay-blocked"
)

// Event is what subscribers receive. Reason is only set for
// EventRelayBlocked ("depth", "rate-limited", or "backpressure").
type Event struct {
	Kind    EventKind
	Message model.Message
	Reason  string
}

// Handler is a subscriber callback. Handlers run synchronously on the
// goroutine that called Send/Record/Relay and must not block.
type Handler func(Event)

type correlationEntry struct {
	count      int
	lastSeenAt time.Time
}

// Bus is the message bus. All mutation of history and correlation state
// goes through its own Send/Record/Relay methods (single writer); a mutex
// guards that state per §5's "implementation that uses real threads" note.
type Bus struct {
	mu sync.Mutex

	history      []model.Message
	correlations map[string]*correlationEntry

	// global fires for every Send/Record/Relay; targeted holds per-AgentId
	// subscriber lists, both in registration order.
	global   []Handler
	targeted map[model.AgentId][]Handler

	now func() time.Time
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		correlations: make(map[string]*correlationEntry),
		targeted:     make(map[model.AgentId][]Handler),
		now:          time.Now,
	}
}

// Subscribe registers handler to receive every event regardless of
// destination. Handlers are invoked in the order they were registered.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, handler)
}

// SubscribeAgent registers handler to receive only events targeted at
// agent (or broadcast to model.All).
func (b *Bus) SubscribeAgent(agent model.AgentId, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targeted[agent] = append(b.targeted[agent], handler)
}

// PartialMessage is the caller-supplied shape for Send/Record/Relay; ID and
// Timestamp are always assigned by the bus.
type PartialMessage struct {
	From          model.AgentId
	To            model.AgentId
	Content       string
	CorrelationID string
}

// Send assigns an id and timestamp, defaults RelayCount to 0, appends to
// history (capped at 500, oldest dropped), bumps the correlation counter if
// CorrelationID is set, and emits globally then to the target (or to every
// known target if To is model.All).
func (b *Bus) Send(pm PartialMessage) model.Message {
	return b.send(pm, 0, true)
}

// Record behaves like Send for bookkeeping (id, timestamp, history,
// correlation count) but never dispatches to the targeted subscriber list
// — used for user-visible injection that must not trigger an agent turn.
func (b *Bus) Record(pm PartialMessage) model.Message {
	return b.send(pm, 0, false)
}

func (b *Bus) send(pm PartialMessage, relayCount int, routeTargeted bool) model.Message {
	b.mu.Lock()

	msg := model.Message{
		ID:            uuid.New().String(),
		From:          pm.From,
		To:            pm.To,
		Content:       pm.Content,
		CorrelationID: pm.CorrelationID,
		RelayCount:    relayCount,
		Timestamp:     b.now(),
	}

	b.history = append(b.history, msg)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}

	if msg.CorrelationID != "" {
		b.bumpCorrelation(msg.CorrelationID)
	}

	global := append([]Handler(nil), b.global...)
	var targets []Handler
	if routeTargeted {
		targets = b.subscribersFor(msg.To)
	}
	b.mu.Unlock()

	ev := Event{Kind: EventMessage, Message: msg}
	for _, h := range global {
		h(ev)
	}
	for _, h := range targets {
		h(ev)
	}

	return msg
}

// subscribersFor must be called with b.mu held.
func (b *Bus) subscribersFor(to model.AgentId) []Handler {
	if to == model.All {
		var all []Handler
		for _, hs := range b.targeted {
			all = append(all, hs...)
		}
		return all
	}
	return append([]Handler(nil), b.targeted[to]...)
}

// bumpCorrelation must be called with b.mu held. It increments the
// counter for id, evicting the oldest entries first if the map would
// exceed maxCorrelationEntries, and sweeps entries idle past
// correlationTTL.
func (b *Bus) bumpCorrelation(id string) {
	now := b.now()
	for key, entry := range b.correlations {
		if now.Sub(entry.lastSeenAt) > correlationTTL {
			delete(b.correlations, key)
		}
	}

	entry, ok := b.correlations[id]
	if !ok {
		if len(b.correlations) >= maxCorrelationEntries {
			b.evictOldestLocked()
		}
		entry = &correlationEntry{}
		b.correlations[id] = entry
	}
	entry.count++
	entry.lastSeenAt = now
}

// evictOldestLocked must be called with b.mu held.
func (b *Bus) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for key, entry := range b.correlations {
		if first || entry.lastSeenAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastSeenAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(b.correlations, oldestKey)
	}
}

// correlationCount returns the current hop count recorded for id, 0 if
// unseen.
func (b *Bus) correlationCount(id string) int {
	if entry, ok := b.correlations[id]; ok {
		return entry.count
	}
	return 0
}

// Relay looks up (or creates) correlationID's counter. If the existing
// count is already at MaxRelayDepth, it emits relay-blocked (reason
// "depth") and returns false without sending. Otherwise it sends with
// RelayCount = priorCount+1 and emits EventRelay in addition to
// EventMessage.
func (b *Bus) Relay(from, to model.AgentId, content, correlationID string) bool {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	b.mu.Lock()
	current := b.correlationCount(correlationID)
	if current >= MaxRelayDepth {
		global := append([]Handler(nil), b.global...)
		b.mu.Unlock()
		ev := Event{Kind: EventRelayBlocked, Reason: "depth", Message: model.Message{
			From: from, To: to, CorrelationID: correlationID, Content: content, RelayCount: current,
		}}
		for _, h := range global {
			h(ev)
		}
		return false
	}
	b.mu.Unlock()

	msg := b.send(PartialMessage{From: from, To: to, Content: content, CorrelationID: correlationID}, current+1, true)

	b.mu.Lock()
	global := append([]Handler(nil), b.global...)
	b.mu.Unlock()
	for _, h := range global {
		h(Event{Kind: EventRelay, Message: msg})
	}
	return true
}

// RelayBlockedBackpressure emits a relay-blocked event with reason
// "backpressure" without touching history or correlation state, used when
// an agent driver's input queue is already at capacity (see
// internal/agentdriver).
func (b *Bus) RelayBlockedBackpressure(from, to model.AgentId) {
	b.mu.Lock()
	global := append([]Handler(nil), b.global...)
	b.mu.Unlock()
	ev := Event{Kind: EventRelayBlocked, Reason: "backpressure", Message: model.Message{From: from, To: to}}
	for _, h := range global {
		h(ev)
	}
}

// RelayBlockedRateLimited emits a relay-blocked event with reason
// "rate-limited", used by internal/relay's rate limiter.
func (b *Bus) RelayBlockedRateLimited(from, to model.AgentId) {
	b.mu.Lock()
	global := append([]Handler(nil), b.global...)
	b.mu.Unlock()
	ev := Event{Kind: EventRelayBlocked, Reason: "rate-limited", Message: model.Message{From: from, To: to}}
	for _, h := range global {
		h(ev)
	}
}

// History returns a snapshot of the current history buffer.
func (b *Bus) History() []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Message(nil), b.history...)
}

// GetContextSummary returns a compact text summary of up to max most
// recent history entries newer than sinceIndex in which neither endpoint
// is forAgent, excluding user-to-other-worker sidebars (messages from
// model.User to any agent other than forAgent or lead are skipped). The
// returned index is the current history length, to be passed as sinceIndex
// on the next call.
func (b *Bus) GetContextSummary(forAgent model.AgentId, sinceIndex int, max int) (string, int) {
	if max <= 0 {
		max = 5
	}

	b.mu.Lock()
	history := append([]model.Message(nil), b.history...)
	b.mu.Unlock()

	newIndex := len(history)
	if sinceIndex >= len(history) {
		return "", newIndex
	}

	var lines []string
	for i := len(history) - 1; i >= sinceIndex && i >= 0; i-- {
		msg := history[i]
		if msg.From == forAgent || msg.To == forAgent {
			continue
		}
		if msg.From == model.User && msg.To != forAgent && msg.To != "lead" {
			continue
		}
		lines = append(lines, renderSummaryLine(msg))
		if len(lines) >= max {
			break
		}
	}

	// lines were collected newest-first; present oldest-first.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}

	if len(lines) == 0 {
		return "", newIndex
	}

	summary := lines[0]
	for _, l := range lines[1:] {
		summary += "\n" + l
	}
	return summary, newIndex
}

func renderSummaryLine(msg model.Message) string {
	content := msg.Content
	const max = 150
	if len(content) > max {
		content = content[:max]
	}
	return "[" + string(msg.From) + "→" + string(msg.To) + "] " + content
}

// Reset clears history and correlation state. Subscribers are preserved so
// they survive a restart of the orchestration within the same process.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
	b.correlations = make(map[string]*correlationEntry)
}
