package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/fedi-cli/fedi/internal/bus"
	"github.com/fedi-cli/fedi/internal/model"
)

func newTestController(cfg Config) (*Controller, *bus.Bus, *eventCollector) {
	b := bus.New()
	ec := &eventCollector{}
	b.Subscribe(ec.record)
	return New(b, cfg), b, ec
}

type eventCollector struct {
	mu     sync.Mutex
	events []bus.Event
}

func (e *eventCollector) record(ev bus.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventCollector) snapshot() []bus.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bus.Event(nil), e.events...)
}

func TestAppendExtractsDirectiveAndRelaysImmediately(t *testing.T) {
	c, _, ec := newTestController(Config{DraftFlush: time.Hour})
	c.Append("lead", "[TO:worker_b] do the thing\n")

	events := ec.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected a message event and a relay event from the directive, got %d: %+v", len(events), events)
	}
	msg := events[0].Message
	if msg.From != "lead" || msg.To != "worker_b" || msg.Content != "do the thing" {
		t.Fatalf("unexpected relayed message: %+v", msg)
	}
}

func TestDraftFlushDebounceFlushesPlainText(t *testing.T) {
	c, _, _ := newTestController(Config{DraftFlush: 30 * time.Millisecond})

	var mu sync.Mutex
	var gotAgent model.AgentId
	var gotText string
	c.SetFlushHandler(func(agent model.AgentId, text string) {
		mu.Lock()
		gotAgent, gotText = agent, text
		mu.Unlock()
	})

	c.Append("worker_a", "just some plain progress text\n")

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if gotAgent != "worker_a" || gotText != "just some plain progress text" {
		t.Fatalf("expected the debounce flush to deliver the plain text, got agent=%q text=%q", gotAgent, gotText)
	}
}

func TestSafetyNetAutoRelayForWorkerTriggeredTurn(t *testing.T) {
	c, _, ec := newTestController(Config{SafetyNetDebounce: 30 * time.Millisecond, DraftFlush: time.Hour})

	c.NotifyTurnStart("lead", "worker_a", "")
	c.Append("lead", "looks good, merging now\n")
	c.NotifyTurnEnd("lead")

	time.Sleep(150 * time.Millisecond)

	events := ec.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected exactly one safety-net relay (message + relay event), got %d: %+v", len(events), events)
	}
	msg := events[0].Message
	if msg.From != "lead" || msg.To != "worker_a" || msg.Content != "looks good, merging now" {
		t.Fatalf("unexpected safety-net relay: %+v", msg)
	}
}

func TestSafetyNetCancelledByNewTurn(t *testing.T) {
	c, _, ec := newTestController(Config{SafetyNetDebounce: 40 * time.Millisecond, DraftFlush: time.Hour})

	c.NotifyTurnStart("lead", "worker_a", "")
	c.Append("lead", "orphaned reply\n")
	c.NotifyTurnEnd("lead")

	c.NotifyTurnStart("lead", "worker_b", "")

	time.Sleep(150 * time.Millisecond)

	events := ec.snapshot()
	if len(events) != 0 {
		t.Fatalf("expected the safety net to be cancelled by a new turn, got %+v", events)
	}
}

func TestSafetyNetDoesNotFireWhenDirectiveSeen(t *testing.T) {
	c, _, ec := newTestController(Config{SafetyNetDebounce: 20 * time.Millisecond, DraftFlush: time.Hour})

	c.NotifyTurnStart("lead", "worker_a", "")
	c.Append("lead", "[TO:worker_a] already replied\n")
	c.NotifyTurnEnd("lead")

	time.Sleep(100 * time.Millisecond)

	events := ec.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected only the explicit directive relay (message + relay event), no safety-net duplicate, got %d: %+v", len(events), events)
	}
}

func TestEmptyDirectiveAbsorbsFollowingLines(t *testing.T) {
	c, _, ec := newTestController(Config{DraftFlush: time.Hour})

	c.Append("lead", "[TO:worker_a]\nplease rebase\nonto main\n\nunrelated trailing note\n")

	events := ec.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected one relay (message + relay event), got %d: %+v", len(events), events)
	}
	msg := events[0].Message
	if msg.To != "worker_a" || msg.Content != "please rebase\nonto main" {
		t.Fatalf("expected the directive to absorb the following lines up to the blank line, got %+v", msg)
	}
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	c, _, ec := newTestController(Config{MaxRelaysPerWindow: 2, RelayWindow: time.Minute, DraftFlush: time.Hour})

	c.Append("lead", "[TO:worker_a] first\n")
	c.Append("lead", "[TO:worker_a] second\n")
	c.Append("lead", "[TO:worker_a] third\n")

	events := ec.snapshot()
	blocked := 0
	relayed := 0
	for _, ev := range events {
		if ev.Kind == bus.EventRelayBlocked && ev.Reason == "rate-limited" {
			blocked++
		}
		if ev.Kind == bus.EventMessage {
			relayed++
		}
	}
	if relayed != 2 {
		t.Fatalf("expected exactly 2 relays within the window, got %d", relayed)
	}
	if blocked != 1 {
		t.Fatalf("expected exactly 1 rate-limited block, got %d", blocked)
	}
}

func TestRelayContinuesTriggeringCorrelationChain(t *testing.T) {
	c, _, ec := newTestController(Config{DraftFlush: time.Hour})

	c.Append("lead", "[TO:worker_a] start the work\n")
	first := ec.snapshot()[0].Message

	if first.CorrelationID == "" {
		t.Fatalf("expected the original relay to mint a correlationID, got %+v", first)
	}

	c.NotifyTurnStart("worker_a", "lead", first.CorrelationID)
	c.Append("worker_a", "[TO:lead] done\n")

	events := ec.snapshot()
	second := events[len(events)-2].Message
	if second.CorrelationID != first.CorrelationID {
		t.Fatalf("expected the reply to continue the triggering correlation chain, got %q want %q", second.CorrelationID, first.CorrelationID)
	}
}

func TestRelayDepthCutoffReachedAcrossGenuinePingPong(t *testing.T) {
	c, b, ec := newTestController(Config{DraftFlush: time.Hour})

	agent, peer := model.AgentId("lead"), model.AgentId("worker_a")
	triggeredBy := model.AgentId("")
	correlationID := ""

	for i := 0; i < bus.MaxRelayDepth+1; i++ {
		c.NotifyTurnStart(agent, triggeredBy, correlationID)
		c.Append(agent, "[TO:"+string(peer)+"] hop\n")

		events := ec.snapshot()
		last := events[len(events)-1]
		if last.Kind == bus.EventRelayBlocked {
			if i != bus.MaxRelayDepth {
				t.Fatalf("depth cutoff fired early at hop %d", i)
			}
			_ = b
			return
		}

		msg := events[len(events)-2].Message
		correlationID = msg.CorrelationID
		triggeredBy = agent
		agent, peer = peer, agent
	}

	t.Fatalf("expected the genuine ping-pong exchange to hit MaxRelayDepth's cutoff")
}
