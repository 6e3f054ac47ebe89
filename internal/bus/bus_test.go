package bus

import (
	"strings"
	"testing"

	"github.com/fedi-cli/fedi/internal/model"
)

func TestSendAssignsIDAndTimestamp(t *testing.T) {
	b := New()
	msg := b.Send(PartialMessage{From: model.User, To: "lead", Content: "Build X"})
	if msg.ID == "" {
		t.Error("expected a non-empty id")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected a non-zero timestamp")
	}
	if msg.RelayCount != 0 {
		t.Errorf("expected relayCount 0, got %d", msg.RelayCount)
	}
}

func TestRelayDepthCutoff(t *testing.T) {
	b := New()
	var blocked int
	b.Subscribe(func(ev Event) {
		if ev.Kind == EventRelayBlocked {
			blocked++
		}
	})

	var ok bool
	for i := 0; i < MaxRelayDepth; i++ {
		from, to := model.AgentId("A"), model.AgentId("B")
		if i%2 == 1 {
			from, to = "B", "A"
		}
		ok = b.Relay(from, to, "hop", "K")
		if !ok {
			t.Fatalf("hop %d unexpectedly blocked", i)
		}
	}

	// The (MaxRelayDepth+1)-th relay must be refused.
	if b.Relay("A", "B", "hop", "K") {
		t.Fatal("expected the 6th relay to be blocked")
	}
	if blocked != 1 {
		t.Errorf("expected exactly 1 relay-blocked event, got %d", blocked)
	}

	count := 0
	for _, msg := range b.History() {
		if msg.CorrelationID == "K" {
			count++
		}
	}
	if count != MaxRelayDepth {
		t.Errorf("expected exactly %d messages with correlationId K, got %d", MaxRelayDepth, count)
	}
}

func TestHistoryMonotonicityAndCap(t *testing.T) {
	b := New()
	prevLen := 0
	for i := 0; i < maxHistory+50; i++ {
		b.Send(PartialMessage{From: model.User, To: "lead", Content: "x"})
		h := b.History()
		if len(h) < prevLen {
			t.Fatalf("history length decreased at iteration %d", i)
		}
		prevLen = len(h)
		if len(h) > maxHistory {
			t.Fatalf("history exceeded cap of %d at iteration %d: len=%d", maxHistory, i, len(h))
		}
	}
	if len(b.History()) != maxHistory {
		t.Errorf("expected history capped at %d, got %d", maxHistory, len(b.History()))
	}
}

func TestGetContextSummaryExclusions(t *testing.T) {
	b := New()
	b.Send(PartialMessage{From: model.User, To: "worker_a", Content: "side channel"})
	b.Send(PartialMessage{From: "worker_a", To: "lead", Content: "from worker to lead"})
	b.Send(PartialMessage{From: "lead", To: "worker_b", Content: "lead to worker_b"})

	summary, newIndex := b.GetContextSummary("worker_b", 0, 5)
	if newIndex != 3 {
		t.Errorf("expected new cursor 3, got %d", newIndex)
	}
	if summary == "" {
		t.Fatal("expected a non-empty summary")
	}

	// worker_b must never see: messages where it is an endpoint (the 3rd
	// message, from=lead to=worker_b, is excluded because to=forAgent), nor
	// user->worker_a sidebars (user is not lead, worker_a != worker_b).
	if strings.Contains(summary, "side channel") {
		t.Error("expected user->worker_a sidebar excluded from worker_b's summary")
	}
	if strings.Contains(summary, "lead to worker_b") {
		t.Error("expected message where worker_b is the recipient excluded from its own summary")
	}
	if !strings.Contains(summary, "from worker to lead") {
		t.Error("expected worker_a->lead message included in worker_b's summary")
	}
}

func TestRelayBlockedDoesNotRoute(t *testing.T) {
	b := New()
	var delivered int
	b.SubscribeAgent("B", func(Event) { delivered++ })

	for i := 0; i < MaxRelayDepth; i++ {
		b.Relay("A", "B", "hop", "K")
	}
	delivered = 0
	b.Relay("A", "B", "hop", "K")
	if delivered != 0 {
		t.Errorf("expected no delivery on a blocked relay, got %d", delivered)
	}
}
