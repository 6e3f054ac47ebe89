package orchestrator

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fedi-cli/fedi/internal/agentdriver"
	"github.com/fedi-cli/fedi/internal/agents"
	"github.com/fedi-cli/fedi/internal/bus"
	"github.com/fedi-cli/fedi/internal/common/logger"
	"github.com/fedi-cli/fedi/internal/model"
	"github.com/fedi-cli/fedi/internal/relay"
	"github.com/fedi-cli/fedi/internal/session"
)

// captureAgent is a fake agents.Agent whose BuildCommand records the
// prompt it was given (for asserting context-summary/resume-header
// injection) and whose canned script is deterministic and fast.
type captureAgent struct {
	mu      sync.Mutex
	script  string
	prompts []string
}

func (a *captureAgent) ID() string           { return "capture" }
func (a *captureAgent) DefaultModel() string { return "test-model" }

func (a *captureAgent) BuildCommand(opts agents.CommandOptions) agents.Command {
	a.mu.Lock()
	a.prompts = append(a.prompts, opts.Prompt)
	a.mu.Unlock()
	return agents.Command{Path: "sh", Args: []string{"-c", a.script}}
}

func (a *captureAgent) lastPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.prompts) == 0 {
		return ""
	}
	return a.prompts[len(a.prompts)-1]
}

func (a *captureAgent) MapEventType(eventType string) agents.EventClass {
	switch eventType {
	case "init":
		return agents.EventInit
	case "assistant":
		return agents.EventAssistant
	case "result":
		return agents.EventResult
	default:
		return agents.EventUnknown
	}
}

func (a *captureAgent) FormatToolUse(toolName string, args map[string]interface{}) string {
	return "▸ " + toolName
}

func (a *captureAgent) StderrPatterns() []agents.StderrPattern { return nil }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *captureAgent, *captureAgent, string) {
	t.Helper()
	b := bus.New()
	relayCtrl := relay.New(b, relay.Config{DraftFlush: 20 * time.Millisecond, SafetyNetDebounce: 30 * time.Millisecond})
	dir := t.TempDir()
	store := session.New(dir, time.Hour, nil)
	o := New(b, relayCtrl, store, Config{DelegateTimeout: time.Second})

	lead := &captureAgent{script: `echo '{"type":"init","session_id":"lead-ext"}'; echo '{"type":"assistant","text":"[TO:worker_a] please start"}'; echo '{"type":"result","text":"ok"}'`}
	worker := &captureAgent{script: `echo '{"type":"init","session_id":"worker-ext"}'; echo '{"type":"assistant","text":"working on it"}'; echo '{"type":"result","text":"done"}'`}

	leadDriver := agentdriver.New(agentdriver.Config{AgentID: LeadAgent, Agent: lead, ExecTimeout: 5 * time.Second}, logger.Default())
	workerDriver := agentdriver.New(agentdriver.Config{AgentID: "worker_a", Agent: worker, ExecTimeout: 5 * time.Second}, logger.Default())
	o.RegisterDriver(LeadAgent, leadDriver)
	o.RegisterDriver("worker_a", workerDriver)

	return o, lead, worker, dir
}

func TestStartWithTaskDispatchesToLeadAndRelaysToWorker(t *testing.T) {
	o, lead, worker, _ := newTestOrchestrator(t)

	id, err := o.StartWithTask("ship the feature", "you are the lead")
	if err != nil {
		t.Fatalf("StartWithTask failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty session id")
	}

	time.Sleep(100 * time.Millisecond)

	if got := lead.lastPrompt(); !strings.HasPrefix(got, "you are the lead") {
		t.Fatalf("expected lead's first prompt to start with the system prompt, got %q", got)
	}

	if got := worker.lastPrompt(); !strings.HasSuffix(got, "please start") {
		t.Fatalf("expected worker_a's prompt to end with the relayed directive content, got %q", got)
	}
}

func TestSendUserInputRoutesToNamedAgent(t *testing.T) {
	o, lead, worker, _ := newTestOrchestrator(t)

	if _, err := o.StartWithTask("task", "system"); err != nil {
		t.Fatalf("StartWithTask failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	o.SendUserInput("@worker_a check the logs")
	time.Sleep(100 * time.Millisecond)

	if got := worker.lastPrompt(); !strings.HasSuffix(got, "check the logs") {
		t.Fatalf("expected the @worker_a input to be routed directly, got %q", got)
	}
	_ = lead
}

func TestSendUserInputDefaultsToLead(t *testing.T) {
	o, lead, _, _ := newTestOrchestrator(t)

	if _, err := o.StartWithTask("task", "system"); err != nil {
		t.Fatalf("StartWithTask failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	o.SendUserInput("keep going")
	time.Sleep(100 * time.Millisecond)

	if got := lead.lastPrompt(); !strings.HasSuffix(got, "keep going") {
		t.Fatalf("expected plain user input to be routed to lead, got %q", got)
	}
}

func TestStopFinalizesSessionAndStopsDrivers(t *testing.T) {
	o, _, _, dir := newTestOrchestrator(t)

	id, err := o.StartWithTask("task", "system")
	if err != nil {
		t.Fatalf("StartWithTask failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := o.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	store := session.New(dir, time.Hour, nil)
	data, err := store.Load(id)
	if err != nil {
		t.Fatalf("Load after Stop failed: %v", err)
	}
	if data == nil {
		t.Fatalf("expected session to have been persisted")
	}
	if data.FinishedAt == nil {
		t.Fatalf("expected FinishedAt to be set after Stop")
	}
}

func TestResumeRestoresExternalSessionIDsAndInjectsHeader(t *testing.T) {
	o, lead, _, dir := newTestOrchestrator(t)

	id, err := o.StartWithTask("original task", "system")
	if err != nil {
		t.Fatalf("StartWithTask failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	b := bus.New()
	relayCtrl := relay.New(b, relay.Config{DraftFlush: 20 * time.Millisecond, SafetyNetDebounce: 30 * time.Millisecond})
	store := session.New(dir, time.Hour, nil)
	resumed := New(b, relayCtrl, store, Config{DelegateTimeout: time.Second})

	leadAgent := &captureAgent{script: `echo '{"type":"result","text":"resumed"}'`}
	leadDriver := agentdriver.New(agentdriver.Config{AgentID: LeadAgent, Agent: leadAgent, ExecTimeout: 5 * time.Second}, logger.Default())
	resumed.RegisterDriver(LeadAgent, leadDriver)

	if err := resumed.Resume(id); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if got := leadDriver.SessionID(); got != "lead-ext" {
		t.Fatalf("expected lead's external session id to be restored, got %q", got)
	}

	resumed.SendUserInput("continue where we left off")
	time.Sleep(100 * time.Millisecond)

	prompt := leadAgent.lastPrompt()
	if !strings.HasPrefix(prompt, "SESSION RESUME") {
		t.Fatalf("expected resumed lead prompt to start with a SESSION RESUME header, got %q", prompt)
	}
	_ = lead
}
