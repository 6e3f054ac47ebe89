// Package orchestrator owns the drivers, the bus, and the session store
// for one running task, wiring targeted bus messages to driver prompts
// with context-summary injection, and implementing the task lifecycle
// (start, user input routing, stop, resume). Grounded on
// cmd/agent-manager/main.go's wiring order (config → bus → registry →
// lifecycle manager → HTTP layer) and agent/lifecycle.Manager's
// owns-everything-for-one-run shape, generalized from "one Manager per
// Docker-backed agent fleet" to "one Orchestrator per multi-agent task".
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fedi-cli/fedi/internal/agentdriver"
	"github.com/fedi-cli/fedi/internal/bus"
	"github.com/fedi-cli/fedi/internal/model"
	"github.com/fedi-cli/fedi/internal/relay"
	"github.com/fedi-cli/fedi/internal/relayerr"
	"github.com/fedi-cli/fedi/internal/session"
)

// LeadAgent is the fixed id of the supervising agent.
const LeadAgent model.AgentId = "lead"

// ContextWindow bounds how many recent history entries getContextSummary
// considers, and how many resume replays on reconnect.
const ContextWindow = 5

// DefaultDelegateTimeout bounds how long Stop waits for every driver to
// exit gracefully before returning (each driver enforces its own
// shorter per-process grace/kill timeout independently).
const DefaultDelegateTimeout = 180 * time.Second

// OutputHandler receives every OutputLine emitted by any driver, for the
// renderer (an external collaborator, out of scope here).
type OutputHandler func(agent model.AgentId, line model.OutputLine)

// StatusHandler receives every status transition of any driver.
type StatusHandler func(agent model.AgentId, status model.AgentStatus)

// Orchestrator wires one set of agent drivers to one bus, relay
// controller, and session store for the lifetime of one task.
type Orchestrator struct {
	bus     *bus.Bus
	relay   *relay.Controller
	store   *session.Store
	drivers map[model.AgentId]*agentdriver.Driver

	delegateTimeout time.Duration

	mu           sync.Mutex
	sinceIndex   map[model.AgentId]int
	resumeHeader string
	onOutput     OutputHandler
	onStatus     StatusHandler
}

// Config parameterizes New.
type Config struct {
	DelegateTimeout time.Duration
}

// New returns an Orchestrator with no drivers registered yet; call
// RegisterDriver for each agent in the topology before StartWithTask.
func New(b *bus.Bus, relayCtrl *relay.Controller, store *session.Store, cfg Config) *Orchestrator {
	timeout := cfg.DelegateTimeout
	if timeout == 0 {
		timeout = DefaultDelegateTimeout
	}
	o := &Orchestrator{
		bus:             b,
		relay:           relayCtrl,
		store:           store,
		drivers:         make(map[model.AgentId]*agentdriver.Driver),
		delegateTimeout: timeout,
		sinceIndex:      make(map[model.AgentId]int),
	}

	b.Subscribe(func(ev bus.Event) {
		if ev.Kind == bus.EventMessage {
			store.AppendMessage(ev.Message)
		}
	})
	relayCtrl.SetFlushHandler(func(agent model.AgentId, text string) {
		if text == "" {
			return
		}
		o.emitOutput(agent, model.OutputLine{Text: text, Kind: model.KindStdout, Timestamp: time.Now()})
	})

	return o
}

// OnOutput registers the renderer's output callback.
func (o *Orchestrator) OnOutput(h OutputHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onOutput = h
}

// OnStatus registers the renderer's status callback.
func (o *Orchestrator) OnStatus(h StatusHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onStatus = h
}

func (o *Orchestrator) emitOutput(agent model.AgentId, line model.OutputLine) {
	o.mu.Lock()
	h := o.onOutput
	o.mu.Unlock()
	if h != nil {
		h(agent, line)
	}
}

func (o *Orchestrator) emitStatus(agent model.AgentId, status model.AgentStatus) {
	o.mu.Lock()
	h := o.onStatus
	o.mu.Unlock()
	if h != nil {
		h(agent, status)
	}
}

// RegisterDriver wires d into the orchestrator under agent, subscribing
// it to targeted bus messages and feeding its output back into the relay
// controller and the renderer callbacks.
func (o *Orchestrator) RegisterDriver(agent model.AgentId, d *agentdriver.Driver) {
	o.mu.Lock()
	o.drivers[agent] = d
	o.mu.Unlock()

	d.OnOutput(func(line model.OutputLine) {
		if line.Kind == model.KindStdout {
			o.relay.Append(agent, line.Text+"\n")
		}
		o.emitOutput(agent, line)
	})

	d.OnStatusChange(func(status model.AgentStatus) {
		if status == model.StatusWaiting {
			if extID := d.SessionID(); extID != "" {
				o.store.SetAgentSession(agent, extID)
			}
			o.relay.NotifyTurnEnd(agent)
		}
		o.emitStatus(agent, status)
	})

	d.OnBackpressure(func() {
		o.bus.RelayBlockedBackpressure("", agent)
	})

	o.bus.SubscribeAgent(agent, func(ev bus.Event) {
		if ev.Kind != bus.EventMessage {
			return
		}
		o.dispatch(agent, ev.Message)
	})
}

// dispatch sends msg to agent's driver as its next prompt, prepending a
// context summary of what it missed and, for the lead's first prompt
// after a resume, a "SESSION RESUME" header.
func (o *Orchestrator) dispatch(agent model.AgentId, msg model.Message) {
	o.mu.Lock()
	d, ok := o.drivers[agent]
	if !ok {
		o.mu.Unlock()
		return
	}
	since := o.sinceIndex[agent]
	triggeredBy := model.AgentId("")
	if msg.From != model.User {
		triggeredBy = msg.From
	}

	var header string
	if agent == LeadAgent && o.resumeHeader != "" {
		header = o.resumeHeader
		o.resumeHeader = ""
	}
	o.mu.Unlock()

	summary, newIndex := o.bus.GetContextSummary(agent, since, ContextWindow)
	o.mu.Lock()
	o.sinceIndex[agent] = newIndex
	o.mu.Unlock()

	prompt := msg.Content
	if summary != "" {
		prompt = summary + "\n\n" + prompt
	}
	if header != "" {
		prompt = header + "\n\n" + prompt
	}

	o.relay.NotifyTurnStart(agent, triggeredBy, msg.CorrelationID)
	_ = d.Send(context.Background(), prompt)
}

// StartWithTask creates a new session, persists task and projectDir, and
// sends the initial user→lead message composed of systemPrompt plus task.
func (o *Orchestrator) StartWithTask(task, systemPrompt string) (string, error) {
	id, err := o.store.StartSession(task)
	if err != nil {
		return "", err
	}

	o.bus.Send(bus.PartialMessage{
		From:    model.User,
		To:      LeadAgent,
		Content: strings.TrimSpace(systemPrompt + "\n\n" + task),
	})

	return id, nil
}

// CurrentSessionID returns the id of the session currently held open by
// the session store, or "" if none has been started yet.
func (o *Orchestrator) CurrentSessionID() string {
	snap := o.store.Snapshot()
	if snap == nil {
		return ""
	}
	return snap.ID
}

// SendUserInput routes text to the lead, unless it begins with "@<agent>"
// in which case it is routed directly to the named worker. Either way it
// is recorded on the bus (and, via the persistence subscriber, the
// session).
func (o *Orchestrator) SendUserInput(text string) {
	target := LeadAgent
	content := text

	if strings.HasPrefix(text, "@") {
		rest := text[1:]
		if idx := strings.IndexAny(rest, " \t\n"); idx >= 0 {
			target = model.AgentId(rest[:idx])
			content = strings.TrimSpace(rest[idx+1:])
		} else {
			target = model.AgentId(rest)
			content = ""
		}
	}

	o.bus.Send(bus.PartialMessage{From: model.User, To: target, Content: content})
}

// Stop finalizes the session and signals every driver to stop, waiting up
// to the configured delegate timeout before returning regardless of
// whether every driver has exited (each driver force-kills its own
// subprocess on its own shorter grace period).
func (o *Orchestrator) Stop() error {
	saveErr := o.store.Finalize()

	o.mu.Lock()
	drivers := make([]*agentdriver.Driver, 0, len(o.drivers))
	for _, d := range o.drivers {
		drivers = append(drivers, d)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, d := range drivers {
		wg.Add(1)
		go func(d *agentdriver.Driver) {
			defer wg.Done()
			_ = d.Stop()
		}(d)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(o.delegateTimeout):
	}

	return saveErr
}

// Resume loads sessionId, restores each driver's external session id so
// the next spawn resumes rather than starting fresh, and arms a
// "SESSION RESUME" header containing the last ContextWindow messages to
// be injected into the lead's next prompt.
func (o *Orchestrator) Resume(sessionID string) error {
	data, err := o.store.Load(sessionID)
	if err != nil {
		return err
	}
	if data == nil {
		return relayerr.SessionIO(sessionID, fmt.Errorf("session not found or schema mismatch"))
	}

	o.mu.Lock()
	for agent, extID := range data.AgentSessions {
		if d, ok := o.drivers[agent]; ok {
			d.RestoreSessionID(extID)
		}
	}

	start := len(data.Messages) - ContextWindow
	if start < 0 {
		start = 0
	}
	var lines []string
	for _, m := range data.Messages[start:] {
		lines = append(lines, fmt.Sprintf("[%s→%s] %s", m.From, m.To, m.Content))
	}
	header := "SESSION RESUME"
	if len(lines) > 0 {
		header += "\n" + strings.Join(lines, "\n")
	}
	o.resumeHeader = header
	o.sinceIndex = make(map[model.AgentId]int)
	o.mu.Unlock()

	return nil
}
