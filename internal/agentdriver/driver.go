// Package agentdriver wraps one external CLI process: launching it,
// decoding its line-delimited JSON event stream, mapping events to
// normalized OutputLines and lifecycle states, and handling stderr,
// timeouts, and cancellation. Grounded on this codebase's
// agent/lifecycle.Manager and agent/acp.Session, adapted from Docker
// container lifecycle and ACP JSON-RPC session bootstrap to direct
// os/exec subprocess spawning with line-delimited JSON over stdio, since
// this orchestrator does not schedule compute across machines.
package agentdriver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fedi-cli/fedi/internal/agents"
	"github.com/fedi-cli/fedi/internal/common/logger"
	"github.com/fedi-cli/fedi/internal/eventstream"
	"github.com/fedi-cli/fedi/internal/model"
	"github.com/fedi-cli/fedi/internal/relayerr"
)

// MaxQueueDepth bounds the FIFO prompt queue; a caller hitting this depth
// should treat it as backpressure rather than enqueue unboundedly.
const MaxQueueDepth = 16

// OutputHandler and StatusHandler are observer callbacks. Multiple of each
// may be registered; all are invoked on send/receive.
type OutputHandler func(model.OutputLine)
type StatusHandler func(model.AgentStatus)

// Config parameterizes one driver instance.
type Config struct {
	AgentID       model.AgentId
	Agent         agents.Agent
	Model         string
	ExecTimeout   time.Duration // 0 = wait indefinitely
	GraceTimeout  time.Duration // stop() wait before kill; default 5s
}

// Driver wraps one external CLI process for the lifetime of an agent role.
type Driver struct {
	cfg Config
	log *logger.Logger

	mu            sync.Mutex
	status        model.AgentStatus
	sessionID     string
	lastError     string
	queue         []string
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	turnCancel    context.CancelFunc
	turnDone      chan struct{}
	outputHandlers []OutputHandler
	statusHandlers []StatusHandler

	onBackpressure func()
}

// New returns an idle Driver for cfg.
func New(cfg Config, log *logger.Logger) *Driver {
	if cfg.GraceTimeout == 0 {
		cfg.GraceTimeout = 5 * time.Second
	}
	return &Driver{
		cfg:    cfg,
		log:    log.WithAgentID(string(cfg.AgentID)),
		status: model.StatusIdle,
	}
}

// OnOutput registers an output observer.
func (d *Driver) OnOutput(h OutputHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputHandlers = append(d.outputHandlers, h)
}

// OnStatusChange registers a status observer.
func (d *Driver) OnStatusChange(h StatusHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusHandlers = append(d.statusHandlers, h)
}

// OnBackpressure registers the callback invoked when Send is called while
// the FIFO queue is already at MaxQueueDepth.
func (d *Driver) OnBackpressure(h func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onBackpressure = h
}

// Status returns the driver's current status.
func (d *Driver) Status() model.AgentStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// SessionID returns the external session id captured from an init event,
// or "" if none has been seen yet.
func (d *Driver) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// RestoreSessionID seeds the driver with a previously persisted external
// session id, so the next Send resumes rather than starting fresh. Used by
// the orchestrator's resume path.
func (d *Driver) RestoreSessionID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = id
}

func (d *Driver) setStatus(s model.AgentStatus) {
	d.mu.Lock()
	d.status = s
	handlers := append([]StatusHandler(nil), d.statusHandlers...)
	d.mu.Unlock()
	for _, h := range handlers {
		h(s)
	}
}

func (d *Driver) emit(line model.OutputLine) {
	d.mu.Lock()
	handlers := append([]OutputHandler(nil), d.outputHandlers...)
	d.mu.Unlock()
	for _, h := range handlers {
		h(line)
	}
}

// Send starts a new turn by re-invoking the CLI with prompt (passed to the
// agent's BuildCommand), or, if a turn is already in flight, queues it in
// FIFO order to be dispatched once the previous turn ends. If the queue is already at MaxQueueDepth the
// prompt is dropped and onBackpressure fires instead of growing the queue
// unboundedly.
func (d *Driver) Send(ctx context.Context, prompt string) error {
	d.mu.Lock()
	if d.status == model.StatusRunning {
		if len(d.queue) >= MaxQueueDepth {
			cb := d.onBackpressure
			d.mu.Unlock()
			if cb != nil {
				cb()
			}
			return nil
		}
		d.queue = append(d.queue, prompt)
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	return d.dispatch(ctx, prompt)
}

// dispatch spawns (or re-invokes) the CLI for one turn and streams its
// output until a terminal event, a timeout, or process exit.
func (d *Driver) dispatch(ctx context.Context, prompt string) error {
	d.setStatus(model.StatusRunning)

	turnCtx, cancel := context.WithCancel(ctx)
	turnDone := make(chan struct{})
	d.mu.Lock()
	d.turnCancel = cancel
	d.turnDone = turnDone
	sessionID := d.sessionID
	d.mu.Unlock()
	defer close(turnDone)

	if d.cfg.ExecTimeout > 0 {
		var timeoutCancel context.CancelFunc
		turnCtx, timeoutCancel = context.WithTimeout(turnCtx, d.cfg.ExecTimeout)
		defer timeoutCancel()
	}

	command := d.cfg.Agent.BuildCommand(agents.CommandOptions{
		Model:     d.cfg.Model,
		SessionID: sessionID,
		Prompt:    prompt,
	})

	cmd := exec.CommandContext(turnCtx, command.Path, command.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return d.fail(relayerr.Spawn(string(d.cfg.AgentID), err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return d.fail(relayerr.Spawn(string(d.cfg.AgentID), err))
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return d.fail(relayerr.Spawn(string(d.cfg.AgentID), err))
	}

	if err := cmd.Start(); err != nil {
		return d.fail(relayerr.Spawn(string(d.cfg.AgentID), err))
	}

	d.mu.Lock()
	d.cmd = cmd
	d.stdin = stdin
	d.mu.Unlock()

	events := make(chan eventstream.Event, 64)
	decoder := eventstream.New(d.log, string(d.cfg.AgentID))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); decoder.Run(stdout, events) }()
	go func() {
		defer wg.Done()
		d.readStderr(stderr)
	}()
	go func() {
		wg.Wait()
		close(events)
	}()

	terminal := false
	for ev := range events {
		if turnCtx.Err() != nil {
			break
		}
		if d.handleEvent(ev) {
			terminal = true
		}
	}

	_ = cmd.Wait()

	if turnCtx.Err() == context.DeadlineExceeded {
		d.emit(model.OutputLine{Text: "timed out", Kind: model.KindInfo, Timestamp: time.Now()})
		d.setStatus(model.StatusError)
		d.setStatus(model.StatusIdle)
		return relayerr.Timeout(string(d.cfg.AgentID), int(d.cfg.ExecTimeout.Milliseconds()))
	}

	if terminal {
		d.setStatus(model.StatusWaiting)
	}

	d.drainQueue(ctx)
	return nil
}

// drainQueue dispatches the next queued prompt, if any, once the driver is
// no longer running.
func (d *Driver) drainQueue(ctx context.Context) {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	next := d.queue[0]
	d.queue = d.queue[1:]
	d.mu.Unlock()

	go func() {
		_ = d.dispatch(ctx, next)
	}()
}

func (d *Driver) fail(err *relayerr.RelayError) error {
	d.emit(model.OutputLine{Text: err.Error(), Kind: model.KindInfo, Timestamp: time.Now()})
	d.setStatus(model.StatusError)
	return err
}

// handleEvent applies the uniform per-agent event semantics. It returns
// true if ev was a terminal "result" event.
func (d *Driver) handleEvent(ev eventstream.Event) bool {
	class := d.cfg.Agent.MapEventType(ev.Type)

	switch class {
	case agents.EventInit:
		var payload struct {
			SessionID string `json:"session_id"`
			ID        string `json:"id"`
		}
		_ = json.Unmarshal(ev.Raw, &payload)
		id := payload.SessionID
		if id == "" {
			id = payload.ID
		}
		if id != "" {
			d.mu.Lock()
			d.sessionID = id
			d.mu.Unlock()
		}

	case agents.EventAssistant:
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(ev.Raw, &payload)
		if strings.TrimSpace(payload.Text) != "" {
			d.emit(model.OutputLine{Text: payload.Text, Kind: model.KindStdout, Timestamp: time.Now()})
		}

	case agents.EventTool:
		var payload struct {
			Name string                 `json:"name"`
			Args map[string]interface{} `json:"args"`
		}
		_ = json.Unmarshal(ev.Raw, &payload)
		line := d.cfg.Agent.FormatToolUse(payload.Name, payload.Args)
		d.emit(model.OutputLine{Text: line, Kind: model.KindSystem, Timestamp: time.Now()})

	case agents.EventResult:
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(ev.Raw, &payload)
		if strings.TrimSpace(payload.Text) != "" {
			d.emit(model.OutputLine{Text: payload.Text, Kind: model.KindStdout, Timestamp: time.Now()})
		}
		return true

	case agents.EventError:
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(ev.Raw, &payload)
		d.recordRecoverableError(payload.Message)
	}

	return false
}

// recordRecoverableError records err as lastError, emits it as an info
// line, and flashes the status to error and back to running: an error
// event or a matched stderr pattern is a recoverable failure, not a
// terminated turn.
func (d *Driver) recordRecoverableError(message string) {
	d.mu.Lock()
	d.lastError = message
	d.mu.Unlock()
	d.emit(model.OutputLine{Text: message, Kind: model.KindInfo, Timestamp: time.Now()})
	d.setStatus(model.StatusError)
	d.setStatus(model.StatusRunning)
}

// readStderr matches each line against the agent's stderr pattern table; a
// match is summarized as an info OutputLine and recorded as lastError,
// unmatched lines are dropped (debug-only in a real deployment).
func (d *Driver) readStderr(r io.Reader) {
	patterns := d.cfg.Agent.StderrPatterns()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		for _, p := range patterns {
			if strings.Contains(line, p.Contains) {
				d.recordRecoverableError(p.Message)
				break
			}
		}
	}
}

// Stop sends termination, waits up to the configured grace period, then
// kills. Idempotent; transitions to stopped.
func (d *Driver) Stop() error {
	d.mu.Lock()
	cmd := d.cmd
	cancel := d.turnCancel
	stdin := d.stdin
	done := d.turnDone
	d.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		d.setStatus(model.StatusStopped)
		return nil
	}

	if stdin != nil {
		_ = stdin.Close()
	}

	select {
	case <-done:
	case <-time.After(d.cfg.GraceTimeout):
		if cancel != nil {
			cancel()
		}
		<-done
	}

	d.setStatus(model.StatusStopped)
	return nil
}

// LastError returns the most recently recorded error text, for diagnostics.
func (d *Driver) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastError
}
