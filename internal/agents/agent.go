// Package agents defines the CLI-specific adapters for the worker binaries
// the orchestrator can launch. Each concrete type (ClaudeCode, Codex,
// Copilot, Gemini, Auggie) implements the Agent interface, consolidating
// identity, default model, and command construction for one CLI in a
// single file, following this codebase's existing per-agent-struct
// convention.
package agents

import "time"

// Agent is the CLI-specific half of a worker: everything the shared
// driver base (internal/agentdriver) needs but cannot know generically.
type Agent interface {
	ID() string
	DefaultModel() string
	// BuildCommand returns the argv to exec for this turn. sessionID is
	// empty on the first turn; once an init/session.created event has been
	// observed, subsequent turns pass the captured id so the CLI resumes.
	BuildCommand(opts CommandOptions) Command
	// MapEventType classifies a decoded event's type field into one of the
	// uniform per-agent event semantics from the driver's contract: init,
	// assistant, tool, result, or error; anything else is EventUnknown.
	MapEventType(eventType string) EventClass
	// FormatToolUse renders a one-line action indicator for a tool call,
	// e.g. "▸ read <path>". Unknown tool names fall back to "▸ <name>".
	FormatToolUse(toolName string, args map[string]interface{}) string
	// StderrPatterns lists substring/message pairs used to summarize a
	// matched stderr line into an info OutputLine.
	StderrPatterns() []StderrPattern
}

// EventClass is the uniform per-agent event semantics described in the
// driver's contract.
type EventClass string

const (
	EventInit      EventClass = "init"
	EventAssistant EventClass = "assistant"
	EventTool      EventClass = "tool"
	EventResult    EventClass = "result"
	EventError     EventClass = "error"
	EventUnknown   EventClass = "unknown"
)

// CommandOptions parameterize BuildCommand.
type CommandOptions struct {
	Model     string
	SessionID string // non-empty to resume
	Prompt    string
}

// Command is an argv-style invocation: Path plus its arguments.
type Command struct {
	Path string
	Args []string
}

// StderrPattern maps a substring match on a stderr line to a short
// surfaced message, per the driver's stderr-handling contract. The set is
// agent-specific: each adapter returns its own compiled-in table from
// StderrPatterns.
type StderrPattern struct {
	Contains string
	Message  string
}

// DefaultBufferMaxBytes bounds how much undecoded text a passthrough-style
// agent may accumulate before forcing a flush.
const DefaultBufferMaxBytes = 1 << 20

// DefaultTimeout is the fallback turn budget when an agent does not
// declare its own override.
const DefaultTimeout = 120 * time.Second
