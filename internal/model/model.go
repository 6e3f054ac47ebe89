// Package model holds the shared data types that flow through the bus,
// the agent drivers, and the session store. Nothing in this package owns
// mutation of these values beyond what is documented on each type; owners
// are the bus (Message, CorrelationCounter, history), the driver
// (AgentStatus), and the session store (SessionData).
package model

import "time"

// AgentId identifies a running role in the orchestration, not a CLI binary.
// The set of valid ids is fixed at process start by the orchestrator's
// configured topology (one lead, N workers).
type AgentId string

// User and System are the two non-agent endpoints a Message can carry in
// its From/To fields.
const (
	User   AgentId = "user"
	System AgentId = "system"
	All    AgentId = "all"
)

// AgentStatus is the lifecycle state of one agent driver.
type AgentStatus string

const (
	StatusIdle    AgentStatus = "idle"
	StatusRunning AgentStatus = "running"
	StatusWaiting AgentStatus = "waiting"
	StatusError   AgentStatus = "error"
	StatusStopped AgentStatus = "stopped"
)

// OutputLineKind classifies an OutputLine for rendering purposes.
type OutputLineKind string

const (
	KindStdout OutputLineKind = "stdout"
	KindStderr OutputLineKind = "stderr"
	KindSystem OutputLineKind = "system"
	KindInfo   OutputLineKind = "info"
	KindRelay  OutputLineKind = "relay"
)

// OutputLine is one unit of renderable text produced by an agent driver.
type OutputLine struct {
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      OutputLineKind `json:"kind"`
}

// Message is one entry on the bus. Once constructed by send/record/relay it
// is never mutated; callers receive copies.
type Message struct {
	ID            string    `json:"id"`
	From          AgentId   `json:"from"`
	To            AgentId   `json:"to"`
	Content       string    `json:"content"`
	CorrelationID string    `json:"correlationId,omitempty"`
	RelayCount    int       `json:"relayCount"`
	Timestamp     time.Time `json:"timestamp"`
}

// DirectiveKind enumerates the forms the directive parser recognizes.
type DirectiveKind string

const (
	DirectiveRelay    DirectiveKind = "relay"
	DirectiveTaskAdd  DirectiveKind = "task-add"
	DirectiveTaskDone DirectiveKind = "task-done"
)

// DirectiveToken is one parsed directive extracted from an agent's streamed
// text.
type DirectiveToken struct {
	Kind            DirectiveKind `json:"kind"`
	Target          AgentId       `json:"target,omitempty"`
	Content         string        `json:"content"`
	SourceLineIndex int           `json:"sourceLineIndex"`
}

// SessionSchemaVersion is the current on-disk SessionData schema version.
// Load rejects any file whose Version differs from this constant.
const SessionSchemaVersion = 2

// SessionData is the durable, versioned record of one orchestration run.
// It is owned by exactly one SessionStore instance bound to a project
// directory; callers outside the store only ever see snapshots.
type SessionData struct {
	ID            string             `json:"id"`
	Version       int                `json:"version"`
	Task          string             `json:"task"`
	ProjectDir    string             `json:"projectDir"`
	StartedAt     time.Time          `json:"startedAt"`
	FinishedAt    *time.Time         `json:"finishedAt,omitempty"`
	Messages      []Message          `json:"messages"`
	AgentSessions map[AgentId]string `json:"agentSessions"`
}

// SessionSummary is the reduced view returned by ListSessions.
type SessionSummary struct {
	ID         string     `json:"id"`
	Task       string     `json:"task"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// AgentTypeConfig describes one installable worker CLI in the registry:
// which binary backs it, its default model, and what it declares it can do.
// Distinct from AgentId, which names a running role rather than a CLI.
type AgentTypeConfig struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	BinaryPath     string   `json:"binaryPath"`
	DefaultModel   string   `json:"defaultModel"`
	Capabilities   []string `json:"capabilities"`
	Enabled        bool     `json:"enabled"`
}
