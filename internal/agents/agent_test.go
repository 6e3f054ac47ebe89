package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLoadDefaults(t *testing.T) {
	r := NewRegistry()
	r.LoadDefaults()

	ids := r.List()
	assert.Len(t, ids, 5)

	for _, id := range []string{"claude-code", "codex", "copilot", "gemini", "auggie"} {
		a, err := r.Get(id)
		require.NoError(t, err, "expected %s to be registered", id)
		assert.Equal(t, id, a.ID())
	}
}

func TestRegistryGetUnregisteredReturnsError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nonexistent")
	assert.Error(t, err)
}

func TestClaudeCodeBuildCommandUsesResumeFlag(t *testing.T) {
	a := NewClaudeCode()
	cmd := a.BuildCommand(CommandOptions{SessionID: "sess-1", Prompt: "hello"})
	assert.Contains(t, cmd.Args, "--resume")
	assert.Contains(t, cmd.Args, "sess-1")
}

func TestClaudeCodeBuildCommandOmitsResumeWhenNoSession(t *testing.T) {
	a := NewClaudeCode()
	cmd := a.BuildCommand(CommandOptions{Prompt: "hello"})
	assert.NotContains(t, cmd.Args, "--resume")
}

func TestFormatToolUseFallsBackForUnknownTool(t *testing.T) {
	a := NewCodex()
	out := a.FormatToolUse("mystery_tool", nil)
	assert.Equal(t, "▸ mystery_tool", out)
}

func TestMapEventTypeClassifiesKnownTypes(t *testing.T) {
	a := NewGemini()
	assert.Equal(t, EventInit, a.MapEventType("session_start"))
	assert.Equal(t, EventAssistant, a.MapEventType("content"))
	assert.Equal(t, EventResult, a.MapEventType("turn_complete"))
	assert.Equal(t, EventUnknown, a.MapEventType("something_else"))
}
