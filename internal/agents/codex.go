package agents

var _ Agent = (*Codex)(nil)

// Codex drives OpenAI's Codex CLI.
type Codex struct{}

// NewCodex returns the Codex adapter.
func NewCodex() *Codex { return &Codex{} }

func (a *Codex) ID() string           { return "codex" }
func (a *Codex) DefaultModel() string { return "gpt-5-codex" }

func (a *Codex) BuildCommand(opts CommandOptions) Command {
	args := []string{"exec", "--json"}
	model := opts.Model
	if model == "" {
		model = a.DefaultModel()
	}
	args = append(args, "--model", model)
	if opts.SessionID != "" {
		args = append(args, "resume", opts.SessionID)
	}
	args = append(args, opts.Prompt)
	return Command{Path: "codex", Args: args}
}

func (a *Codex) MapEventType(eventType string) EventClass {
	switch eventType {
	case "session.created", "init":
		return EventInit
	case "agent_message", "assistant":
		return EventAssistant
	case "tool_call", "function_call":
		return EventTool
	case "task_complete", "result":
		return EventResult
	case "error":
		return EventError
	default:
		return EventUnknown
	}
}

func (a *Codex) FormatToolUse(toolName string, args map[string]interface{}) string {
	switch toolName {
	case "shell":
		return "▸ bash " + cleanCommand(stringArg(args, "command"))
	case "apply_patch":
		return "▸ patch " + stringArg(args, "path")
	default:
		return "▸ " + toolName
	}
}

func (a *Codex) StderrPatterns() []StderrPattern {
	return []StderrPattern{
		{Contains: "429", Message: "rate limited by the OpenAI API"},
		{Contains: "insufficient_quota", Message: "OpenAI API quota exhausted"},
	}
}
