package agents

var _ Agent = (*ClaudeCode)(nil)

// ClaudeCode drives the Anthropic Claude Code CLI over its stream-json
// protocol.
type ClaudeCode struct{}

// NewClaudeCode returns the Claude Code adapter.
func NewClaudeCode() *ClaudeCode { return &ClaudeCode{} }

func (a *ClaudeCode) ID() string           { return "claude-code" }
func (a *ClaudeCode) DefaultModel() string { return "claude-sonnet-4-5" }

func (a *ClaudeCode) BuildCommand(opts CommandOptions) Command {
	args := []string{
		"-y", "@anthropic-ai/claude-code",
		"-p", "--output-format=stream-json",
		"--verbose",
	}
	model := opts.Model
	if model == "" {
		model = a.DefaultModel()
	}
	args = append(args, "--model", model)
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}
	args = append(args, opts.Prompt)
	return Command{Path: "npx", Args: args}
}

func (a *ClaudeCode) MapEventType(eventType string) EventClass {
	switch eventType {
	case "init", "session.created":
		return EventInit
	case "assistant":
		return EventAssistant
	case "tool_use":
		return EventTool
	case "result":
		return EventResult
	case "error":
		return EventError
	default:
		return EventUnknown
	}
}

func (a *ClaudeCode) FormatToolUse(toolName string, args map[string]interface{}) string {
	switch toolName {
	case "Read":
		return "▸ read " + stringArg(args, "path")
	case "Grep":
		return "▸ grep " + stringArg(args, "pattern")
	case "Bash":
		return "▸ bash " + cleanCommand(stringArg(args, "command"))
	default:
		return "▸ " + toolName
	}
}

func (a *ClaudeCode) StderrPatterns() []StderrPattern {
	return []StderrPattern{
		{Contains: "rate_limit", Message: "rate limited by the Anthropic API"},
		{Contains: "overloaded", Message: "Anthropic API overloaded, retrying"},
	}
}
