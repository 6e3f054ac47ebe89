package agents

var _ Agent = (*Gemini)(nil)

// Gemini drives Google's Gemini CLI.
type Gemini struct{}

// NewGemini returns the Gemini adapter.
func NewGemini() *Gemini { return &Gemini{} }

func (a *Gemini) ID() string           { return "gemini" }
func (a *Gemini) DefaultModel() string { return "gemini-2.5-pro" }

func (a *Gemini) BuildCommand(opts CommandOptions) Command {
	args := []string{"--output-format", "jsonl"}
	model := opts.Model
	if model == "" {
		model = a.DefaultModel()
	}
	args = append(args, "--model", model)
	if opts.SessionID != "" {
		args = append(args, "--checkpoint", opts.SessionID)
	}
	args = append(args, "-p", opts.Prompt)
	return Command{Path: "gemini", Args: args}
}

func (a *Gemini) MapEventType(eventType string) EventClass {
	switch eventType {
	case "session_start":
		return EventInit
	case "content":
		return EventAssistant
	case "tool_call":
		return EventTool
	case "turn_complete":
		return EventResult
	case "error":
		return EventError
	default:
		return EventUnknown
	}
}

func (a *Gemini) FormatToolUse(toolName string, args map[string]interface{}) string {
	switch toolName {
	case "read_file":
		return "▸ read " + stringArg(args, "path")
	case "search_file_content":
		return "▸ grep " + stringArg(args, "pattern")
	case "run_shell_command":
		return "▸ bash " + cleanCommand(stringArg(args, "command"))
	default:
		return "▸ " + toolName
	}
}

func (a *Gemini) StderrPatterns() []StderrPattern {
	return []StderrPattern{
		{Contains: "RESOURCE_EXHAUSTED", Message: "rate limited by the Gemini API"},
	}
}
