package agents

var _ Agent = (*Copilot)(nil)

// Copilot drives GitHub's Copilot CLI.
type Copilot struct{}

// NewCopilot returns the Copilot adapter.
func NewCopilot() *Copilot { return &Copilot{} }

func (a *Copilot) ID() string           { return "copilot" }
func (a *Copilot) DefaultModel() string { return "gpt-5" }

func (a *Copilot) BuildCommand(opts CommandOptions) Command {
	args := []string{"--stream-json"}
	model := opts.Model
	if model == "" {
		model = a.DefaultModel()
	}
	args = append(args, "--model", model)
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}
	args = append(args, "-p", opts.Prompt)
	return Command{Path: "copilot", Args: args}
}

func (a *Copilot) MapEventType(eventType string) EventClass {
	switch eventType {
	case "init":
		return EventInit
	case "message":
		return EventAssistant
	case "toolCall":
		return EventTool
	case "result":
		return EventResult
	case "error":
		return EventError
	default:
		return EventUnknown
	}
}

func (a *Copilot) FormatToolUse(toolName string, args map[string]interface{}) string {
	switch toolName {
	case "read_file":
		return "▸ read " + stringArg(args, "path")
	case "run_command":
		return "▸ bash " + cleanCommand(stringArg(args, "command"))
	default:
		return "▸ " + toolName
	}
}

func (a *Copilot) StderrPatterns() []StderrPattern {
	return []StderrPattern{
		{Contains: "rate limit", Message: "rate limited by the Copilot API"},
	}
}
