package agents

var _ Agent = (*Auggie)(nil)

// Auggie drives Augment's CLI, the agent this codebase's lineage was
// originally built around.
type Auggie struct{}

// NewAuggie returns the Auggie adapter.
func NewAuggie() *Auggie { return &Auggie{} }

func (a *Auggie) ID() string           { return "auggie" }
func (a *Auggie) DefaultModel() string { return "auggie-default" }

func (a *Auggie) BuildCommand(opts CommandOptions) Command {
	args := []string{"--print", "--output-format", "json"}
	model := opts.Model
	if model == "" {
		model = a.DefaultModel()
	}
	args = append(args, "--model", model)
	if opts.SessionID != "" {
		args = append(args, "--session-id", opts.SessionID)
	}
	args = append(args, opts.Prompt)
	return Command{Path: "auggie", Args: args}
}

func (a *Auggie) MapEventType(eventType string) EventClass {
	switch eventType {
	case "session.created", "init":
		return EventInit
	case "assistant_message", "assistant":
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

func (a *Auggie) FormatToolUse(toolName string, args map[string]interface{}) string {
	switch toolName {
	case "view":
		return "▸ read " + stringArg(args, "path")
	case "bash":
		return "▸ bash " + cleanCommand(stringArg(args, "command"))
	default:
		return "▸ " + toolName
	}
}

func (a *Auggie) StderrPatterns() []StderrPattern {
	return []StderrPattern{
		{Contains: "capacity", Message: "Augment API at capacity, retrying"},
	}
}
