package agents

import "strings"

// stringArg reads a string field out of a decoded tool-call argument map,
// returning "" if absent or not a string.
func stringArg(args map[string]interface{}, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// cleanCommand trims a shell command for display, collapsing internal
// newlines so a multi-line heredoc renders as one action line.
func cleanCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	cmd = strings.ReplaceAll(cmd, "\n", " ")
	if len(cmd) > 120 {
		cmd = cmd[:117] + "..."
	}
	return cmd
}
