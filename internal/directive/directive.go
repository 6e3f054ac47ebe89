// Package directive extracts relay and task tokens from an agent's
// streamed text. It is pure: given the same lines it always returns the
// same tokens, with no I/O and no shared state.
package directive

import (
	"regexp"
	"strings"

	"github.com/fedi-cli/fedi/internal/model"
)

const (
	maxContentLen = 80
	minContentLen = 4
	ellipsis      = "..."
)

// Anchored to start-of-line (optional leading whitespace), exact-casing
// tags only. A tag appearing mid-sentence ("use the [TO:X] pattern") must
// not match; these patterns require the tag to open the line.
var (
	toPattern  = regexp.MustCompile(`^\s*\[TO:([A-Za-z0-9_]+)\]\s?(.*)$`)
	addPattern = regexp.MustCompile(`\[TASK:add\]\s*`)
	donePattern = regexp.MustCompile(`\[TASK:done\]\s*`)
	// taskLineAnchor gates parseTaskLine the same way toPattern gates a
	// [TO:...] line: the tag must open the line (after optional leading
	// whitespace). A tag appearing mid-sentence must not match. Once a
	// line passes this gate, addPattern/donePattern still find every
	// further tag on that same line (e.g. "[TASK:add] x [TASK:add] y").
	taskLineAnchor = regexp.MustCompile(`^\s*\[TASK:(?:add|done)\]`)
	boundary       = regexp.MustCompile(`\[TASK:(?:add|done)\]|\[TO:[A-Za-z0-9_]+\]`)
	backtick       = regexp.MustCompile("`")
	whitespace     = regexp.MustCompile(`\s+`)
)

// Result is the output of Parse: the tokens found, and the source text
// with every line that produced a directive token removed.
type Result struct {
	Tokens      []model.DirectiveToken
	CleanedText string
}

// Parse scans text line by line and extracts directive tokens. Lines with
// no recognized directive are passed through unchanged in CleanedText.
func Parse(text string) Result {
	lines := strings.Split(text, "\n")
	var tokens []model.DirectiveToken
	cleaned := make([]string, 0, len(lines))

	for i, line := range lines {
		if m := toPattern.FindStringSubmatch(line); m != nil {
			target := model.AgentId(m[1])
			content := strings.TrimSpace(m[2])
			tokens = append(tokens, model.DirectiveToken{
				Kind:            model.DirectiveRelay,
				Target:          target,
				Content:         content,
				SourceLineIndex: i,
			})
			continue
		}

		if taskLineAnchor.MatchString(line) {
			parsed, ok := parseTaskLine(line, i)
			if ok {
				tokens = append(tokens, parsed...)
				continue
			}
		}

		cleaned = append(cleaned, line)
	}

	return Result{Tokens: tokens, CleanedText: strings.Join(cleaned, "\n")}
}

// parseTaskLine handles one line that may contain multiple [TASK:add]/
// [TASK:done] tags, e.g. "[TASK:add] x [TASK:add] y". Each segment's text
// is sanitized independently; a segment that cleans to nothing is dropped.
func parseTaskLine(line string, lineIndex int) ([]model.DirectiveToken, bool) {
	type seg struct {
		kind  model.DirectiveKind
		start int
	}

	var segs []seg
	for _, m := range addPattern.FindAllStringIndex(line, -1) {
		segs = append(segs, seg{model.DirectiveTaskAdd, m[1]})
	}
	for _, m := range donePattern.FindAllStringIndex(line, -1) {
		segs = append(segs, seg{model.DirectiveTaskDone, m[1]})
	}
	if len(segs) == 0 {
		return nil, false
	}

	// Sort segments by start offset so boundaries are computed left-to-right.
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && segs[j].start < segs[j-1].start; j-- {
			segs[j], segs[j-1] = segs[j-1], segs[j]
		}
	}

	var tokens []model.DirectiveToken
	for _, s := range segs {
		end := len(line)
		if loc := boundary.FindStringIndex(line[s.start:]); loc != nil {
			end = s.start + loc[0]
		}
		raw := line[s.start:end]
		text, ok := sanitize(raw)
		if !ok {
			continue
		}
		tokens = append(tokens, model.DirectiveToken{
			Kind:            s.kind,
			Content:         text,
			SourceLineIndex: lineIndex,
		})
	}
	if len(tokens) == 0 {
		return nil, false
	}
	return tokens, true
}

// sanitize strips backticks and relay tags, collapses whitespace, caps the
// result at 80 characters with an ellipsis, and rejects anything under 4
// characters after cleaning.
func sanitize(raw string) (string, bool) {
	s := boundary.ReplaceAllString(raw, "")
	s = backtick.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) < minContentLen {
		return "", false
	}
	if len(s) > maxContentLen {
		s = strings.TrimSpace(s[:maxContentLen-len(ellipsis)]) + ellipsis
	}
	return s, true
}
