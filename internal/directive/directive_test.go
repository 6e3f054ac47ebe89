package directive

import (
	"testing"

	"github.com/fedi-cli/fedi/internal/model"
)

func TestParseRelayStandaloneLine(t *testing.T) {
	res := Parse("  [TO:LEAD] ready  ")
	if len(res.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(res.Tokens))
	}
	tok := res.Tokens[0]
	if tok.Kind != model.DirectiveRelay {
		t.Errorf("expected relay token, got %s", tok.Kind)
	}
	if tok.Target != model.AgentId("LEAD") {
		t.Errorf("expected target LEAD, got %s", tok.Target)
	}
	if tok.Content != "ready" {
		t.Errorf("expected content %q, got %q", "ready", tok.Content)
	}
}

func TestParseRelayEmptyContent(t *testing.T) {
	res := Parse("[TO:LEAD]")
	if len(res.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(res.Tokens))
	}
	if res.Tokens[0].Content != "" {
		t.Errorf("expected empty content, got %q", res.Tokens[0].Content)
	}
}

func TestParseIgnoresEmbeddedMention(t *testing.T) {
	res := Parse("Use the [TO:WORKER] pattern to escalate.")
	if len(res.Tokens) != 0 {
		t.Fatalf("expected no tokens, got %d: %+v", len(res.Tokens), res.Tokens)
	}
	if res.CleanedText != "Use the [TO:WORKER] pattern to escalate." {
		t.Errorf("expected text passed through unchanged, got %q", res.CleanedText)
	}
}

func TestParseIgnoresEmbeddedTaskMention(t *testing.T) {
	res := Parse("I'll [TASK:add] fix the rate limiter later")
	if len(res.Tokens) != 0 {
		t.Fatalf("expected no tokens for a mid-sentence [TASK:add], got %d: %+v", len(res.Tokens), res.Tokens)
	}
	if res.CleanedText != "I'll [TASK:add] fix the rate limiter later" {
		t.Errorf("expected text passed through unchanged, got %q", res.CleanedText)
	}

	res = Parse("we marked it [TASK:done] earlier today")
	if len(res.Tokens) != 0 {
		t.Fatalf("expected no tokens for a mid-sentence [TASK:done], got %d: %+v", len(res.Tokens), res.Tokens)
	}
}

func TestParseTaskAddMultiplePerLine(t *testing.T) {
	res := Parse("[TASK:add] write the parser [TASK:add] write the bus")
	if len(res.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(res.Tokens), res.Tokens)
	}
	if res.Tokens[0].Content != "write the parser" {
		t.Errorf("unexpected first token content: %q", res.Tokens[0].Content)
	}
	if res.Tokens[1].Content != "write the bus" {
		t.Errorf("unexpected second token content: %q", res.Tokens[1].Content)
	}
}

func TestParseTaskDoneRejectsShortContent(t *testing.T) {
	res := Parse("[TASK:done] ok")
	if len(res.Tokens) != 0 {
		t.Fatalf("expected short content to be rejected, got %+v", res.Tokens)
	}
}

func TestParseTaskTruncatesAt80Chars(t *testing.T) {
	long := ""
	for i := 0; i < 120; i++ {
		long += "x"
	}
	res := Parse("[TASK:add] " + long)
	if len(res.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(res.Tokens))
	}
	content := res.Tokens[0].Content
	if len(content) != maxContentLen {
		t.Errorf("expected truncated length %d, got %d", maxContentLen, len(content))
	}
	if content[len(content)-3:] != ellipsis {
		t.Errorf("expected ellipsis suffix, got %q", content)
	}
}

func TestParseStripsBackticksAndCollapsesWhitespace(t *testing.T) {
	res := Parse("[TASK:add] `fix`   the    bug")
	if len(res.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(res.Tokens))
	}
	if res.Tokens[0].Content != "fix the bug" {
		t.Errorf("expected sanitized content, got %q", res.Tokens[0].Content)
	}
}

func TestParseMultipleToTagsRouteIndependently(t *testing.T) {
	res := Parse("[TO:worker_a] do x\n[TO:worker_b] do y")
	if len(res.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(res.Tokens))
	}
	if res.Tokens[0].Target != model.AgentId("worker_a") || res.Tokens[1].Target != model.AgentId("worker_b") {
		t.Errorf("expected independent targets, got %+v", res.Tokens)
	}
}
