package conversation

import (
	"strings"
	"testing"

	"paperchat/internal/models"
)

func pairs(n int) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out,
			models.ChatMessage{Role: models.RoleUser, Content: "question"},
			models.ChatMessage{Role: models.RoleAssistant, Content: "answer [C1]"},
		)
	}
	return out
}

func TestShouldRefreshMemory(t *testing.T) {
	refresh := func(n int, mem models.ConversationMemory, has bool, threshold int) bool {
		return ShouldRefreshMemory(pairs(n), n, mem, has, threshold)
	}
	if refresh(5, models.ConversationMemory{}, false, 6) {
		t.Fatalf("five pairs must not create memory at threshold 6")
	}
	if !refresh(6, models.ConversationMemory{}, false, 6) {
		t.Fatalf("six pairs must create memory at threshold 6")
	}
	mem := models.ConversationMemory{Summary: "s", TurnCount: 6}
	if refresh(11, mem, true, 6) {
		t.Fatalf("five new pairs since last refresh must not refresh")
	}
	if !refresh(12, mem, true, 6) {
		t.Fatalf("six new pairs since last refresh must refresh")
	}
	if refresh(1, models.ConversationMemory{}, false, 1) {
		t.Fatalf("fewer than four messages never refresh")
	}
}

func TestShouldRefreshMemoryAfterTrimming(t *testing.T) {
	// The stored list is capped at 40 pairs but the running total keeps growing.
	mem := models.ConversationMemory{Summary: "s", TurnCount: 36}
	if ShouldRefreshMemory(pairs(40), 40, mem, true, 6) {
		t.Fatalf("four new turns must not refresh")
	}
	if !ShouldRefreshMemory(pairs(40), 42, mem, true, 6) {
		t.Fatalf("six new turns must refresh even when the stored list stopped growing")
	}
}

func TestEnforceEvidence(t *testing.T) {
	chunks := []models.TextChunk{
		{ID: "chunk-1", Text: "The model uses multi-head attention. It is fast."},
		{ID: "chunk-2", Text: "Training took three days on eight GPUs."},
		{ID: "chunk-3", Text: "BLEU improved by two points."},
		{ID: "chunk-4", Text: "A fourth chunk never shown."},
	}
	cited := "It uses attention [C1]."
	if got := EnforceEvidence(cited, chunks, "attention?", "Note:"); got != cited {
		t.Fatalf("cited answer must be unchanged, got %q", got)
	}

	got := EnforceEvidence("It uses attention.", chunks, "what attention does the model use?", "Note:")
	if !strings.HasPrefix(got, "It uses attention.\n\nNote:") {
		t.Fatalf("original text must be kept: %q", got)
	}
	for _, label := range []string{"[C1]", "[C2]", "[C3]"} {
		if !strings.Contains(got, label) {
			t.Fatalf("missing %s in %q", label, got)
		}
	}
	if strings.Contains(got, "[C4]") {
		t.Fatalf("at most three snippets: %q", got)
	}
	if !strings.Contains(got, "multi-head attention") {
		t.Fatalf("snippet should favour matching sentence: %q", got)
	}
}

func TestFormatContextAndHistory(t *testing.T) {
	ctx := FormatContext([]models.TextChunk{{Text: " a "}, {Text: "b"}})
	if ctx != "[C1] a\n\n[C2] b" {
		t.Fatalf("unexpected context %q", ctx)
	}
	h := History(pairs(4), 2)
	if len(h) != 4 || h[0].Role != models.RoleUser {
		t.Fatalf("unexpected history %+v", h)
	}
	if Turns(pairs(3)) != 3 {
		t.Fatalf("turn count")
	}
}
