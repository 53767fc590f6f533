// Package conversation builds chat prompts and applies the memory and
// evidence policies. It holds no state.
package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"paperchat/internal/models"
	"paperchat/internal/providers"
	"paperchat/internal/util"
)

const (
	minMessagesForMemory = 4
	maxEvidenceSnippets  = 3
	evidenceSnippetRunes = 240
)

var citationMarker = regexp.MustCompile(`\[C\d+\]`)

// Turns counts completed user/assistant pairs.
func Turns(msgs []models.ChatMessage) int {
	return models.CountTurns(msgs)
}

// ShouldRefreshMemory reports whether enough new turns have accumulated since
// the last memory refresh. turns is the paper's running total, which keeps
// growing after old messages are trimmed. A missing memory counts as zero
// summarised turns.
func ShouldRefreshMemory(msgs []models.ChatMessage, turns int, mem models.ConversationMemory, hasMemory bool, threshold int) bool {
	if len(msgs) < minMessagesForMemory {
		return false
	}
	if threshold <= 0 {
		threshold = 1
	}
	summarised := 0
	if hasMemory {
		summarised = mem.TurnCount
	}
	return turns-summarised >= threshold
}

// Label returns the citation label for the i-th (0-based) context chunk.
func Label(i int) string {
	return fmt.Sprintf("[C%d]", i+1)
}

// FormatContext renders chunks as labelled excerpts.
func FormatContext(chunks []models.TextChunk) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(Label(i))
		b.WriteByte(' ')
		b.WriteString(strings.TrimSpace(ch.Text))
	}
	return b.String()
}

func HasCitation(answer string) bool {
	return citationMarker.MatchString(answer)
}

// EnforceEvidence appends notice and up to three labelled snippets when the
// answer cites nothing. A cited answer is returned unchanged.
func EnforceEvidence(answer string, chunks []models.TextChunk, question, notice string) string {
	if HasCitation(answer) || len(chunks) == 0 {
		return answer
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(answer, "\n "))
	b.WriteString("\n\n")
	b.WriteString(notice)
	for i, ch := range chunks {
		if i >= maxEvidenceSnippets {
			break
		}
		snippet := util.DisplayEvidenceSnippet(ch.Text, question, evidenceSnippetRunes)
		if snippet == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- %s %s", Label(i), snippet)
	}
	return b.String()
}

// History returns the last turns user/assistant pairs as chat messages.
func History(msgs []models.ChatMessage, turns int) []providers.Message {
	if turns <= 0 {
		return nil
	}
	start := len(msgs) - 2*turns
	if start < 0 {
		start = 0
	}
	out := make([]providers.Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, providers.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// MemoryBlock formats stored memory for the ask prompt.
func MemoryBlock(mem models.ConversationMemory, ok bool) string {
	if !ok || strings.TrimSpace(mem.Summary) == "" {
		return ""
	}
	return "Conversation memory:\n" + strings.TrimSpace(mem.Summary) + "\n\n"
}

// Transcript renders the last window messages for a memory refresh.
func Transcript(msgs []models.ChatMessage, window int) string {
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, util.DisplaySnippet(m.Content, 1200))
	}
	return strings.TrimSpace(b.String())
}
