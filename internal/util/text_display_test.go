package util

import (
	"strings"
	"testing"
)

func TestDisplaySnippet(t *testing.T) {
	in := "Hello\x00   world \n\t again"
	out := DisplaySnippet(in, 100)
	if out != "Hello world again" {
		t.Fatalf("unexpected snippet: %q", out)
	}
	if got := DisplaySnippet(strings.Repeat("x", 50), 10); got != strings.Repeat("x", 10)+"..." {
		t.Fatalf("expected truncation, got %q", got)
	}
}

func TestDisplayEvidenceSnippet(t *testing.T) {
	chunk := "This paper studies edge computing in cloud schedulers. It evaluates latency reduction for edge workloads. Unrelated appendix text."
	q := "What are edge workload latency results?"
	out := DisplayEvidenceSnippet(chunk, q, 200)
	if !strings.Contains(strings.ToLower(out), "latency") {
		t.Fatalf("expected relevance to latency in snippet, got: %q", out)
	}
}
