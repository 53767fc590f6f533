package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\n\txy"
	out := SanitizeText(in)
	if out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestNormalizeTextCollapsesWhitespace(t *testing.T) {
	in := "  Title\t\tline \x01 one  \r\n\r\n\r\n\n\nSecond   para \n"
	out := NormalizeText(in)
	want := "Title line one\n\nSecond para"
	if out != want {
		t.Fatalf("normalize: got %q want %q", out, want)
	}
}

func TestNormalizeTextEmpty(t *testing.T) {
	if got := NormalizeText(" \n\t "); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
