package util

import "strings"

// SanitizeText removes NUL bytes and control characters other than common whitespace.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 || ch == 0x7f {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

// NormalizeText prepares extracted paper text for chunking: control characters
// and tabs become spaces, runs of spaces collapse, lines are right-trimmed and at
// most one blank line survives between paragraphs.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	space := false
	newlines := 0
	for _, ch := range s {
		switch {
		case ch == '\n':
			space = false
			newlines++
			continue
		case ch == '\t' || ch == ' ' || ch == 0xa0 || ch < 0x20 || ch == 0x7f:
			space = true
			continue
		}
		if newlines > 0 {
			if b.Len() > 0 {
				if newlines > 2 {
					newlines = 2
				}
				b.WriteString(strings.Repeat("\n", newlines))
			}
			newlines = 0
			space = false
		} else if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(ch)
	}
	return b.String()
}
