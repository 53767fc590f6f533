package retrieval

import (
	"math"
	"strings"
	"unicode"
)

func isTokenRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r >= 0x00C0 && r <= 0x024F && r != 0x00D7 && r != 0x00F7:
		return true
	case r >= 0x3040 && r <= 0x30FF, // kana
		r >= 0x3400 && r <= 0x4DBF, // CJK extension A
		r >= 0x4E00 && r <= 0x9FFF, // CJK unified
		r >= 0xAC00 && r <= 0xD7AF: // hangul
		return true
	}
	return false
}

// Tokenize lowercases s and splits it into tokens of at least two runes.
func Tokenize(s string) []string {
	out := make([]string, 0, 16)
	var cur []rune
	flush := func() {
		if len(cur) > 1 {
			out = append(out, string(cur))
		}
		cur = cur[:0]
	}
	for _, r := range strings.ToLower(s) {
		r = unicode.ToLower(r)
		if isTokenRune(r) {
			cur = append(cur, r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// KeywordScore rates a chunk against query tokens: the sum of 1+ln(tf) over
// query tokens present, divided by the square root of the chunk's token count.
func KeywordScore(queryTokens []string, chunkText string) float64 {
	tokens := Tokenize(chunkText)
	if len(tokens) == 0 || len(queryTokens) == 0 {
		return 0
	}
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	score := 0.0
	for _, q := range uniqueTokens(queryTokens) {
		if n := tf[q]; n > 0 {
			score += 1 + math.Log(float64(n))
		}
	}
	return score / math.Sqrt(float64(len(tokens)))
}
