package sections

import (
	"strings"
	"unicode"

	"paperchat/internal/models"

	"golang.org/x/text/unicode/norm"
)

var headingStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"to": {}, "with": {}, "by": {}, "from": {}, "at": {}, "as": {}, "is": {}, "are": {},
}

// folded is text reduced for matching, with each rune mapped back to its rune
// offset in the source.
type folded struct {
	runes  []rune
	source []int
}

func fold(s string) folded {
	var f folded
	space := true
	for i, r := range []rune(s) {
		if unicode.IsSpace(r) {
			if !space {
				f.runes = append(f.runes, ' ')
				f.source = append(f.source, i)
				space = true
			}
			continue
		}
		for _, d := range norm.NFKD.String(string(r)) {
			if unicode.Is(unicode.Mn, d) {
				continue
			}
			f.runes = append(f.runes, unicode.ToLower(d))
			f.source = append(f.source, i)
			space = false
		}
	}
	return f
}

func foldString(s string) string {
	return strings.TrimSpace(string(fold(s).runes))
}

// candidates returns up to three folded search strings for a heading title.
func candidates(title string) []string {
	raw := foldString(title)
	punct := strings.Join(strings.Fields(strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, raw)), " ")
	words := make([]string, 0, 8)
	for _, w := range strings.Fields(punct) {
		if _, ok := headingStopwords[w]; ok {
			continue
		}
		if isNumeric(w) {
			continue
		}
		words = append(words, w)
	}
	stripped := strings.Join(words, " ")

	out := make([]string, 0, 3)
	seen := map[string]struct{}{}
	for _, c := range []string{raw, punct, stripped} {
		if len([]rune(c)) < 3 {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func isNumeric(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}

func indexRunes(hay []rune, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(hay); i++ {
		if hay[i] != needle[0] {
			continue
		}
		match := true
		for j := 1; j < len(needle); j++ {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// matchHeadings anchors each section title in the full text after a moving
// cursor and slices the text between consecutive anchors. It returns the number
// of matched sections.
func (b *Builder) matchHeadings(flat []models.PdfSectionContext, fullText string) int {
	source := []rune(fullText)
	f := fold(fullText)
	type anchor struct {
		section int
		start   int
	}
	anchors := make([]anchor, 0, len(flat))
	cursor := 0
	for i, sec := range flat {
		best, bestEnd := -1, 0
		for _, c := range candidates(sec.Title) {
			needle := []rune(c)
			at := indexRunes(f.runes, needle, cursor)
			if at >= 0 && (best < 0 || at < best) {
				best, bestEnd = at, at+len(needle)
			}
		}
		if best < 0 {
			continue
		}
		anchors = append(anchors, anchor{section: i, start: f.source[best]})
		cursor = bestEnd
	}
	for k, a := range anchors {
		end := len(source)
		if k+1 < len(anchors) {
			end = anchors[k+1].start
		}
		if end < a.start {
			end = a.start
		}
		b.setContext(&flat[a.section], string(source[a.start:end]))
	}
	return len(anchors)
}
