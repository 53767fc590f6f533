// Package sections extracts per-bookmark text spans from a PDF.
package sections

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/pdfdoc"
	"paperchat/internal/util"
)

const previewRunes = 280

type Options struct {
	MaxPages    int
	MaxChars    int
	MaxSections int
}

func DefaultOptions() Options {
	return Options{MaxPages: 12, MaxChars: 9000, MaxSections: 24}
}

// Fallbacks are consulted in order when the primary page texts yield nothing.
type Fallbacks struct {
	// Alternate re-opens the document with a different loader.
	Alternate func(ctx context.Context) (pdfdoc.PageTexter, error)
	// FullText returns the whole document text for heading matching.
	FullText func(ctx context.Context) (string, error)
}

type Builder struct {
	opts Options
	log  *logger.Logger
}

func NewBuilder(opts Options, log *logger.Logger) *Builder {
	def := DefaultOptions()
	if opts.MaxPages <= 0 {
		opts.MaxPages = def.MaxPages
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{opts: opts, log: log}
}

// Flatten lists the tree depth-first with dotted paths ("1", "1.2", ...).
func Flatten(nodes []models.PdfOutlineNode) []models.PdfSectionContext {
	out := make([]models.PdfSectionContext, 0, len(nodes))
	var walk func([]models.PdfOutlineNode, string)
	walk = func(level []models.PdfOutlineNode, prefix string) {
		for i, n := range level {
			path := strconv.Itoa(i + 1)
			if prefix != "" {
				path = prefix + "." + path
			}
			sec := models.PdfSectionContext{Title: n.Title, Depth: n.Depth, Path: path}
			if n.PageNumber != nil {
				sec.PageNumber = models.IntPtr(*n.PageNumber)
			}
			out = append(out, sec)
			walk(n.Children, path)
		}
	}
	walk(nodes, "")
	return out
}

// ResolveRanges sets start and end pages. A section ends one page before the
// next later section at the same or shallower depth that has a page, or on the
// last page of the document.
func ResolveRanges(flat []models.PdfSectionContext, numPages int) {
	for i := range flat {
		if flat[i].PageNumber == nil {
			continue
		}
		start := *flat[i].PageNumber
		end := numPages
		for j := i + 1; j < len(flat); j++ {
			if flat[j].Depth <= flat[i].Depth && flat[j].PageNumber != nil {
				end = *flat[j].PageNumber - 1
				break
			}
		}
		if end < start {
			end = start
		}
		flat[i].StartPageNumber = models.IntPtr(start)
		flat[i].EndPageNumber = models.IntPtr(end)
	}
}

// Limit keeps at most n sections, preferring shallower ones, and returns them
// in document order. Ranges must already be resolved on the full list.
func Limit(flat []models.PdfSectionContext, n int) []models.PdfSectionContext {
	if n <= 0 || len(flat) <= n {
		return flat
	}
	order := make([]int, len(flat))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return flat[order[a]].Depth < flat[order[b]].Depth })
	keep := order[:n]
	sort.Ints(keep)
	out := make([]models.PdfSectionContext, 0, n)
	for _, i := range keep {
		out = append(out, flat[i])
	}
	return out
}

// Build returns one section context per outline node. Fallbacks run only when
// no section with a page range got any text.
func (b *Builder) Build(ctx context.Context, doc pdfdoc.PageTexter, nodes []models.PdfOutlineNode, fb Fallbacks) ([]models.PdfSectionContext, error) {
	flat := Flatten(nodes)
	if len(flat) == 0 {
		return flat, nil
	}
	ResolveRanges(flat, doc.NumPages())
	if dropped := len(flat) - b.opts.MaxSections; b.opts.MaxSections > 0 && dropped > 0 {
		flat = Limit(flat, b.opts.MaxSections)
		b.log.Debug("outline sections capped", "kept", len(flat), "dropped", dropped)
	}

	if err := b.fill(ctx, doc, flat); err != nil {
		return nil, err
	}
	if hasText(flat) {
		return flat, nil
	}

	if fb.Alternate != nil {
		alt, err := fb.Alternate(ctx)
		if err != nil {
			b.log.Warn("alternate loader unavailable", "err", err)
		} else {
			if err := b.fill(ctx, alt, flat); err != nil {
				return nil, err
			}
			if hasText(flat) {
				b.log.Info("sections extracted with alternate loader", "sections", len(flat))
				return flat, nil
			}
		}
	}

	if fb.FullText != nil {
		text, err := fb.FullText(ctx)
		if err != nil {
			b.log.Warn("full text unavailable for heading match", "err", err)
			return flat, nil
		}
		matched := b.matchHeadings(flat, text)
		b.log.Info("sections matched by heading", "matched", matched, "sections", len(flat))
	}
	return flat, nil
}

func (b *Builder) fill(ctx context.Context, doc pdfdoc.PageTexter, flat []models.PdfSectionContext) error {
	cache := map[int]string{}
	pageText := func(n int) (string, error) {
		if s, ok := cache[n]; ok {
			return s, nil
		}
		s, err := doc.PageText(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			b.log.Debug("page text failed", "page", n, "err", err)
			s = ""
		}
		s = util.NormalizeText(s)
		cache[n] = s
		return s, nil
	}

	for i := range flat {
		sec := &flat[i]
		sec.ContextText, sec.PreviewText, sec.Truncated = "", "", false
		if sec.StartPageNumber == nil {
			continue
		}
		start, end := *sec.StartPageNumber, *sec.EndPageNumber
		var parts []string
		size := 0
		for p := start; p <= end; p++ {
			if p-start >= b.opts.MaxPages {
				sec.Truncated = true
				break
			}
			text, err := pageText(p)
			if err != nil {
				return fmt.Errorf("extract section %q: %w", sec.Title, err)
			}
			if text == "" {
				continue
			}
			parts = append(parts, text)
			size += len([]rune(text))
			if size >= b.opts.MaxChars {
				if size > b.opts.MaxChars || p < end {
					sec.Truncated = true
				}
				break
			}
		}
		b.setContext(sec, strings.Join(parts, "\n\n"))
	}
	return nil
}

func (b *Builder) setContext(sec *models.PdfSectionContext, text string) {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > b.opts.MaxChars {
		text = strings.TrimSpace(string(runes[:b.opts.MaxChars]))
		sec.Truncated = true
	}
	sec.ContextText = text
	sec.PreviewText = preview(text)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewRunes {
		return strings.TrimSpace(string(runes[:previewRunes]))
	}
	return text
}

func hasText(flat []models.PdfSectionContext) bool {
	for _, s := range flat {
		if s.StartPageNumber != nil && strings.TrimSpace(s.ContextText) != "" {
			return true
		}
	}
	return false
}

// Usable returns the sections with a title and non-empty context text.
func Usable(flat []models.PdfSectionContext) []models.PdfSectionContext {
	out := make([]models.PdfSectionContext, 0, len(flat))
	for _, s := range flat {
		if strings.TrimSpace(s.Title) == "" || strings.TrimSpace(s.ContextText) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
