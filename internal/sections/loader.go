package sections

import (
	"context"
	"fmt"

	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/outline"
	"paperchat/internal/pdfdoc"
)

// Loader opens PDFs from disk and runs outline extraction and section
// building with the pdftotext and full-text fallbacks wired in.
type Loader struct {
	builder *Builder
	outline *outline.Extractor
	log     *logger.Logger
	open    func(path string) (pdfdoc.Document, error)
}

func NewLoader(opts Options, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		builder: NewBuilder(opts, log),
		outline: outline.NewExtractor(log),
		log:     log,
		open:    pdfdoc.Open,
	}
}

func (l *Loader) Outline(ctx context.Context, path string) ([]models.PdfOutlineNode, error) {
	doc, err := l.open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return l.outline.Extract(ctx, doc)
}

// Sections returns one context per bookmark, or an empty slice for a PDF
// without bookmarks.
func (l *Loader) Sections(ctx context.Context, path string) ([]models.PdfSectionContext, error) {
	doc, err := l.open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	nodes, err := l.outline.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}
	if len(nodes) == 0 {
		return []models.PdfSectionContext{}, nil
	}
	numPages := doc.NumPages()
	fb := Fallbacks{
		Alternate: func(context.Context) (pdfdoc.PageTexter, error) {
			return pdfdoc.NewPdftotextPages(path, numPages)
		},
		FullText: func(context.Context) (string, error) {
			return pdfdoc.PlainText(path)
		},
	}
	return l.builder.Build(ctx, doc, nodes, fb)
}
