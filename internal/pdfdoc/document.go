// Package pdfdoc abstracts the PDF backend behind small capability interfaces
// so outline and section code can run against fakes in tests.
package pdfdoc

import (
	"context"
	"errors"
)

var ErrUnresolved = errors.New("destination not resolved")

// Destination is a bookmark target: a named destination or an explicit array
// whose first element references a page.
type Destination struct {
	Name  string
	Array []any
}

type OutlineItem struct {
	Title string
	URL   string
	Dest  *Destination
	Items []OutlineItem
}

// PageTexter yields the text of 1-based pages.
type PageTexter interface {
	NumPages() int
	PageText(ctx context.Context, pageNumber int) (string, error)
}

// Document is everything the outline and section builders need from a PDF.
type Document interface {
	PageTexter
	Outline(ctx context.Context) ([]OutlineItem, error)
	Destination(ctx context.Context, name string) ([]any, error)
	// PageIndex resolves a page reference to a 0-based page index.
	PageIndex(ctx context.Context, ref any) (int, error)
	Close() error
}
