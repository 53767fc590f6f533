// Package outline turns a PDF bookmark tree into PdfOutlineNode values with
// resolved 1-based page numbers.
package outline

import (
	"context"
	"runtime"
	"strings"

	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/pdfdoc"
)

// yieldEvery is the number of visited nodes between scheduler yields.
const yieldEvery = 100

type Extractor struct {
	log *logger.Logger
}

func NewExtractor(log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{log: log}
}

// Extract walks the bookmark tree depth-first in source order. A document
// without bookmarks yields an empty slice. Nodes whose destination cannot be
// resolved keep a nil page number.
func (e *Extractor) Extract(ctx context.Context, doc pdfdoc.Document) ([]models.PdfOutlineNode, error) {
	items, err := doc.Outline(ctx)
	if err != nil {
		return nil, err
	}
	w := &walker{ctx: ctx, doc: doc, log: e.log, named: map[string]*int{}}
	nodes, err := w.level(items, 0)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []models.PdfOutlineNode{}
	}
	return nodes, nil
}

// Extract is a convenience wrapper with a silent logger.
func Extract(ctx context.Context, doc pdfdoc.Document) ([]models.PdfOutlineNode, error) {
	return NewExtractor(nil).Extract(ctx, doc)
}

type walker struct {
	ctx     context.Context
	doc     pdfdoc.Document
	log     *logger.Logger
	visited int
	named   map[string]*int
}

func (w *walker) level(items []pdfdoc.OutlineItem, depth int) ([]models.PdfOutlineNode, error) {
	out := make([]models.PdfOutlineNode, 0, len(items))
	for _, item := range items {
		w.visited++
		if w.visited%yieldEvery == 0 {
			runtime.Gosched()
			if err := w.ctx.Err(); err != nil {
				return nil, err
			}
		}
		node := models.PdfOutlineNode{
			Title:    strings.TrimSpace(item.Title),
			URL:      item.URL,
			Depth:    depth,
			Children: []models.PdfOutlineNode{},
		}
		node.PageNumber = w.resolve(item)
		if len(item.Items) > 0 {
			children, err := w.level(item.Items, depth+1)
			if err != nil {
				return nil, err
			}
			node.Children = children
		}
		out = append(out, node)
	}
	return out, nil
}

func (w *walker) resolve(item pdfdoc.OutlineItem) *int {
	if item.Dest == nil {
		return nil
	}
	if item.Dest.Name != "" && len(item.Dest.Array) == 0 {
		if page, ok := w.named[item.Dest.Name]; ok {
			return page
		}
		arr, err := w.doc.Destination(w.ctx, item.Dest.Name)
		if err != nil {
			w.log.Debug("outline destination unresolved", "title", item.Title, "dest", item.Dest.Name, "err", err)
			w.named[item.Dest.Name] = nil
			return nil
		}
		page := w.pageFromArray(item.Title, arr)
		w.named[item.Dest.Name] = page
		return page
	}
	return w.pageFromArray(item.Title, item.Dest.Array)
}

func (w *walker) pageFromArray(title string, arr []any) *int {
	if len(arr) == 0 {
		return nil
	}
	idx, err := w.doc.PageIndex(w.ctx, arr[0])
	if err != nil || idx < 0 {
		w.log.Debug("outline page ref unresolved", "title", title, "err", err)
		return nil
	}
	return models.IntPtr(idx + 1)
}

// Count returns the number of nodes in the tree.
func Count(nodes []models.PdfOutlineNode) int {
	n := 0
	for _, node := range nodes {
		n += 1 + Count(node.Children)
	}
	return n
}
