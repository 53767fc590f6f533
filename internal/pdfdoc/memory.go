package pdfdoc

import (
	"context"
	"fmt"
)

// PageRef is the page reference used by MemoryDocument destinations.
type PageRef struct {
	Index int
}

// MemoryDocument is an in-memory Document for tests and for text-only sources.
type MemoryDocument struct {
	Pages      []string
	Items      []OutlineItem
	Named      map[string][]any
	PageErrors map[int]error
}

func (m *MemoryDocument) NumPages() int { return len(m.Pages) }

func (m *MemoryDocument) PageText(ctx context.Context, pageNumber int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.PageErrors[pageNumber]; err != nil {
		return "", err
	}
	if pageNumber < 1 || pageNumber > len(m.Pages) {
		return "", fmt.Errorf("page %d out of range", pageNumber)
	}
	return m.Pages[pageNumber-1], nil
}

func (m *MemoryDocument) Outline(context.Context) ([]OutlineItem, error) {
	return m.Items, nil
}

func (m *MemoryDocument) Destination(_ context.Context, name string) ([]any, error) {
	if d, ok := m.Named[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: named destination %q", ErrUnresolved, name)
}

func (m *MemoryDocument) PageIndex(_ context.Context, ref any) (int, error) {
	switch r := ref.(type) {
	case PageRef:
		if r.Index >= 0 && r.Index < len(m.Pages) {
			return r.Index, nil
		}
	case int:
		if r >= 0 && r < len(m.Pages) {
			return r, nil
		}
	}
	return -1, fmt.Errorf("%w: page ref %v", ErrUnresolved, ref)
}

func (m *MemoryDocument) Close() error { return nil }

// At builds an explicit destination pointing at a 0-based page index.
func At(index int) *Destination {
	return &Destination{Array: []any{PageRef{Index: index}, "XYZ", 0, 0, 0}}
}
