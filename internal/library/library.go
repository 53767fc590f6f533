// Package library describes the reference library a paper comes from and
// resolves a selected item to its paper and PDF attachment.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"paperchat/internal/util"
)

const (
	KindPaper      = "paper"
	KindAttachment = "attachment"

	ContentTypePDF = "application/pdf"

	// FullTextCacheName is the extracted-text side file Zotero keeps next to
	// each indexed attachment.
	FullTextCacheName = ".zotero-ft-cache"
)

type Item struct {
	ID          string `json:"id"`
	ParentID    string `json:"parentId,omitempty"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Abstract    string `json:"abstract,omitempty"`
	Authors     string `json:"authors,omitempty"`
	Year        int    `json:"year,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Path        string `json:"path,omitempty"`
}

func (it Item) IsPDF() bool {
	if it.Kind != KindAttachment {
		return false
	}
	return it.ContentType == ContentTypePDF || strings.EqualFold(filepath.Ext(it.Path), ".pdf")
}

// Catalog is a read-only view of a reference library.
type Catalog interface {
	Item(ctx context.Context, id string) (Item, error)
	Children(ctx context.Context, parentID string) ([]Item, error)
	// FullText returns cached extracted text for an attachment, or
	// util.ErrNotFound when the library holds none.
	FullText(ctx context.Context, attachment Item) (string, error)
	Close() error
}

type Resolved struct {
	PaperID        string `json:"paperId"`
	Title          string `json:"title"`
	PaperItem      Item   `json:"paperItem"`
	AttachmentItem *Item  `json:"attachmentItem,omitempty"`
}

// Resolve maps an attachment to its parent paper, or a paper to its first PDF
// attachment.
func Resolve(ctx context.Context, c Catalog, itemID string) (Resolved, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Resolved{}, fmt.Errorf("item id required: %w", util.ErrNotFound)
	}
	it, err := c.Item(ctx, itemID)
	if err != nil {
		return Resolved{}, fmt.Errorf("resolve item %s: %w", itemID, err)
	}

	var res Resolved
	if it.Kind == KindAttachment {
		att := it
		res.AttachmentItem = &att
		res.PaperItem = it
		if it.ParentID != "" {
			parent, err := c.Item(ctx, it.ParentID)
			if err != nil && !errors.Is(err, util.ErrNotFound) {
				return Resolved{}, fmt.Errorf("resolve parent %s: %w", it.ParentID, err)
			}
			if err == nil {
				res.PaperItem = parent
			}
		}
	} else {
		res.PaperItem = it
		children, err := c.Children(ctx, it.ID)
		if err != nil {
			return Resolved{}, fmt.Errorf("list attachments of %s: %w", it.ID, err)
		}
		for _, ch := range children {
			if ch.IsPDF() {
				att := ch
				res.AttachmentItem = &att
				break
			}
		}
	}

	res.PaperID = res.PaperItem.ID
	res.Title = strings.TrimSpace(res.PaperItem.Title)
	if res.Title == "" && res.AttachmentItem != nil {
		res.Title = strings.TrimSpace(res.AttachmentItem.Title)
	}
	if res.Title == "" {
		res.Title = "Untitled"
	}
	return res, nil
}

// ReadSideFile reads a cached text file, mapping a missing file to
// util.ErrNotFound.
func ReadSideFile(path string) (string, error) {
	if path == "" {
		return "", util.ErrNotFound
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", util.ErrNotFound
		}
		return "", fmt.Errorf("read cached text: %w", err)
	}
	return string(b), nil
}
