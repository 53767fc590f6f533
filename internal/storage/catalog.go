package storage

import (
	"context"
	"path/filepath"
	"strings"

	"paperchat/internal/library"
	"paperchat/internal/util"
)

const attachmentSuffix = ":pdf"

// Catalog exposes database papers as library items. Each paper has one PDF
// attachment "<paperID>:pdf" located at <pdfRoot>/<filename>.
type Catalog struct {
	db      *DB
	papers  *PaperRepo
	chunks  *ChunkRepo
	pdfRoot string
}

func NewCatalog(db *DB, pdfRoot string) *Catalog {
	return &Catalog{db: db, papers: NewPaperRepo(db), chunks: NewChunkRepo(db), pdfRoot: pdfRoot}
}

// Close is a no-op; the caller owns the DB.
func (c *Catalog) Close() error { return nil }

func (c *Catalog) Item(ctx context.Context, id string) (library.Item, error) {
	if paperID, ok := strings.CutSuffix(id, attachmentSuffix); ok {
		p, err := c.papers.GetPaper(ctx, paperID)
		if err != nil {
			return library.Item{}, err
		}
		return c.attachment(p), nil
	}
	p, err := c.papers.GetPaper(ctx, id)
	if err != nil {
		return library.Item{}, err
	}
	return paperItem(p), nil
}

func (c *Catalog) Children(ctx context.Context, parentID string) ([]library.Item, error) {
	p, err := c.papers.GetPaper(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return []library.Item{c.attachment(p)}, nil
}

// FullText joins the chunks stored for the paper.
func (c *Catalog) FullText(ctx context.Context, attachment library.Item) (string, error) {
	text, err := c.chunks.PaperText(ctx, attachment.ParentID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", util.ErrNotFound
	}
	return text, nil
}

// List returns processed papers for one corpus, or all corpora when empty.
func (c *Catalog) List(ctx context.Context, corpusID string, limit int) ([]library.Item, error) {
	papers, err := c.papers.ListPapers(ctx, corpusID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]library.Item, 0, len(papers))
	for _, p := range papers {
		out = append(out, paperItem(p))
	}
	return out, nil
}

func paperItem(p PaperRecord) library.Item {
	it := library.Item{
		ID:       p.PaperID,
		Kind:     library.KindPaper,
		Title:    p.Title,
		Abstract: p.Abstract,
		Authors:  p.Authors,
	}
	if it.Title == "" {
		it.Title = strings.TrimSuffix(p.Filename, filepath.Ext(p.Filename))
	}
	if p.Year != nil {
		it.Year = *p.Year
	}
	return it
}

func (c *Catalog) attachment(p PaperRecord) library.Item {
	it := library.Item{
		ID:          p.PaperID + attachmentSuffix,
		ParentID:    p.PaperID,
		Kind:        library.KindAttachment,
		Title:       p.Filename,
		ContentType: library.ContentTypePDF,
	}
	if c.pdfRoot != "" && p.Filename != "" {
		path := filepath.Join(c.pdfRoot, filepath.Base(p.Filename))
		if util.FileExists(path) {
			it.Path = path
		}
	}
	return it
}

var _ library.Catalog = (*Catalog)(nil)
