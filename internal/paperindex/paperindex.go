// Package paperindex builds and caches the per-paper chunk index.
package paperindex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"paperchat/internal/library"
	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/pdfdoc"
	"paperchat/internal/store"
	"paperchat/internal/util"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// TextCacheDir holds text extracted from PDFs that have no library
	// side file. Empty disables PDF extraction.
	TextCacheDir string
}

type Manager struct {
	store   *store.Store
	catalog library.Catalog
	opts    Options
	log     *logger.Logger
	group   singleflight.Group
	// extract is swapped in tests.
	extract func(path string) (string, error)
}

func NewManager(st *store.Store, catalog library.Catalog, opts Options, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{store: st, catalog: catalog, opts: opts, log: log, extract: pdfdoc.PlainText}
}

// EnsureIndex returns the paper's index, rebuilding and persisting it only when
// the text hash, source or title changed. Concurrent calls for one paper share
// a single build.
func (m *Manager) EnsureIndex(ctx context.Context, res library.Resolved) (models.PaperIndex, error) {
	v, err, _ := m.group.Do(res.PaperID, func() (any, error) {
		return m.ensure(ctx, res)
	})
	if err != nil {
		return models.PaperIndex{}, err
	}
	return v.(models.PaperIndex), nil
}

func (m *Manager) ensure(ctx context.Context, res library.Resolved) (models.PaperIndex, error) {
	text, source, err := m.loadText(ctx, res)
	if err != nil {
		return models.PaperIndex{}, err
	}
	text = util.NormalizeText(text)
	hash := util.ContentHash(text)
	title := strings.TrimSpace(res.Title)

	if cur, ok := m.store.Paper(res.PaperID); ok && len(cur.Chunks) > 0 &&
		cur.Hash == hash && cur.Source == source && cur.Title == title {
		return cur, nil
	}

	chunks := util.ChunkText(text, m.opts.ChunkSize, m.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return models.PaperIndex{}, fmt.Errorf("index %s: %w", res.PaperID, util.ErrContentUnavailable)
	}
	idx := models.PaperIndex{
		Hash:      hash,
		Title:     title,
		Source:    source,
		Chunks:    chunks,
		UpdatedAt: time.Now().UTC(),
	}
	if err := m.store.PutPaper(ctx, res.PaperID, idx); err != nil {
		return models.PaperIndex{}, fmt.Errorf("persist index %s: %w", res.PaperID, err)
	}
	m.log.Info("paper indexed", "paper_id", res.PaperID, "source", source, "chunks", len(chunks))
	return idx, nil
}

// loadText picks the cached full text, then the abstract, then the title.
func (m *Manager) loadText(ctx context.Context, res library.Resolved) (string, string, error) {
	if att := res.AttachmentItem; att != nil {
		text, err := m.catalog.FullText(ctx, *att)
		switch {
		case err == nil && strings.TrimSpace(text) != "":
			return text, models.SourcePDFCache, nil
		case err != nil && !errors.Is(err, util.ErrNotFound):
			m.log.Warn("cached full text unreadable", "paper_id", res.PaperID, "err", err)
		}
		if text, ok := m.extracted(res.PaperID, *att); ok {
			return text, models.SourcePDFCache, nil
		}
	}
	if a := strings.TrimSpace(res.PaperItem.Abstract); a != "" {
		return a, models.SourceAbstract, nil
	}
	if t := strings.TrimSpace(res.Title); t != "" && t != "Untitled" {
		return t, models.SourceTitle, nil
	}
	return "", "", fmt.Errorf("index %s: %w", res.PaperID, util.ErrContentUnavailable)
}

// extracted returns text pulled from the PDF itself, cached on disk by paper.
func (m *Manager) extracted(paperID string, att library.Item) (string, bool) {
	if m.opts.TextCacheDir == "" || !att.IsPDF() || att.Path == "" {
		return "", false
	}
	cachePath := filepath.Join(m.opts.TextCacheDir, util.ContentHash(paperID)[:24]+".txt")
	if text, err := library.ReadSideFile(cachePath); err == nil && strings.TrimSpace(text) != "" {
		return text, true
	}
	text, err := m.extract(att.Path)
	if err != nil {
		m.log.Warn("pdf text extraction failed", "paper_id", paperID, "path", att.Path, "err", err)
		return "", false
	}
	text = util.SanitizeText(text)
	if text == "" {
		return "", false
	}
	if err := util.WriteTextAtomic(cachePath, text); err != nil {
		m.log.Warn("text cache write failed", "paper_id", paperID, "err", err)
	}
	return text, true
}
