package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"paperchat/internal/logger"
	"paperchat/internal/util"
)

// DirCatalog serves a directory of PDFs. Each file "<stem>.pdf" is a paper
// with ID "<stem>" and one attachment with ID "<stem>.pdf". An optional
// "<stem>.json" holds {title, abstract, authors, year}; extracted text is read
// from "<stem>.txt" or, for a PDF alone in its own folder, the Zotero-style
// side file.
type DirCatalog struct {
	root string
	log  *logger.Logger
}

type dirMeta struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Authors  string `json:"authors"`
	Year     int    `json:"year"`
}

func NewDirCatalog(root string, log *logger.Logger) (*DirCatalog, error) {
	if log == nil {
		log = logger.Nop()
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open library dir: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("library path %s is not a directory", root)
	}
	return &DirCatalog{root: root, log: log.With("component", "library")}, nil
}

func (d *DirCatalog) Close() error { return nil }

// List returns every paper under the root in lexical order.
func (d *DirCatalog) List(ctx context.Context) ([]Item, error) {
	paths := make([]string, 0)
	err := filepath.WalkDir(d.root, func(path string, e os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() {
			if path != d.root && strings.HasPrefix(e.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}
	sort.Strings(paths)
	out := make([]Item, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			continue
		}
		out = append(out, d.paper(stemOf(filepath.ToSlash(rel)), p))
	}
	return out, nil
}

func (d *DirCatalog) Item(ctx context.Context, id string) (Item, error) {
	_ = ctx
	id = strings.Trim(filepath.ToSlash(id), "/")
	if id == "" || strings.Contains(id, "..") {
		return Item{}, util.ErrNotFound
	}
	if strings.EqualFold(filepath.Ext(id), ".pdf") {
		pdfPath := filepath.Join(d.root, filepath.FromSlash(id))
		if !util.FileExists(pdfPath) {
			return Item{}, util.ErrNotFound
		}
		return d.attachment(stemOf(id), pdfPath), nil
	}
	pdfPath, ok := d.findPDF(id)
	if !ok {
		return Item{}, util.ErrNotFound
	}
	return d.paper(id, pdfPath), nil
}

func (d *DirCatalog) Children(ctx context.Context, parentID string) ([]Item, error) {
	_ = ctx
	pdfPath, ok := d.findPDF(strings.Trim(filepath.ToSlash(parentID), "/"))
	if !ok {
		return []Item{}, nil
	}
	return []Item{d.attachment(parentID, pdfPath)}, nil
}

func (d *DirCatalog) FullText(ctx context.Context, attachment Item) (string, error) {
	_ = ctx
	if attachment.Path == "" {
		return "", util.ErrNotFound
	}
	for _, p := range d.sideFiles(attachment.Path) {
		text, err := ReadSideFile(p)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, util.ErrNotFound) {
			return "", err
		}
	}
	return "", util.ErrNotFound
}

func (d *DirCatalog) sideFiles(pdfPath string) []string {
	out := []string{strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".txt"}
	dir := filepath.Dir(pdfPath)
	if dir != filepath.Clean(d.root) && countPDFs(dir) == 1 {
		out = append(out, filepath.Join(dir, FullTextCacheName))
	}
	return out
}

func (d *DirCatalog) findPDF(stem string) (string, bool) {
	for _, ext := range []string{".pdf", ".PDF"} {
		p := filepath.Join(d.root, filepath.FromSlash(stem)+ext)
		if util.FileExists(p) {
			return p, true
		}
	}
	return "", false
}

func (d *DirCatalog) paper(stem, pdfPath string) Item {
	meta := d.meta(pdfPath)
	title := meta.Title
	if title == "" {
		title = titleFromStem(stem)
	}
	return Item{ID: stem, Kind: KindPaper, Title: title, Abstract: meta.Abstract, Authors: meta.Authors, Year: meta.Year}
}

func (d *DirCatalog) attachment(stem, pdfPath string) Item {
	return Item{
		ID:          stem + filepath.Ext(pdfPath),
		ParentID:    stem,
		Kind:        KindAttachment,
		Title:       filepath.Base(pdfPath),
		ContentType: ContentTypePDF,
		Path:        pdfPath,
	}
}

func (d *DirCatalog) meta(pdfPath string) dirMeta {
	var m dirMeta
	path := strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".json"
	b, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	if err := json.Unmarshal(b, &m); err != nil {
		d.log.Warn("paper metadata unreadable, ignoring it", "path", path, "error", err)
		return dirMeta{}
	}
	m.Title = strings.TrimSpace(m.Title)
	return m
}

func stemOf(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

func titleFromStem(stem string) string {
	base := stem
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(base)), " ")
}

func countPDFs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			n++
		}
	}
	return n
}
