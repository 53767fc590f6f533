// Package zotero reads a Zotero data directory (zotero.sqlite plus storage/)
// as a library.Catalog.
package zotero

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"paperchat/internal/library"
	"paperchat/internal/util"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Catalog struct {
	db      *gorm.DB
	dataDir string
}

// Open opens <dataDir>/zotero.sqlite read-only. Zotero holds a lock on the
// database while running, so the file is opened immutable.
func Open(dataDir string) (*Catalog, error) {
	dbPath := filepath.Join(dataDir, "zotero.sqlite")
	if !util.FileExists(dbPath) {
		return nil, fmt.Errorf("zotero database not found at %s: %w", dbPath, util.ErrNotFound)
	}
	return OpenDSN(dataDir, "file:"+filepath.ToSlash(dbPath)+"?mode=ro&immutable=1")
}

// OpenDSN opens the catalog with an explicit sqlite DSN.
func OpenDSN(dataDir, dsn string) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open zotero database: %w", err)
	}
	return &Catalog{db: db, dataDir: dataDir}, nil
}

func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type itemRow struct {
	ItemID   int64
	Key      string
	TypeName string
}

type fieldRow struct {
	FieldName string
	Value     string
}

type attachmentRow struct {
	ParentKey   *string
	ContentType *string
	Path        *string
}

func (c *Catalog) Item(ctx context.Context, key string) (library.Item, error) {
	var rows []itemRow
	err := c.db.WithContext(ctx).Raw(`
SELECT i.itemID AS item_id, i.key AS key, t.typeName AS type_name
FROM items i
JOIN itemTypes t ON t.itemTypeID = i.itemTypeID
WHERE i.key = ?
LIMIT 1`, key).Scan(&rows).Error
	if err != nil {
		return library.Item{}, fmt.Errorf("query item %s: %w", key, err)
	}
	if len(rows) == 0 {
		return library.Item{}, util.ErrNotFound
	}
	return c.load(ctx, rows[0])
}

func (c *Catalog) Children(ctx context.Context, parentKey string) ([]library.Item, error) {
	var rows []itemRow
	err := c.db.WithContext(ctx).Raw(`
SELECT i.itemID AS item_id, i.key AS key, t.typeName AS type_name
FROM itemAttachments a
JOIN items i ON i.itemID = a.itemID
JOIN itemTypes t ON t.itemTypeID = i.itemTypeID
JOIN items p ON p.itemID = a.parentItemID
WHERE p.key = ?
ORDER BY i.itemID`, parentKey).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", parentKey, err)
	}
	out := make([]library.Item, 0, len(rows))
	for _, r := range rows {
		it, err := c.load(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// FullText reads storage/<key>/.zotero-ft-cache.
func (c *Catalog) FullText(ctx context.Context, attachment library.Item) (string, error) {
	_ = ctx
	if attachment.Kind != library.KindAttachment {
		return "", util.ErrNotFound
	}
	return library.ReadSideFile(filepath.Join(c.dataDir, "storage", attachment.ID, library.FullTextCacheName))
}

func (c *Catalog) load(ctx context.Context, r itemRow) (library.Item, error) {
	it := library.Item{ID: r.Key, Kind: library.KindPaper}

	var fields []fieldRow
	err := c.db.WithContext(ctx).Raw(`
SELECT f.fieldName AS field_name, v.value AS value
FROM itemData d
JOIN fields f ON f.fieldID = d.fieldID
JOIN itemDataValues v ON v.valueID = d.valueID
WHERE d.itemID = ?`, r.ItemID).Scan(&fields).Error
	if err != nil {
		return library.Item{}, fmt.Errorf("query fields of %s: %w", r.Key, err)
	}
	for _, f := range fields {
		switch f.FieldName {
		case "title":
			it.Title = strings.TrimSpace(f.Value)
		case "abstractNote":
			it.Abstract = strings.TrimSpace(f.Value)
		case "date":
			it.Year = parseYear(f.Value)
		}
	}

	if r.TypeName == "attachment" {
		it.Kind = library.KindAttachment
		var atts []attachmentRow
		err := c.db.WithContext(ctx).Raw(`
SELECT p.key AS parent_key, a.contentType AS content_type, a.path AS path
FROM itemAttachments a
LEFT JOIN items p ON p.itemID = a.parentItemID
WHERE a.itemID = ?`, r.ItemID).Scan(&atts).Error
		if err != nil {
			return library.Item{}, fmt.Errorf("query attachment %s: %w", r.Key, err)
		}
		if len(atts) > 0 {
			a := atts[0]
			if a.ParentKey != nil {
				it.ParentID = *a.ParentKey
			}
			if a.ContentType != nil {
				it.ContentType = *a.ContentType
			}
			if a.Path != nil {
				it.Path = c.attachmentPath(r.Key, *a.Path)
			}
		}
		return it, nil
	}

	authors, err := c.authors(ctx, r.ItemID)
	if err != nil {
		return library.Item{}, err
	}
	it.Authors = authors
	return it, nil
}

func (c *Catalog) authors(ctx context.Context, itemID int64) (string, error) {
	var names []string
	err := c.db.WithContext(ctx).Raw(`
SELECT TRIM(COALESCE(c.firstName, '') || ' ' || COALESCE(c.lastName, ''))
FROM itemCreators ic
JOIN creators c ON c.creatorID = ic.creatorID
WHERE ic.itemID = ?
ORDER BY ic.orderIndex`, itemID).Scan(&names).Error
	if err != nil {
		if isMissingTable(err) {
			return "", nil
		}
		return "", fmt.Errorf("query creators: %w", err)
	}
	return strings.Join(names, ", "), nil
}

// attachmentPath maps Zotero's "storage:<file>" form to the item's storage
// folder. Linked files carry absolute paths.
func (c *Catalog) attachmentPath(key, raw string) string {
	switch {
	case strings.HasPrefix(raw, "storage:"):
		return filepath.Join(c.dataDir, "storage", key, strings.TrimPrefix(raw, "storage:"))
	case filepath.IsAbs(raw):
		return raw
	}
	return ""
}

func parseYear(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil || y <= 0 {
		return 0
	}
	return y
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

var _ library.Catalog = (*Catalog)(nil)
