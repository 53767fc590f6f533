package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperchat/internal/util"

	"github.com/jackc/pgx/v5"
)

type PaperRecord struct {
	PaperID   string
	CorpusID  string
	Filename  string
	Title     string
	Authors   string
	Year      *int
	Abstract  string
	Status    string
	UpdatedAt time.Time
}

type PaperRepo struct {
	db *DB
}

func NewPaperRepo(db *DB) *PaperRepo {
	return &PaperRepo{db: db}
}

const paperColumns = `paper_id, corpus_id::text, filename, COALESCE(title,''), COALESCE(authors,''), year,
       COALESCE(abstract,''), status, updated_at`

func scanPaper(row pgx.Row) (PaperRecord, error) {
	var p PaperRecord
	err := row.Scan(&p.PaperID, &p.CorpusID, &p.Filename, &p.Title, &p.Authors, &p.Year, &p.Abstract, &p.Status, &p.UpdatedAt)
	return p, err
}

func (r *PaperRepo) GetPaper(ctx context.Context, paperID string) (PaperRecord, error) {
	p, err := scanPaper(r.db.Pool.QueryRow(ctx, `
SELECT `+paperColumns+`
FROM papers
WHERE paper_id=$1
ORDER BY updated_at DESC
LIMIT 1`, paperID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PaperRecord{}, util.ErrNotFound
	}
	if err != nil {
		return PaperRecord{}, fmt.Errorf("get paper by id: %w", err)
	}
	return p, nil
}

// ListPapers returns processed papers, newest first. An empty corpusID lists
// every corpus.
func (r *PaperRepo) ListPapers(ctx context.Context, corpusID string, limit int) ([]PaperRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+paperColumns+`
FROM papers
WHERE ($1 = '' OR corpus_id::text = $1) AND status <> 'failed'
ORDER BY updated_at DESC
LIMIT $2`, corpusID, limit)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	out := make([]PaperRecord, 0)
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}
