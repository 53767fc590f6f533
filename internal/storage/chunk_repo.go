package storage

import (
	"context"
	"fmt"
	"strings"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// PaperText rebuilds a paper's extracted text from its stored chunks in
// chunk_index order. Returns an empty string when the paper has no chunks.
func (r *ChunkRepo) PaperText(ctx context.Context, paperID string) (string, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT text
FROM chunks
WHERE paper_id=$1
ORDER BY chunk_index ASC`, paperID)
	if err != nil {
		return "", fmt.Errorf("list chunks by paper: %w", err)
	}
	defer rows.Close()
	parts := make([]string, 0, 64)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return "", fmt.Errorf("scan chunk by paper: %w", err)
		}
		parts = append(parts, text)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate chunk by paper: %w", err)
	}
	return strings.Join(parts, "\n\n"), nil
}
