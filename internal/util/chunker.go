package util

import (
	"strconv"
	"strings"

	"paperchat/internal/models"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// ChunkText splits text into rune windows of chunkSize sharing overlap runes with
// the previous window. Start and End are rune offsets; windows whose trimmed text
// is empty are skipped.
func ChunkText(text string, chunkSize, overlap int) []models.TextChunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	runes := []rune(text)
	step := chunkSize - overlap
	out := make([]models.TextChunk, 0, len(runes)/step+1)
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[i:end]))
		if part != "" {
			out = append(out, models.TextChunk{
				ID:    "chunk-" + strconv.Itoa(len(out)+1),
				Text:  part,
				Start: i,
				End:   end,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
