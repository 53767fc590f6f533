// Package embeddings keeps per-paper chunk vectors in the store, re-embedding
// only chunks whose text changed.
package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/providers"
	"paperchat/internal/store"
	"paperchat/internal/util"
)

const DefaultBatchSize = 16

type Cache struct {
	store     *store.Store
	embedder  providers.EmbeddingProvider
	batchSize int
	dim       int
	log       *logger.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]models.PaperEmbeddings
}

func NewCache(st *store.Store, embedder providers.EmbeddingProvider, batchSize, dim int, log *logger.Logger) *Cache {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		store:     st,
		embedder:  embedder,
		batchSize: batchSize,
		dim:       dim,
		log:       log,
		locks:     map[string]*sync.Mutex{},
		pending:   map[string]models.PaperEmbeddings{},
	}
}

// EmbedQuery embeds text with the provider used for chunk vectors.
func (c *Cache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("embeddings: %w", util.ErrConfigMissing)
	}
	vecs, _, err := c.embedder.Embed(ctx, providers.EmbedRequest{Operation: "embed_query", Inputs: []string{text}, Dimension: c.dim})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, &util.UpstreamError{Op: "embeddings", Body: "empty query embedding"}
	}
	return vecs[0], nil
}

func (c *Cache) paperLock(paperID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[paperID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[paperID] = l
	}
	return l
}

// GetOrCreate returns a vector for every chunk of idx. A failed batch fails the
// call; vectors from earlier batches are kept in memory and persisted with the
// next successful call.
func (c *Cache) GetOrCreate(ctx context.Context, paperID string, idx models.PaperIndex) (map[string][]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("embeddings: %w", util.ErrConfigMissing)
	}
	l := c.paperLock(paperID)
	l.Lock()
	defer l.Unlock()

	id := c.embedder.Identity()
	cur, dirty := c.working(paperID)
	if cur.Endpoint != id.Endpoint || cur.Model != id.Model {
		cur = models.PaperEmbeddings{Endpoint: id.Endpoint, Model: id.Model}
		dirty = true
	}
	if cur.ChunkHashes == nil {
		cur.ChunkHashes = map[string]string{}
	}
	if cur.Vectors == nil {
		cur.Vectors = map[string][]float32{}
	}

	present := make(map[string]struct{}, len(idx.Chunks))
	for _, ch := range idx.Chunks {
		present[ch.ID] = struct{}{}
	}
	for chunkID := range cur.Vectors {
		if _, ok := present[chunkID]; !ok {
			delete(cur.Vectors, chunkID)
			dirty = true
		}
	}
	for chunkID := range cur.ChunkHashes {
		if _, ok := present[chunkID]; !ok {
			delete(cur.ChunkHashes, chunkID)
			dirty = true
		}
	}

	stale := make([]models.TextChunk, 0)
	hashes := make(map[string]string, len(idx.Chunks))
	for _, ch := range idx.Chunks {
		h := util.ContentHash(ch.Text)
		hashes[ch.ID] = h
		if cur.ChunkHashes[ch.ID] != h || len(cur.Vectors[ch.ID]) == 0 {
			stale = append(stale, ch)
		}
	}

	for start := 0; start < len(stale); start += c.batchSize {
		end := min(start+c.batchSize, len(stale))
		batch := stale[start:end]
		inputs := make([]string, 0, len(batch))
		for _, ch := range batch {
			inputs = append(inputs, ch.Text)
		}
		vectors, _, err := c.embedder.Embed(ctx, providers.EmbedRequest{Operation: "embed_chunks", Inputs: inputs, Dimension: c.dim})
		if err == nil && len(vectors) != len(batch) {
			err = &util.UpstreamError{Op: "embeddings", Body: fmt.Sprintf("got %d vectors for %d inputs", len(vectors), len(batch))}
		}
		if err != nil {
			if dirty {
				c.keepPending(paperID, cur)
			}
			return nil, fmt.Errorf("embed chunks %d-%d of %s: %w", start+1, end, paperID, err)
		}
		for i, ch := range batch {
			cur.Vectors[ch.ID] = vectors[i]
			cur.ChunkHashes[ch.ID] = hashes[ch.ID]
		}
		dirty = true
	}

	if dirty {
		cur.UpdatedAt = time.Now().UTC()
		if err := c.store.PutEmbeddings(ctx, paperID, cur); err != nil {
			c.keepPending(paperID, cur)
			return nil, fmt.Errorf("persist embeddings %s: %w", paperID, err)
		}
		c.mu.Lock()
		delete(c.pending, paperID)
		c.mu.Unlock()
		c.log.Debug("embeddings updated", "paper_id", paperID, "embedded", len(stale), "chunks", len(idx.Chunks))
	}

	out := make(map[string][]float32, len(cur.Vectors))
	for k, v := range cur.Vectors {
		out[k] = v
	}
	return out, nil
}

// working returns the unsaved state left by a failed call, else the stored one.
func (c *Cache) working(paperID string) (models.PaperEmbeddings, bool) {
	c.mu.Lock()
	p, ok := c.pending[paperID]
	c.mu.Unlock()
	if ok {
		return p, true
	}
	e, _ := c.store.Embeddings(paperID)
	return e, false
}

func (c *Cache) keepPending(paperID string, e models.PaperEmbeddings) {
	c.mu.Lock()
	c.pending[paperID] = e
	c.mu.Unlock()
}
