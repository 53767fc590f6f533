package embeddings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"paperchat/internal/models"
	"paperchat/internal/providers"
	"paperchat/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	model   string
	calls   [][]string
	failAt  int
	mockVec *providers.MockProvider
}

func (e *countingEmbedder) Identity() providers.ProviderInfo {
	return providers.ProviderInfo{Name: "test", Model: e.model, Endpoint: "https://embed.example/v1/embeddings"}
}

func (e *countingEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	e.calls = append(e.calls, req.Inputs)
	if e.failAt > 0 && len(e.calls) == e.failAt {
		return nil, e.Identity(), errors.New("upstream 500")
	}
	vecs, _, err := e.mockVec.Embed(ctx, req)
	return vecs, e.Identity(), err
}

func index(n int) models.PaperIndex {
	chunks := make([]models.TextChunk, 0, n)
	for i := 1; i <= n; i++ {
		chunks = append(chunks, models.TextChunk{ID: fmt.Sprintf("chunk-%d", i), Text: fmt.Sprintf("chunk text %d", i)})
	}
	return models.PaperIndex{Hash: "h", Chunks: chunks}
}

func newCache(t *testing.T, e providers.EmbeddingProvider) (*Cache, *store.Store) {
	t.Helper()
	st := store.Open(filepath.Join(t.TempDir(), "paperchat-store.json"), nil)
	t.Cleanup(st.Close)
	return NewCache(st, e, 16, 8, nil), st
}

func TestGetOrCreateEmbedsInBatchesAndReuses(t *testing.T) {
	e := &countingEmbedder{model: "m1", mockVec: providers.NewMockProvider(8)}
	c, st := newCache(t, e)
	ctx := context.Background()
	idx := index(20)

	vecs, err := c.GetOrCreate(ctx, "p1", idx)
	require.NoError(t, err)
	assert.Len(t, vecs, 20)
	require.Len(t, e.calls, 2)
	assert.Len(t, e.calls[0], 16)
	assert.Len(t, e.calls[1], 4)
	writes := st.Writes()

	_, err = c.GetOrCreate(ctx, "p1", idx)
	require.NoError(t, err)
	assert.Len(t, e.calls, 2, "cached vectors must not be re-embedded")
	assert.Equal(t, writes, st.Writes(), "clean cache must not be persisted")

	idx.Chunks[3].Text = "changed"
	idx.Chunks = idx.Chunks[:19]
	vecs, err = c.GetOrCreate(ctx, "p1", idx)
	require.NoError(t, err)
	assert.Len(t, vecs, 19)
	require.Len(t, e.calls, 3)
	assert.Equal(t, []string{"changed"}, e.calls[2])

	stored, ok := st.Embeddings("p1")
	require.True(t, ok)
	assert.NotContains(t, stored.Vectors, "chunk-20")
}

func TestGetOrCreateDiscardsOnModelChange(t *testing.T) {
	e := &countingEmbedder{model: "m1", mockVec: providers.NewMockProvider(8)}
	c, _ := newCache(t, e)
	ctx := context.Background()
	idx := index(3)

	_, err := c.GetOrCreate(ctx, "p1", idx)
	require.NoError(t, err)
	e.model = "m2"
	_, err = c.GetOrCreate(ctx, "p1", idx)
	require.NoError(t, err)
	require.Len(t, e.calls, 2)
	assert.Len(t, e.calls[1], 3)
}

func TestGetOrCreateKeepsEarlierBatchesAfterFailure(t *testing.T) {
	e := &countingEmbedder{model: "m1", failAt: 2, mockVec: providers.NewMockProvider(8)}
	c, st := newCache(t, e)
	ctx := context.Background()
	idx := index(20)

	_, err := c.GetOrCreate(ctx, "p1", idx)
	require.Error(t, err)
	_, ok := st.Embeddings("p1")
	assert.False(t, ok, "nothing persisted on failure")

	vecs, err := c.GetOrCreate(ctx, "p1", idx)
	require.NoError(t, err)
	assert.Len(t, vecs, 20)
	require.Len(t, e.calls, 3)
	assert.Len(t, e.calls[2], 4, "only the failed batch is retried")
	stored, ok := st.Embeddings("p1")
	require.True(t, ok)
	assert.Len(t, stored.Vectors, 20)
}
