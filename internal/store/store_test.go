package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"paperchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paperchat-store.json")
	s := Open(path, nil)
	t.Cleanup(s.Close)
	return s, path
}

func samplePaper() models.PaperIndex {
	return models.PaperIndex{
		Hash:   "abc123",
		Title:  "Attention Is All You Need",
		Source: models.SourcePDFCache,
		Chunks: []models.TextChunk{
			{ID: "chunk-1", Text: "first", Start: 0, End: 5},
			{ID: "chunk-2", Text: "second", Start: 4, End: 10},
			{ID: "chunk-3", Text: "third", Start: 9, End: 14},
		},
		UpdatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestStoreRoundTripPaperAndEmbeddings(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)
	paper := samplePaper()
	emb := models.PaperEmbeddings{
		Endpoint:    "https://api.example.com/v1/embeddings",
		Model:       "text-embedding-3-small",
		ChunkHashes: map[string]string{"chunk-1": "h1", "chunk-2": "h2", "chunk-3": "h3"},
		Vectors:     map[string][]float32{"chunk-1": {0.1, 0.2}, "chunk-2": {0.3, 0.4}, "chunk-3": {0.5, 0.25}},
		UpdatedAt:   time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.PutPaper(ctx, "p1", paper))
	require.NoError(t, s.PutEmbeddings(ctx, "p1", emb))

	reopened := Open(path, nil)
	defer reopened.Close()
	gotPaper, ok := reopened.Paper("p1")
	require.True(t, ok)
	require.Equal(t, paper, gotPaper)
	gotEmb, ok := reopened.Embeddings("p1")
	require.True(t, ok)
	require.Equal(t, emb, gotEmb)
}

func TestStoreCorruptFileResetsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperchat-store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s := Open(path, nil)
	defer s.Close()
	_, ok := s.Paper("p1")
	require.False(t, ok)
	require.NoError(t, s.PutPaper(context.Background(), "p1", samplePaper()))
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, models.StoreVersion, snap.Version)
}

func TestStoreUnknownVersionResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperchat-store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"papers":{"p1":{"hash":"x"}}}`), 0o644))
	s := Open(path, nil)
	defer s.Close()
	_, ok := s.Paper("p1")
	require.False(t, ok)
}

func TestStoreConcurrentAppendsNeverLoseMessages(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessages(ctx, "p1", 0, models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Commit(ctx))
	require.Len(t, s.Conversation("p1"), 20)

	reopened := Open(path, nil)
	defer reopened.Close()
	require.Len(t, reopened.Conversation("p1"), 20)
}

func TestStoreAppendTrimsToMaxStored(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	for i := 0; i < 7; i++ {
		_, err := s.AppendMessages(ctx, "p1", 5, models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}
	msgs := s.Conversation("p1")
	require.Len(t, msgs, 5)
	require.Equal(t, "m2", msgs[0].Content)
	require.Equal(t, "m6", msgs[4].Content)
}

func TestStoreTurnTotalSurvivesTrimming(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)
	for i := 0; i < 10; i++ {
		_, err := s.AppendMessages(ctx, "p1", 4,
			models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)},
			models.ChatMessage{Role: models.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
		require.NoError(t, err)
	}
	require.Len(t, s.Conversation("p1"), 4)
	assert.Equal(t, 10, s.TurnTotal("p1"))

	// A lone user message is not a turn until its answer arrives.
	_, err := s.AppendMessages(ctx, "p1", 4, models.ChatMessage{Role: models.RoleUser, Content: "q10"})
	require.NoError(t, err)
	assert.Equal(t, 10, s.TurnTotal("p1"))
	_, err = s.AppendMessages(ctx, "p1", 4, models.ChatMessage{Role: models.RoleAssistant, Content: "a10"})
	require.NoError(t, err)
	assert.Equal(t, 11, s.TurnTotal("p1"))

	reopened := Open(path, nil)
	defer reopened.Close()
	assert.Equal(t, 11, reopened.TurnTotal("p1"))

	require.NoError(t, s.ClearConversation(ctx, "p1"))
	assert.Equal(t, 0, s.TurnTotal("p1"))
}

func TestStoreClearKeepsIndexAndEmbeddings(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.PutPaper(ctx, "p1", samplePaper()))
	require.NoError(t, s.PutEmbeddings(ctx, "p1", models.PaperEmbeddings{Endpoint: "e", Model: "m"}))
	_, err := s.AppendMessages(ctx, "p1", 0, models.ChatMessage{Role: models.RoleUser, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, s.PutMemory(ctx, "p1", models.ConversationMemory{Summary: "s", TurnCount: 1}))

	require.NoError(t, s.ClearConversation(ctx, "p1"))
	require.Empty(t, s.Conversation("p1"))
	_, ok := s.Memory("p1")
	require.False(t, ok)
	_, ok = s.Paper("p1")
	require.True(t, ok)
	_, ok = s.Embeddings("p1")
	require.True(t, ok)
}

func TestStoreWritesCountAndClosed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "paperchat-store.json")
	s := Open(path, nil)
	require.NoError(t, s.PutPaper(ctx, "p1", samplePaper()))
	require.EqualValues(t, 1, s.Writes())
	s.Close()
	require.ErrorIs(t, s.PutPaper(ctx, "p2", samplePaper()), ErrClosed)
}
