package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"paperchat/internal/chat"
	"paperchat/internal/library"
	"paperchat/internal/paperindex"
	"paperchat/internal/planner"
	"paperchat/internal/providers"
	"paperchat/internal/retrieval"
	"paperchat/internal/store"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) (*mcp.ClientSession, *store.Store) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "gat.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "gat.txt"), []byte("Graph attention networks use masked self-attention over neighbours."), 0o644))
	catalog, err := library.NewDirCatalog(root, nil)
	require.NoError(t, err)
	st := store.Open(filepath.Join(t.TempDir(), "paperchat-store.json"), nil)
	t.Cleanup(st.Close)

	llm := providers.NewMockProvider(16)
	index := paperindex.NewManager(st, catalog, paperindex.Options{ChunkSize: 60, ChunkOverlap: 10}, nil)
	svc := chat.NewService(chat.Deps{
		Catalog:   catalog,
		Index:     index,
		Retriever: retrieval.NewEngine(nil, retrieval.Options{CharBudget: 2000}, nil),
		Planner:   planner.New(index, nil, llm, nil, planner.Options{CharBudget: 2000}, nil),
		Store:     st,
		LLM:       llm,
	}, chat.Options{}, nil)
	t.Cleanup(svc.Wait)

	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := NewServer(svc, "test").MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs, st
}

func call[T any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (T, *mcp.CallToolResult) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	var out T
	if !res.IsError {
		b, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &out))
	}
	return out, res
}

func TestToolsAreListed(t *testing.T) {
	cs, _ := connect(t)
	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask_paper", "summarize_paper", "paper_outline", "clear_chat"}, names)
}

func TestAskSummarizeAndClear(t *testing.T) {
	cs, st := connect(t)

	ask, res := call[AskPaperOutput](t, cs, "ask_paper", map[string]any{"item_id": "gat", "question": "What do the networks attend over?"})
	require.False(t, res.IsError)
	assert.Equal(t, "gat", ask.PaperID)
	assert.Contains(t, ask.Answer, "[C1]")
	assert.Positive(t, ask.Evidence)

	sum, res := call[SummarizePaperOutput](t, cs, "summarize_paper", map[string]any{"item_id": "gat"})
	require.False(t, res.IsError)
	assert.Equal(t, planner.ModeSinglePass, sum.Mode)
	assert.NotEmpty(t, sum.Summary)
	assert.Len(t, st.Conversation("gat"), 4)

	cleared, res := call[ClearChatOutput](t, cs, "clear_chat", map[string]any{"item_id": "gat"})
	require.False(t, res.IsError)
	assert.True(t, cleared.Cleared)
	assert.Empty(t, st.Conversation("gat"))
}

func TestToolErrorsAreReported(t *testing.T) {
	cs, _ := connect(t)

	_, res := call[AskPaperOutput](t, cs, "ask_paper", map[string]any{"item_id": "missing", "question": "hi"})
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "paper not found")

	_, res = call[PaperOutlineOutput](t, cs, "paper_outline", map[string]any{"item_id": "gat"})
	require.True(t, res.IsError)
}
