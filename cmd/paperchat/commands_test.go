package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paperchat/internal/chat"
	"paperchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	lib := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(lib, "gat.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "gat.txt"), []byte("Graph attention networks use masked self-attention over neighbourhoods."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "gat.json"), []byte(`{"title":"Graph Attention Networks"}`), 0o644))

	data := t.TempDir()
	t.Setenv("PAPERCHAT_CONFIG", "")
	t.Setenv("PAPERCHAT_DATA_DIR", data)
	t.Setenv("PAPERCHAT_LIBRARY_KIND", "dir")
	t.Setenv("PAPERCHAT_LIBRARY_PATH", lib)
	t.Setenv("PAPERCHAT_LLM_PROVIDERS", "mock")
	t.Setenv("PAPERCHAT_EMBED_PROVIDERS", "mock")
	t.Setenv("PAPERCHAT_LOG_MODE", "prod")
	return data
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskHistoryAndClear(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "ask", "gat", "What", "do", "the", "networks", "use?")
	require.NoError(t, err)
	assert.Contains(t, out, "[C1]")

	out, err = run(t, "history", "gat", "--json")
	require.NoError(t, err)
	var msgs []models.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "What do the networks use?", msgs[0].Content)

	out, err = run(t, "clear", "gat")
	require.NoError(t, err)
	assert.Contains(t, out, `"Graph Attention Networks"`)

	out, err = run(t, "history", "gat")
	require.NoError(t, err)
	assert.Contains(t, out, "no conversation yet")
}

func TestSummarizeWritesMarkdownAndExport(t *testing.T) {
	data := setupEnv(t)

	out, err := run(t, "summarize", "gat", "--json")
	require.NoError(t, err)
	var sum chat.SummaryResult
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, filepath.Join(data, "summaries", "gat.md"), sum.File)
	assert.FileExists(t, sum.File)

	path := filepath.Join(t.TempDir(), "gat.jsonl")
	out, err = run(t, "export", "gat", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 messages")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(b), "\n"))
}

func TestUnknownPaperMessage(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "ask", "missing", "hello")
	require.Error(t, err)
	assert.Equal(t, "paper not found in the library", userMessage(err))
}

func TestUnknownLibraryKind(t *testing.T) {
	setupEnv(t)
	t.Setenv("PAPERCHAT_LIBRARY_KIND", "endnote")
	_, err := run(t, "history", "gat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown library kind")
}
