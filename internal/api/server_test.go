package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"paperchat/internal/chat"
	"paperchat/internal/library"
	"paperchat/internal/models"
	"paperchat/internal/paperindex"
	"paperchat/internal/planner"
	"paperchat/internal/providers"
	"paperchat/internal/retrieval"
	"paperchat/internal/sections"
	"paperchat/internal/session"
	"paperchat/internal/store"
	"paperchat/internal/workflows"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, Options{})
}

func newTestServerWith(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "gat.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "gat.txt"), []byte(
		"Graph attention networks attend over neighbourhood features with masked self-attention. "+
			"They reach strong results on citation benchmarks."), 0o644))

	catalog, err := library.NewDirCatalog(root, nil)
	require.NoError(t, err)
	st := store.Open(filepath.Join(t.TempDir(), "paperchat-store.json"), nil)
	t.Cleanup(st.Close)

	llm := providers.NewMockProvider(16)
	index := paperindex.NewManager(st, catalog, paperindex.Options{ChunkSize: 80, ChunkOverlap: 10}, nil)
	svc := chat.NewService(chat.Deps{
		Catalog:   catalog,
		Index:     index,
		Retriever: retrieval.NewEngine(nil, retrieval.Options{CharBudget: 2000}, nil),
		Planner:   planner.New(index, nil, llm, nil, planner.Options{CharBudget: 2000}, nil),
		Outlines:  sections.NewLoader(sections.Options{}, nil),
		Store:     st,
		LLM:       llm,
		Panel:     session.NewPanel(),
	}, chat.Options{RequireEvidence: true}, nil)
	t.Cleanup(svc.Wait)

	srv := httptest.NewServer(NewServer(svc, catalog, nil, opts, nil).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestAskThenHistoryAndPanel(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/papers/gat/panel")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, srv.URL+"/papers/gat/ask", `{"question":"What do graph attention networks attend over?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var ask chat.AskResult
	decode(t, resp, &ask)
	assert.Equal(t, "gat", ask.PaperID)
	assert.Contains(t, ask.Answer, "[C1]")

	resp, err = http.Get(srv.URL + "/papers/gat/history")
	require.NoError(t, err)
	var hist struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	decode(t, resp, &hist)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, models.RoleAssistant, hist.Messages[1].Role)

	resp, err = http.Get(srv.URL + "/papers/gat/panel")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view session.View
	decode(t, resp, &view)
	assert.Equal(t, chat.ViewAnswer, view.Kind)

	resp = post(t, srv.URL+"/papers/gat/clear", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/papers/gat/history")
	require.NoError(t, err)
	decode(t, resp, &hist)
	assert.Empty(t, hist.Messages)
}

func TestAskValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/papers/gat/ask", `{not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "PC-API-4001", body.Error.Code)
	assert.Equal(t, "Malformed JSON request body.", body.Error.Message)

	resp = post(t, srv.URL+"/papers/gat/ask", `{"question":"  "}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decode(t, resp, &body)
	assert.Equal(t, "A question is required.", body.Error.Message)

	resp = post(t, srv.URL+"/papers/missing/ask", `{"question":"hello"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	decode(t, resp, &body)
	assert.Equal(t, "PC-API-4004", body.Error.Code)

	resp, err := http.Get(srv.URL + "/papers/gat/ask")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestSummarizeWaitReturnsSummary(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/papers/gat/summarize?wait=true", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out chat.SummaryResult
	decode(t, resp, &out)
	assert.Equal(t, planner.ModeSinglePass, out.Summary.Mode)
	assert.NotEmpty(t, out.Summary.Text)
}

func TestSummarizeInBackgroundReportsProgress(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/papers/gat/summarize", `{}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started struct {
		WorkflowID string `json:"workflow_id"`
	}
	decode(t, resp, &started)
	require.True(t, strings.HasPrefix(started.WorkflowID, "local-"))

	var body struct {
		Progress workflows.SummarizeProgress `json:"progress"`
		Result   *workflows.SummarizeResult  `json:"result"`
	}
	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/summaries/" + started.WorkflowID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		body.Result = nil
		if json.NewDecoder(r.Body).Decode(&body) != nil {
			return false
		}
		return body.Progress.Status == workflows.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 100, body.Progress.Percent)
	require.NotNil(t, body.Result)
	assert.Equal(t, "gat", body.Result.PaperID)

	r, err := http.Get(srv.URL + "/summaries/local-unknown")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	r.Body.Close()
}

func startLocalRun(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := post(t, srv.URL+"/papers/gat/summarize", `{}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started struct {
		WorkflowID string `json:"workflow_id"`
	}
	decode(t, resp, &started)
	return started.WorkflowID
}

func runStatus(t *testing.T, srv *httptest.Server, id string) (int, string) {
	t.Helper()
	r, err := http.Get(srv.URL + "/summaries/" + id)
	require.NoError(t, err)
	defer r.Body.Close()
	var body struct {
		Progress workflows.SummarizeProgress `json:"progress"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return r.StatusCode, body.Progress.Status
}

func TestFinishedLocalRunsExpire(t *testing.T) {
	srv := newTestServerWith(t, Options{RunRetention: time.Millisecond})

	first := startLocalRun(t, srv)
	require.Eventually(t, func() bool {
		code, status := runStatus(t, srv, first)
		return code == http.StatusOK && status == workflows.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	second := startLocalRun(t, srv)
	code, _ := runStatus(t, srv, first)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = runStatus(t, srv, second)
	assert.Equal(t, http.StatusOK, code)
}

func TestPruneRunsKeepsRunningAndRecent(t *testing.T) {
	s := NewServer(nil, nil, nil, Options{RunRetention: time.Minute}, nil)
	now := time.Now()
	s.runs["local-old"] = &localRun{finished: now.Add(-2 * time.Minute)}
	s.runs["local-recent"] = &localRun{finished: now.Add(-30 * time.Second)}
	s.runs["local-running"] = &localRun{}

	s.pruneRuns(now)

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []string{"local-recent", "local-running"}, ids)
}

func TestListPapersAndOutlineErrors(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/papers")
	require.NoError(t, err)
	var list struct {
		Papers []library.Item `json:"papers"`
	}
	decode(t, resp, &list)
	require.Len(t, list.Papers, 1)
	assert.Equal(t, "gat", list.Papers[0].ID)

	resp, err = http.Get(srv.URL + "/papers/gat/outline")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/papers/gat/unknown")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
