package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paperchat/internal/util"

	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsedTime: 50 * time.Millisecond}

func TestOpenAIGenerateStringContent(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  grounded answer [C1] "}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{ChatEndpoint: srv.URL + "/v1", ChatModel: "gpt-test", APIKey: "sk-test", Temperature: 0.3, Retry: fastRetry})
	resp, info, err := p.Generate(context.Background(), Prompt("ask", "system text", "question"))
	require.NoError(t, err)
	require.Equal(t, "grounded answer [C1]", resp.Text)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "/v1/chat/completions", gotPath)
	require.Equal(t, "gpt-test", gotBody["model"])
	require.Equal(t, 0.3, gotBody["temperature"])
	require.Len(t, gotBody["messages"], 2)
	require.Equal(t, "gpt-test", info.Model)
}

func TestOpenAIGenerateArrayContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"part one, "},{"type":"text","text":"part two"}]}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{ChatEndpoint: srv.URL, ChatModel: "m", Retry: fastRetry})
	resp, _, err := p.Generate(context.Background(), Prompt("ask", "", "q"))
	require.NoError(t, err)
	require.Equal(t, "part one, part two", resp.Text)
}

func TestOpenAIGenerateUpstreamErrorKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{ChatEndpoint: srv.URL, ChatModel: "m", Retry: fastRetry})
	_, _, err := p.Generate(context.Background(), Prompt("ask", "", "q"))
	require.Error(t, err)
	require.True(t, errors.Is(err, util.ErrUpstream))
	require.Contains(t, err.Error(), "model not found")
	require.Contains(t, err.Error(), "400")
}

func TestOpenAIGenerateRetriesOn429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{ChatEndpoint: srv.URL, ChatModel: "m", Retry: RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsedTime: time.Second}})
	resp, _, err := p.Generate(context.Background(), Prompt("ask", "", "q"))
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 2, calls)
}

func TestOpenAIConfigMissing(t *testing.T) {
	p := NewOpenAIProvider(OpenAIOptions{})
	_, _, err := p.Generate(context.Background(), Prompt("ask", "", "q"))
	require.ErrorIs(t, err, util.ErrConfigMissing)
	_, _, err = p.Embed(context.Background(), EmbedRequest{Inputs: []string{"x"}})
	require.ErrorIs(t, err, util.ErrConfigMissing)
}

func TestOpenAIEmbedSortsByIndex(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		require.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{ChatEndpoint: srv.URL + "/v1/chat/completions", EmbedModel: "emb", Retry: fastRetry})
	vecs, info, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	require.Equal(t, "/v1/embeddings", gotPath)
	require.True(t, strings.HasSuffix(info.Endpoint, "/v1/embeddings"))
}

func TestOpenAIEmbedLengthMismatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{EmbedEndpoint: srv.URL, EmbedModel: "emb", Retry: fastRetry})
	_, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"a", "b"}})
	require.ErrorIs(t, err, util.ErrUpstream)
}

func TestParseMessageContent(t *testing.T) {
	got, err := parseMessageContent(json.RawMessage(`["a", {"type":"text","text":"b"}, {"type":"image_url"}]`))
	require.NoError(t, err)
	require.Equal(t, "ab", got)
	got, err = parseMessageContent(json.RawMessage(`null`))
	require.NoError(t, err)
	require.Equal(t, "", got)
	_, err = parseMessageContent(json.RawMessage(`42`))
	require.Error(t, err)
}
