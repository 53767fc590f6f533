package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paperchat/internal/util"
)

// OllamaEmbeddingProvider embeds through a local Ollama daemon, one input per request.
type OllamaEmbeddingProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEmbeddingProvider(baseURL, alias string) *OllamaEmbeddingProvider {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaEmbeddingProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   resolveOllamaEmbedModel(alias),
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaEmbeddingProvider) Identity() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.model, Endpoint: o.baseURL + "/api/embeddings"}
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := o.Identity()
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		payload, _ := json.Marshal(map[string]any{
			"model":  o.model,
			"prompt": text,
		})
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, info.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, info, fmt.Errorf("build ollama request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(httpReq)
		if err != nil {
			return nil, info, &util.UpstreamError{Op: "ollama embedding request", Body: err.Error()}
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, info, &util.UpstreamError{Op: "ollama embedding", Status: resp.StatusCode, Body: truncateBody(body)}
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, info, &util.UpstreamError{Op: "decode ollama embedding", Body: err.Error()}
		}
		if len(parsed.Embedding) == 0 {
			return nil, info, &util.UpstreamError{Op: "ollama embedding", Body: "empty embedding"}
		}
		out = append(out, matchDimension(parsed.Embedding, req.Dimension))
	}
	return out, info, nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	switch strings.ToLower(alias) {
	case "", "nomic":
		return "nomic-embed-text"
	case "bge":
		return "bge-small-en-v1.5"
	case "mxbai":
		return "mxbai-embed-large"
	}
	return alias
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
