package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"paperchat/internal/util"
)

type OpenAIOptions struct {
	Name          string
	ChatEndpoint  string
	ChatModel     string
	EmbedEndpoint string
	EmbedModel    string
	APIKey        string
	Temperature   float64
	Client        *http.Client
	Retry         RetryPolicy
}

// OpenAIProvider talks to any OpenAI-compatible chat-completions and embeddings API.
type OpenAIProvider struct {
	name          string
	chatEndpoint  string
	chatModel     string
	embedEndpoint string
	embedModel    string
	apiKey        string
	temperature   float64
	client        *http.Client
	retry         RetryPolicy
}

func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	if opts.Name == "" {
		opts.Name = "openai"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 120 * time.Second}
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	embedBase := opts.EmbedEndpoint
	if embedBase == "" {
		embedBase = opts.ChatEndpoint
	}
	return &OpenAIProvider{
		name:          opts.Name,
		chatEndpoint:  NormalizeChatEndpoint(opts.ChatEndpoint),
		chatModel:     strings.TrimSpace(opts.ChatModel),
		embedEndpoint: NormalizeEmbeddingEndpoint(embedBase),
		embedModel:    strings.TrimSpace(opts.EmbedModel),
		apiKey:        strings.TrimSpace(opts.APIKey),
		temperature:   opts.Temperature,
		client:        opts.Client,
		retry:         opts.Retry,
	}
}

func (o *OpenAIProvider) Identity() ProviderInfo {
	return ProviderInfo{Name: o.name, Model: o.embedModel, Endpoint: o.embedEndpoint}
}

func (o *OpenAIProvider) chatInfo() ProviderInfo {
	return ProviderInfo{Name: o.name, Model: o.chatModel, Endpoint: o.chatEndpoint}
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := o.chatInfo()
	if o.chatEndpoint == "" || o.chatModel == "" {
		return GenerateResponse{}, info, fmt.Errorf("%s chat endpoint/model: %w", o.name, util.ErrConfigMissing)
	}
	temperature := o.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	payload, err := json.Marshal(map[string]any{
		"model":       o.chatModel,
		"messages":    req.Messages,
		"temperature": temperature,
	})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("encode chat request: %w", err)
	}

	var body []byte
	err = withRetry(ctx, o.retry, func() error {
		body, err = o.post(ctx, o.chatEndpoint, payload, "chat completion")
		return err
	})
	if err != nil {
		return GenerateResponse{}, info, err
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, &util.UpstreamError{Op: "decode chat completion", Body: err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, info, &util.UpstreamError{Op: "chat completion", Body: "empty choices: " + truncateBody(body)}
	}
	text, err := parseMessageContent(parsed.Choices[0].Message.Content)
	if err != nil {
		return GenerateResponse{}, info, &util.UpstreamError{Op: "decode chat content", Body: err.Error()}
	}
	return GenerateResponse{Text: strings.TrimSpace(text)}, info, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := o.Identity()
	if o.embedEndpoint == "" || o.embedModel == "" {
		return nil, info, fmt.Errorf("%s embedding endpoint/model: %w", o.name, util.ErrConfigMissing)
	}
	if len(req.Inputs) == 0 {
		return nil, info, nil
	}
	payload, err := json.Marshal(map[string]any{"model": o.embedModel, "input": req.Inputs})
	if err != nil {
		return nil, info, fmt.Errorf("encode embedding request: %w", err)
	}
	var body []byte
	err = withRetry(ctx, o.retry, func() error {
		body, err = o.post(ctx, o.embedEndpoint, payload, "embedding")
		return err
	})
	if err != nil {
		return nil, info, err
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, &util.UpstreamError{Op: "decode embedding", Body: err.Error()}
	}
	if len(parsed.Data) != len(req.Inputs) {
		return nil, info, &util.UpstreamError{Op: "embedding", Body: fmt.Sprintf("expected %d vectors, got %d", len(req.Inputs), len(parsed.Data))}
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, d.Embedding)
	}
	return out, info, nil
}

func (o *OpenAIProvider) post(ctx context.Context, endpoint string, payload []byte, op string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &util.UpstreamError{Op: op + " request", Body: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &util.UpstreamError{Op: op + " read", Status: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return nil, &util.UpstreamError{Op: op, Status: resp.StatusCode, Body: truncateBody(body)}
	}
	return body, nil
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 2000 {
		return s[:2000] + "..."
	}
	return s
}
