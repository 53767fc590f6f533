package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"paperchat/internal/config"
	"paperchat/internal/util"

	"github.com/google/uuid"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured providers. As an LLMProvider it fails over
// across chat providers, real backends before the mock.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
	recorder       CallRecorder
}

// SetRecorder installs an audit sink for chat attempts.
func (m *Manager) SetRecorder(r CallRecorder) {
	m.recorder = r
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support chat", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	return m, nil
}

// NewStaticManager wires explicit providers, mainly for tests and embedding callers.
func NewStaticManager(llm LLMProvider, embed EmbeddingProvider) *Manager {
	m := &Manager{}
	if llm != nil {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "static", Name: "static"}, Provider: llm}}
	}
	if embed != nil {
		m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "static", Name: "static"}, Provider: embed}}
	}
	return m
}

func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if len(m.llmProviders) == 0 {
		return GenerateResponse{}, ProviderInfo{}, fmt.Errorf("no chat provider: %w", util.ErrConfigMissing)
	}
	var (
		resp    GenerateResponse
		info    ProviderInfo
		lastErr error
	)
	for _, idx := range m.PreferredLLMOrder() {
		p := m.llmProviders[idx].Provider
		var err error
		resp, info, err = p.Generate(ctx, req)
		if err == nil && strings.TrimSpace(resp.Text) == "" {
			err = &util.UpstreamError{Op: "chat completion", Body: "empty answer"}
		}
		m.record(ctx, req, m.llmProviders[idx].Ref, info, err)
		if err == nil {
			return resp, info, nil
		}
		if lastErr == nil || !errors.Is(err, util.ErrConfigMissing) {
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return resp, info, lastErr
}

func (m *Manager) record(ctx context.Context, req GenerateRequest, ref ProviderRef, info ProviderInfo, err error) {
	if m.recorder == nil {
		return
	}
	rec := CallRecord{
		Operation:    req.Operation,
		PaperID:      req.PaperID,
		ProviderName: ref.Name,
		Model:        info.Model,
		RequestID:    uuid.NewString(),
		Status:       "ok",
	}
	if info.Name != "" {
		rec.ProviderName = info.Name
	}
	if err != nil {
		rec.Status = "error"
		rec.ErrorType = string(ClassifyError(err))
	}
	_ = m.recorder.RecordCall(context.WithoutCancel(ctx), rec)
}

// Embedder returns the preferred embedding provider, or nil when none is configured.
func (m *Manager) Embedder() EmbeddingProvider {
	order := m.PreferredEmbedOrder()
	if len(order) == 0 {
		return nil
	}
	return m.embedProviders[order[0]].Provider
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return m.llmProviders[i].Ref.Name })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedProviders), func(i int) string { return m.embedProviders[i].Ref.Name })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, cfg config.Config) (any, error) {
	switch ref.Name {
	case "mock":
		return NewMockProvider(cfg.EmbedDim), nil
	case "openai":
		return NewOpenAIProvider(OpenAIOptions{
			Name:          "openai",
			ChatEndpoint:  cfg.ChatEndpoint,
			ChatModel:     cfg.ChatModel,
			EmbedEndpoint: cfg.EmbedEndpoint,
			EmbedModel:    cfg.EmbedModel,
			APIKey:        resolveKey("PAPERCHAT_API_KEY", ref.KeyAlias, cfg.APIKey),
			Temperature:   cfg.Temperature,
		}), nil
	case "groq":
		model := cfg.ChatModel
		if ref.KeyAlias != "" && strings.ContainsAny(ref.KeyAlias, "-.") {
			model = ref.KeyAlias
		}
		return NewOpenAIProvider(OpenAIOptions{
			Name:         "groq",
			ChatEndpoint: "https://api.groq.com/openai/v1",
			ChatModel:    model,
			APIKey:       resolveKey("GROQ_API_KEY", "", ""),
			Temperature:  cfg.Temperature,
		}), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(cfg.EmbedEndpoint, ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}

func resolveKey(envName, alias, fallback string) string {
	if alias != "" {
		if k := os.Getenv(envName + "_" + strings.ToUpper(alias)); k != "" {
			return k
		}
	}
	if k := os.Getenv(envName); k != "" {
		return k
	}
	return fallback
}
