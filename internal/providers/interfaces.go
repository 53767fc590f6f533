package providers

import "context"

type ProviderInfo struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
	Key      string `json:"key,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Operation   string    `json:"operation"`
	PaperID     string    `json:"paperId,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
	// Identity names the endpoint and model that produce the vectors; cached
	// embeddings are only valid for the same pair.
	Identity() ProviderInfo
}

// CallRecord describes one chat attempt for auditing.
type CallRecord struct {
	Operation    string
	PaperID      string
	ProviderName string
	Model        string
	RequestID    string
	Status       string
	ErrorType    string
}

// CallRecorder receives one record per chat attempt. Recording is best-effort.
type CallRecorder interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

// Prompt builds a system + user request.
func Prompt(operation, system, user string) GenerateRequest {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: user})
	return GenerateRequest{Operation: operation, Messages: msgs}
}
