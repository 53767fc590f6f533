package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var citationLabel = regexp.MustCompile(`\[C\d+\]`)

// MockProvider answers deterministically without network access.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 64
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Identity() ProviderInfo {
	return ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", m.dim), Endpoint: "mock://embeddings"}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, m.Identity(), nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Endpoint: "mock://chat"}
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	op := strings.ToLower(req.Operation)
	var text string
	switch {
	case strings.Contains(op, "ask"):
		text = "Deterministic answer based on retrieved evidence."
		if label := citationLabel.FindString(prompt); label != "" {
			text += " " + label
		}
	case strings.Contains(op, "section"):
		text = "The section describes its contribution in the extracted text."
	case strings.Contains(op, "memory"):
		text = "User asked about the paper; assistant answered from retrieved evidence."
	case strings.Contains(op, "summary"):
		text = "## Summary\nDeterministic single-pass summary of the paper."
	default:
		text = "Mock response."
	}
	return GenerateResponse{Text: text}, info, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return unitLength(vec)
}

func unitLength(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
