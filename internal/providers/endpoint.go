package providers

import (
	"net/url"
	"strings"
)

const (
	chatSuffix  = "/chat/completions"
	embedSuffix = "/embeddings"
)

// NormalizeChatEndpoint maps a base URL, a /v1 root or an embeddings URL onto
// the chat-completions URL of the same deployment.
func NormalizeChatEndpoint(raw string) string {
	return normalizeEndpoint(raw, chatSuffix, embedSuffix)
}

// NormalizeEmbeddingEndpoint is the embeddings counterpart of NormalizeChatEndpoint.
func NormalizeEmbeddingEndpoint(raw string) string {
	return normalizeEndpoint(raw, embedSuffix, chatSuffix)
}

func normalizeEndpoint(raw, want, other string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	p := strings.TrimRight(u.Path, "/")
	switch {
	case strings.HasSuffix(p, want):
	case strings.HasSuffix(p, other):
		p = strings.TrimSuffix(p, other) + want
	case p == "":
		p = "/v1" + want
	default:
		p += want
	}
	u.Path = p
	u.RawPath = ""
	return u.String()
}
