package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseMessageContent accepts either a plain string or an array of content
// parts and concatenates the text of the parts.
func parseMessageContent(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("unsupported message content: %s", truncateBody(raw))
	}
	var b strings.Builder
	for _, p := range parts {
		var str string
		if err := json.Unmarshal(p, &str); err == nil {
			b.WriteString(str)
			continue
		}
		var part struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p, &part); err != nil {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String(), nil
}
