// Package prompts holds the chat templates. Templates are plain strings with
// {{placeholder}} tokens; a JSON file of {name: template} may override them.
package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"paperchat/internal/logger"
)

const (
	AskSystem      = "ask_system"
	AskUser        = "ask_user"
	SectionSystem  = "section_system"
	SectionUser    = "section_user"
	SummarySystem  = "summary_system"
	SummaryUser    = "summary_user"
	MemorySystem   = "memory_system"
	MemoryUser     = "memory_user"
	EvidenceNotice = "evidence_notice"
)

var defaults = map[string]string{
	AskSystem: `You answer questions about the research paper "{{title}}".
Use only the numbered context excerpts. Cite every claim with its label, e.g. [C2].
If the excerpts do not contain the answer, say so plainly.`,

	AskUser: `{{memory}}Context excerpts:
{{context}}

Question: {{question}}`,

	SectionSystem: `You summarise one section of the research paper "{{title}}".
Use only the provided section text. Be concise and factual.
If the text is not enough to summarise the section, say "Insufficient evidence".`,

	SectionUser: `Section: {{section}}

Section text:
{{context}}

Write 2-5 sentences covering the section's purpose, method and findings.`,

	SummarySystem: `You summarise the research paper "{{title}}" from the provided excerpts.
Use markdown with short headings. Do not invent results that are not in the excerpts.`,

	SummaryUser: `Excerpts:
{{context}}

Summarise the paper: problem, approach, key results and limitations.`,

	MemorySystem: `You maintain a compact memory of a conversation about the paper "{{title}}".
Keep facts the user established, open questions and preferences. At most 8 bullet points.`,

	MemoryUser: `Previous memory:
{{memory}}

Recent messages:
{{messages}}

Write the updated memory.`,

	EvidenceNotice: `Note: this answer did not cite the paper. Closest evidence from the paper:`,
}

type Set struct {
	templates map[string]string
}

// Defaults returns the built-in templates.
func Defaults() *Set {
	t := make(map[string]string, len(defaults))
	for k, v := range defaults {
		t[k] = v
	}
	return &Set{templates: t}
}

var warnOnce sync.Once

// Load reads overrides from path. Any failure falls back to the defaults and is
// logged once per process.
func Load(path string, log *logger.Logger) *Set {
	s := Defaults()
	if strings.TrimSpace(path) == "" {
		return s
	}
	overrides, err := readFile(path)
	if err != nil {
		warnOnce.Do(func() {
			if log != nil {
				log.Warn("prompt templates unavailable, using defaults", "path", path, "err", err)
			}
		})
		return s
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			s.templates[k] = v
		}
	}
	return s
}

func readFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// Render substitutes {{key}} tokens verbatim. Unknown tokens are left as is.
func (s *Set) Render(name string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s.templates[name])
}

func (s *Set) Template(name string) string {
	return s.templates[name]
}
