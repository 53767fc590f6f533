package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSubstitutesVerbatim(t *testing.T) {
	s := Defaults()
	got := s.Render(SectionUser, map[string]string{"section": "2 Method", "context": "uses {{title}} literally"})
	if !strings.Contains(got, "Section: 2 Method") || !strings.Contains(got, "uses {{title}} literally") {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestLoadOverridesAndFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	if err := os.WriteFile(path, []byte(`{"ask_system":"Custom {{title}}","ask_user":""}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Load(path, nil)
	if got := s.Render(AskSystem, map[string]string{"title": "X"}); got != "Custom X" {
		t.Fatalf("override not applied: %q", got)
	}
	if s.Template(AskUser) != defaults[AskUser] {
		t.Fatalf("blank override must keep default")
	}

	broken := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	if broken.Template(AskSystem) != defaults[AskSystem] {
		t.Fatalf("missing file must fall back to defaults")
	}
}

func TestRenderDoesNotRescanValues(t *testing.T) {
	s := &Set{templates: map[string]string{"t": "{{a}} and {{b}}"}}
	got := s.Render("t", map[string]string{"a": "{{b}}", "b": "B"})
	if got != "{{b}} and B" {
		t.Fatalf("got %q", got)
	}
}
