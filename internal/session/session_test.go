package session

import "testing"

func TestStaleResultIsDiscarded(t *testing.T) {
	p := NewPanel()
	first := p.Begin("p1")
	second := p.Begin("p1")

	if p.Commit("p1", first, View{Kind: "summary", Content: "old"}) {
		t.Fatalf("superseded generation must not commit")
	}
	if !p.Commit("p1", second, View{Kind: "summary", Content: "new"}) {
		t.Fatalf("current generation must commit")
	}
	v, ok := p.View("p1")
	if !ok || v.Content != "new" || v.Generation != second {
		t.Fatalf("unexpected view %+v", v)
	}

	other := p.Begin("p2")
	if !p.Current("p2", other) || !p.Current("p1", second) {
		t.Fatalf("papers must not share generations")
	}

	p.Reset("p1")
	if _, ok := p.View("p1"); ok {
		t.Fatalf("reset must drop the view")
	}
	if p.Current("p1", second) {
		t.Fatalf("reset must supersede in-flight requests")
	}
}
