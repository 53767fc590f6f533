// Package session tracks which in-flight request owns a paper's visible
// result. Each request takes a generation at start; a result commits only if
// no newer request for the same paper has started since.
package session

import (
	"sync"
	"time"
)

type View struct {
	PaperID    string    `json:"paperId"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Panel struct {
	mu    sync.Mutex
	gens  map[string]uint64
	views map[string]View
}

func NewPanel() *Panel {
	return &Panel{gens: map[string]uint64{}, views: map[string]View{}}
}

// Begin supersedes any earlier request for paperID and returns the new
// generation.
func (p *Panel) Begin(paperID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gens[paperID]++
	return p.gens[paperID]
}

func (p *Panel) Current(paperID string, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gens[paperID] == gen
}

// Commit stores v if gen is still current and reports whether it did.
func (p *Panel) Commit(paperID string, gen uint64, v View) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gens[paperID] != gen {
		return false
	}
	v.PaperID = paperID
	v.Generation = gen
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	p.views[paperID] = v
	return true
}

func (p *Panel) View(paperID string) (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.views[paperID]
	return v, ok
}

// Reset drops the committed view and supersedes in-flight requests.
func (p *Panel) Reset(paperID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gens[paperID]++
	delete(p.views, paperID)
}
