// Package retrieval ranks paper chunks for a query, keyword-only or fused with
// dense similarity.
package retrieval

import (
	"context"
	"sort"

	"paperchat/internal/embeddings"
	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/vector"
)

const (
	ModeKeyword = "keyword"
	ModeHybrid  = "hybrid"

	shortQueryTokens = 4
	denseWeightShort = 0.62
	denseWeightLong  = 0.55
)

type Options struct {
	Hybrid     bool
	CharBudget int
}

type Result struct {
	Chunks []models.TextChunk `json:"chunks"`
	Mode   string             `json:"mode"`
}

type Engine struct {
	cache *embeddings.Cache
	opts  Options
	log   *logger.Logger
}

func NewEngine(cache *embeddings.Cache, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{cache: cache, opts: opts, log: log}
}

type scored struct {
	pos   int
	score float64
}

// Retrieve never fails: a broken dense path degrades to keyword ranking.
func (e *Engine) Retrieve(ctx context.Context, paperID string, idx models.PaperIndex, query string, topK int) Result {
	if topK <= 0 {
		topK = 6
	}
	qTokens := Tokenize(query)
	if e.opts.Hybrid && e.cache != nil && len(qTokens) > 0 {
		ranked, err := e.hybrid(ctx, paperID, idx, query, qTokens, topK)
		if err == nil {
			return Result{Chunks: e.budget(idx, ranked), Mode: ModeHybrid}
		}
		e.log.Warn("dense retrieval failed, using keyword ranking", "paper_id", paperID, "err", err)
	}
	return e.keyword(idx, qTokens, topK)
}

func (e *Engine) keyword(idx models.PaperIndex, qTokens []string, topK int) Result {
	hits := make([]scored, 0, len(idx.Chunks))
	if len(qTokens) > 0 {
		for i, ch := range idx.Chunks {
			if s := KeywordScore(qTokens, ch.Text); s > 0 {
				hits = append(hits, scored{pos: i, score: s})
			}
		}
	}
	if len(hits) == 0 {
		return Result{Chunks: e.prefix(idx), Mode: ModeKeyword}
	}
	rank(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return Result{Chunks: e.budget(idx, hits), Mode: ModeKeyword}
}

func (e *Engine) hybrid(ctx context.Context, paperID string, idx models.PaperIndex, query string, qTokens []string, topK int) ([]scored, error) {
	qv, err := e.cache.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	vecs, err := e.cache.GetOrCreate(ctx, paperID, idx)
	if err != nil {
		return nil, err
	}

	lexical := make(map[string]float64, len(idx.Chunks))
	dense := make(map[string]float64, len(idx.Chunks))
	for _, ch := range idx.Chunks {
		lexical[ch.ID] = KeywordScore(qTokens, ch.Text)
		dense[ch.ID] = vector.Cosine(qv, vecs[ch.ID])
	}
	lexical = vector.MinMaxNormalize(lexical)
	dense = vector.MinMaxNormalize(dense)

	w := denseWeightLong
	if len(qTokens) < shortQueryTokens {
		w = denseWeightShort
	}
	hits := make([]scored, 0, len(idx.Chunks))
	for i, ch := range idx.Chunks {
		s := w*dense[ch.ID] + (1-w)*lexical[ch.ID]
		if s > 0 {
			hits = append(hits, scored{pos: i, score: s})
		}
	}
	rank(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func rank(hits []scored) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score == hits[j].score {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].score > hits[j].score
	})
}

// budget keeps ranked chunks until the character budget is exceeded. The
// first chunk is always kept.
func (e *Engine) budget(idx models.PaperIndex, hits []scored) []models.TextChunk {
	out := make([]models.TextChunk, 0, len(hits))
	total := 0
	for i, h := range hits {
		ch := idx.Chunks[h.pos]
		total += len([]rune(ch.Text))
		if i > 0 && e.opts.CharBudget > 0 && total > e.opts.CharBudget {
			break
		}
		out = append(out, ch)
	}
	return out
}

// prefix returns leading chunks in content order within the budget.
func (e *Engine) prefix(idx models.PaperIndex) []models.TextChunk {
	hits := make([]scored, 0, len(idx.Chunks))
	for i := range idx.Chunks {
		hits = append(hits, scored{pos: i})
	}
	return e.budget(idx, hits)
}

// Leading returns the first chunks of a paper within charBudget, for
// single-pass summaries.
func Leading(idx models.PaperIndex, charBudget int) []models.TextChunk {
	return (&Engine{opts: Options{CharBudget: charBudget}}).prefix(idx)
}
