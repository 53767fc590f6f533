// Package planner summarises a paper section by section from its bookmarks,
// falling back to a single pass over the leading chunks.
package planner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"paperchat/internal/library"
	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/prompts"
	"paperchat/internal/providers"
	"paperchat/internal/retrieval"
	"paperchat/internal/sections"

	"golang.org/x/sync/errgroup"
)

const (
	ModeSections   = "sections"
	ModeSinglePass = "single-pass"

	MissingDraft = "Insufficient evidence in the extracted section text."
)

const (
	StageIndexReady = "index ready"
	StageContext    = "context extracted"
	StageDrafting   = "drafting sections"
	StageComposing  = "composing"
	StageComplete   = "complete"
)

var uncertainty = regexp.MustCompile(`(?i)insufficient|unclear|not enough|cannot determine`)

type Indexer interface {
	EnsureIndex(ctx context.Context, res library.Resolved) (models.PaperIndex, error)
}

type SectionSource interface {
	Sections(ctx context.Context, path string) ([]models.PdfSectionContext, error)
}

type Options struct {
	CharBudget  int
	Concurrency int
	MaxSections int
}

type Progress struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
}

type ProgressFunc func(Progress)

type Summary struct {
	Text      string                     `json:"text"`
	Mode      string                     `json:"mode"`
	Sections  []models.PdfSectionContext `json:"sections,omitempty"`
	Links     []models.SectionLink       `json:"links,omitempty"`
	Uncertain []string                   `json:"uncertain,omitempty"`
}

type Planner struct {
	index    Indexer
	sections SectionSource
	llm      providers.LLMProvider
	prompts  *prompts.Set
	opts     Options
	log      *logger.Logger
}

func New(index Indexer, src SectionSource, llm providers.LLMProvider, ps *prompts.Set, opts Options, log *logger.Logger) *Planner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if ps == nil {
		ps = prompts.Defaults()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Planner{index: index, sections: src, llm: llm, prompts: ps, opts: opts, log: log}
}

// tracker reports progress without ever going backwards.
type tracker struct {
	mu   sync.Mutex
	last int
	fn   ProgressFunc
}

func (t *tracker) report(pct int, stage string) {
	if t.fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if pct < t.last {
		pct = t.last
	}
	t.last = pct
	t.fn(Progress{Percent: pct, Stage: stage})
}

// Summarize runs the whole plan. Section drafting problems never fail the
// call; they degrade to the single-pass summary.
func (p *Planner) Summarize(ctx context.Context, res library.Resolved, progress ProgressFunc) (Summary, error) {
	tr := &tracker{fn: progress}

	idx, err := p.index.EnsureIndex(ctx, res)
	if err != nil {
		return Summary{}, err
	}
	tr.report(10, StageIndexReady)

	plan, err := p.Plan(ctx, res)
	if err != nil {
		p.log.Warn("section plan unavailable", "paper_id", res.PaperID, "err", err)
	}
	tr.report(25, StageContext)

	if len(plan) > 0 {
		drafts := p.DraftAll(ctx, res, plan, func(done, total int) {
			tr.report(25+60*done/total, StageDrafting)
		})
		if len(drafts) > 0 {
			tr.report(90, StageComposing)
			text, uncertain := Compose(res.Title, plan, drafts)
			if strings.TrimSpace(text) != "" {
				tr.report(100, StageComplete)
				return Summary{
					Text:      text,
					Mode:      ModeSections,
					Sections:  plan,
					Links:     SectionLinks(text, plan, attachmentID(res)),
					Uncertain: uncertain,
				}, nil
			}
		}
		p.log.Warn("no section drafts, using single-pass summary", "paper_id", res.PaperID)
	}

	tr.report(90, StageComposing)
	text, err := p.SinglePass(ctx, res, idx)
	if err != nil {
		return Summary{}, err
	}
	tr.report(100, StageComplete)
	return Summary{Text: text, Mode: ModeSinglePass}, nil
}

// Plan returns the usable bookmark sections of the paper's PDF, or nil when
// there is no local PDF.
func (p *Planner) Plan(ctx context.Context, res library.Resolved) ([]models.PdfSectionContext, error) {
	att := res.AttachmentItem
	if p.sections == nil || att == nil || !att.IsPDF() || att.Path == "" {
		return nil, nil
	}
	all, err := p.sections.Sections(ctx, att.Path)
	if err != nil {
		return nil, err
	}
	return sections.Limit(sections.Usable(all), p.opts.MaxSections), nil
}

// DraftAll drafts every section concurrently and returns the successful
// drafts keyed by section path.
func (p *Planner) DraftAll(ctx context.Context, res library.Resolved, plan []models.PdfSectionContext, onDone func(done, total int)) map[string]string {
	var (
		mu     sync.Mutex
		done   int
		drafts = make(map[string]string, len(plan))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, sec := range plan {
		sec := sec
		g.Go(func() error {
			text, err := p.DraftSection(gctx, res, sec)
			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				p.log.Warn("section draft failed", "paper_id", res.PaperID, "section", sec.Title, "err", err)
			} else {
				drafts[sec.Path] = text
			}
			if onDone != nil {
				onDone(done, len(plan))
			}
			return nil
		})
	}
	_ = g.Wait()
	return drafts
}

// DraftSection summarises one section with its context text as sole evidence.
func (p *Planner) DraftSection(ctx context.Context, res library.Resolved, sec models.PdfSectionContext) (string, error) {
	if p.llm == nil {
		return "", errors.New("no chat provider")
	}
	req := providers.Prompt("section_draft",
		p.prompts.Render(prompts.SectionSystem, map[string]string{"title": res.Title}),
		p.prompts.Render(prompts.SectionUser, map[string]string{
			"title":   res.Title,
			"section": sec.Title,
			"context": "[C1] " + sec.ContextText,
		}),
	)
	req.PaperID = res.PaperID
	resp, _, err := p.llm.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("empty draft")
	}
	return text, nil
}

// SinglePass summarises the leading chunks that fit the character budget.
func (p *Planner) SinglePass(ctx context.Context, res library.Resolved, idx models.PaperIndex) (string, error) {
	if p.llm == nil {
		return "", errors.New("no chat provider")
	}
	chunks := retrieval.Leading(idx, p.opts.CharBudget)
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[C%d] %s", i+1, strings.TrimSpace(ch.Text))
	}
	req := providers.Prompt("summary",
		p.prompts.Render(prompts.SummarySystem, map[string]string{"title": res.Title}),
		p.prompts.Render(prompts.SummaryUser, map[string]string{"title": res.Title, "context": b.String()}),
	)
	req.PaperID = res.PaperID
	resp, _, err := p.llm.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("single-pass summary: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Compose joins drafts in plan order, inserting MissingDraft for sections
// without one, and lists the sections whose text admits uncertainty.
func Compose(title string, plan []models.PdfSectionContext, drafts map[string]string) (string, []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Summary: %s\n", strings.TrimSpace(title))
	uncertain := make([]string, 0)
	for _, sec := range plan {
		text, ok := drafts[sec.Path]
		if !ok || strings.TrimSpace(text) == "" {
			text = MissingDraft
		}
		fmt.Fprintf(&b, "\n%s %s\n\n%s\n", headingMarks(sec.Depth), strings.TrimSpace(sec.Title), strings.TrimSpace(text))
		if uncertainty.MatchString(text) {
			uncertain = append(uncertain, sec.Title)
		}
	}
	if len(uncertain) > 0 {
		b.WriteString("\n## Sections with limited evidence\n\n")
		for _, t := range uncertain {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	return b.String(), uncertain
}

func headingMarks(depth int) string {
	switch {
	case depth <= 0:
		return "##"
	case depth == 1:
		return "###"
	}
	return "####"
}

func attachmentID(res library.Resolved) string {
	if res.AttachmentItem == nil {
		return ""
	}
	return res.AttachmentItem.ID
}
