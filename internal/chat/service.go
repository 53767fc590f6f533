// Package chat ties the library, paper index, retrieval, planner and store
// together into the ask and summarize flows.
package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"paperchat/internal/conversation"
	"paperchat/internal/library"
	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/planner"
	"paperchat/internal/prompts"
	"paperchat/internal/providers"
	"paperchat/internal/retrieval"
	"paperchat/internal/session"
	"paperchat/internal/store"
	"paperchat/internal/util"
)

const (
	ViewAnswer  = "answer"
	ViewSummary = "summary"

	// SummarizeRequest is the user turn stored with a summary.
	SummarizeRequest = "Summarize this paper."
)

var ErrNoPDF = errors.New("paper has no local PDF attachment")

type Options struct {
	TopK              int
	HistoryTurns      int
	MemoryThreshold   int
	MemoryWindow      int
	MaxStoredMessages int
	RequireEvidence   bool
	// SummaryDir receives one markdown file per summarised paper when set.
	SummaryDir string
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 6
	}
	if o.HistoryTurns < 0 {
		o.HistoryTurns = 0
	}
	if o.MemoryThreshold <= 0 {
		o.MemoryThreshold = 6
	}
	if o.MemoryWindow <= 0 {
		o.MemoryWindow = 12
	}
	if o.MaxStoredMessages <= 0 {
		o.MaxStoredMessages = 200
	}
	return o
}

type OutlineSource interface {
	Outline(ctx context.Context, path string) ([]models.PdfOutlineNode, error)
	Sections(ctx context.Context, path string) ([]models.PdfSectionContext, error)
}

type Deps struct {
	Catalog   library.Catalog
	Index     planner.Indexer
	Retriever *retrieval.Engine
	Planner   *planner.Planner
	Outlines  OutlineSource
	Store     *store.Store
	LLM       providers.LLMProvider
	Prompts   *prompts.Set
	Panel     *session.Panel
}

type Service struct {
	catalog   library.Catalog
	index     planner.Indexer
	retriever *retrieval.Engine
	planner   *planner.Planner
	outlines  OutlineSource
	store     *store.Store
	llm       providers.LLMProvider
	prompts   *prompts.Set
	panel     *session.Panel
	opts      Options
	log       *logger.Logger

	wg         sync.WaitGroup
	mu         sync.Mutex
	refreshing map[string]bool
	rerun      map[string]bool
}

func NewService(d Deps, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if d.Prompts == nil {
		d.Prompts = prompts.Defaults()
	}
	if d.Panel == nil {
		d.Panel = session.NewPanel()
	}
	return &Service{
		catalog:    d.Catalog,
		index:      d.Index,
		retriever:  d.Retriever,
		planner:    d.Planner,
		outlines:   d.Outlines,
		store:      d.Store,
		llm:        d.LLM,
		prompts:    d.Prompts,
		panel:      d.Panel,
		opts:       opts.withDefaults(),
		log:        log.With("component", "chat"),
		refreshing: map[string]bool{},
		rerun:      map[string]bool{},
	}
}

type AskResult struct {
	PaperID  string             `json:"paperId"`
	Title    string             `json:"title"`
	Answer   string             `json:"answer"`
	Mode     string             `json:"mode"`
	Evidence []models.TextChunk `json:"evidence"`
	Shown    bool               `json:"shown"`
}

type SummaryResult struct {
	PaperID string          `json:"paperId"`
	Title   string          `json:"title"`
	Summary planner.Summary `json:"summary"`
	File    string          `json:"file,omitempty"`
	Shown   bool            `json:"shown"`
}

func (s *Service) Resolve(ctx context.Context, itemID string) (library.Resolved, error) {
	return library.Resolve(ctx, s.catalog, itemID)
}

func (s *Service) Panel() *session.Panel { return s.panel }

func (s *Service) Planner() *planner.Planner { return s.planner }

// Ask answers question from the paper's best matching chunks and stores the
// turn pair.
func (s *Service) Ask(ctx context.Context, itemID, question string) (AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AskResult{}, errors.New("question is empty")
	}
	res, err := s.Resolve(ctx, itemID)
	if err != nil {
		return AskResult{}, err
	}
	gen := s.panel.Begin(res.PaperID)

	idx, err := s.index.EnsureIndex(ctx, res)
	if err != nil {
		return AskResult{}, err
	}
	found := s.retriever.Retrieve(ctx, res.PaperID, idx, question, s.opts.TopK)

	mem, hasMem := s.store.Memory(res.PaperID)
	vars := map[string]string{"title": res.Title}
	msgs := []providers.Message{{Role: "system", Content: s.prompts.Render(prompts.AskSystem, vars)}}
	msgs = append(msgs, conversation.History(s.store.Conversation(res.PaperID), s.opts.HistoryTurns)...)
	msgs = append(msgs, providers.Message{Role: "user", Content: s.prompts.Render(prompts.AskUser, map[string]string{
		"title":    res.Title,
		"memory":   conversation.MemoryBlock(mem, hasMem),
		"context":  conversation.FormatContext(found.Chunks),
		"question": question,
	})})

	resp, _, err := s.llm.Generate(ctx, providers.GenerateRequest{Operation: "ask", PaperID: res.PaperID, Messages: msgs})
	if err != nil {
		return AskResult{}, fmt.Errorf("ask: %w", err)
	}
	answer := strings.TrimSpace(resp.Text)
	if s.opts.RequireEvidence {
		answer = conversation.EnforceEvidence(answer, found.Chunks, question, s.prompts.Render(prompts.EvidenceNotice, vars))
	}

	now := time.Now().UTC()
	if _, err := s.store.AppendMessages(ctx, res.PaperID, s.opts.MaxStoredMessages,
		models.ChatMessage{Role: models.RoleUser, Content: question, CreatedAt: now},
		models.ChatMessage{Role: models.RoleAssistant, Content: answer, CreatedAt: now},
	); err != nil {
		return AskResult{}, fmt.Errorf("save conversation: %w", err)
	}
	s.refreshMemory(res)

	shown := s.panel.Commit(res.PaperID, gen, session.View{Kind: ViewAnswer, Content: answer})
	if !shown {
		s.log.Debug("answer superseded", "paper_id", res.PaperID, "generation", gen)
	}
	return AskResult{
		PaperID:  res.PaperID,
		Title:    res.Title,
		Answer:   answer,
		Mode:     found.Mode,
		Evidence: found.Chunks,
		Shown:    shown,
	}, nil
}

// Summarize runs the planner and records the result as a conversation turn.
func (s *Service) Summarize(ctx context.Context, itemID string, progress planner.ProgressFunc) (SummaryResult, error) {
	res, err := s.Resolve(ctx, itemID)
	if err != nil {
		return SummaryResult{}, err
	}
	gen := s.panel.Begin(res.PaperID)
	sum, err := s.planner.Summarize(ctx, res, progress)
	if err != nil {
		return SummaryResult{}, err
	}
	out, err := s.SaveSummary(ctx, res, sum)
	if err != nil {
		return SummaryResult{}, err
	}
	out.Shown = s.panel.Commit(res.PaperID, gen, session.View{Kind: ViewSummary, Content: sum.Text})
	return out, nil
}

// SaveSummary persists a finished summary: the turn pair, the markdown file
// and a memory refresh.
func (s *Service) SaveSummary(ctx context.Context, res library.Resolved, sum planner.Summary) (SummaryResult, error) {
	now := time.Now().UTC()
	if _, err := s.store.AppendMessages(ctx, res.PaperID, s.opts.MaxStoredMessages,
		models.ChatMessage{Role: models.RoleUser, Content: SummarizeRequest, CreatedAt: now},
		models.ChatMessage{Role: models.RoleAssistant, Content: sum.Text, CreatedAt: now, SectionLinks: sum.Links},
	); err != nil {
		return SummaryResult{}, fmt.Errorf("save summary: %w", err)
	}
	out := SummaryResult{PaperID: res.PaperID, Title: res.Title, Summary: sum}
	if s.opts.SummaryDir != "" {
		path, err := s.writeSummaryFile(res, sum.Text)
		if err != nil {
			s.log.Warn("summary file not written", "paper_id", res.PaperID, "error", err)
		} else {
			out.File = path
		}
	}
	s.refreshMemory(res)
	return out, nil
}

func (s *Service) writeSummaryFile(res library.Resolved, text string) (string, error) {
	if err := util.EnsureDir(s.opts.SummaryDir); err != nil {
		return "", err
	}
	path := util.SafeJoin(s.opts.SummaryDir, fileStem(res.PaperID)+".md")
	if err := util.WriteTextAtomic(path, text); err != nil {
		return "", err
	}
	return path, nil
}

func fileStem(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}

// Clear drops the conversation and memory but keeps the paper index.
func (s *Service) Clear(ctx context.Context, itemID string) (library.Resolved, error) {
	res, err := s.Resolve(ctx, itemID)
	if err != nil {
		return library.Resolved{}, err
	}
	if err := s.store.ClearConversation(ctx, res.PaperID); err != nil {
		return res, fmt.Errorf("clear conversation: %w", err)
	}
	s.panel.Reset(res.PaperID)
	return res, nil
}

func (s *Service) History(ctx context.Context, itemID string) (library.Resolved, []models.ChatMessage, error) {
	res, err := s.Resolve(ctx, itemID)
	if err != nil {
		return library.Resolved{}, nil, err
	}
	return res, s.store.Conversation(res.PaperID), nil
}

// Export writes the stored conversation as JSON lines, one message per line.
func (s *Service) Export(ctx context.Context, itemID, path string) (int, error) {
	_, msgs, err := s.History(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := util.EnsureDir(dir); err != nil {
			return 0, err
		}
	}
	rows := make([]any, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, m)
	}
	if err := util.WriteJSONLinesAtomic(path, rows); err != nil {
		return 0, fmt.Errorf("export conversation: %w", err)
	}
	return len(rows), nil
}

func (s *Service) Outline(ctx context.Context, itemID string) ([]models.PdfOutlineNode, error) {
	path, err := s.pdfPath(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.outlines.Outline(ctx, path)
}

func (s *Service) Sections(ctx context.Context, itemID string) ([]models.PdfSectionContext, error) {
	path, err := s.pdfPath(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.outlines.Sections(ctx, path)
}

func (s *Service) pdfPath(ctx context.Context, itemID string) (string, error) {
	res, err := s.Resolve(ctx, itemID)
	if err != nil {
		return "", err
	}
	att := res.AttachmentItem
	if att == nil || !att.IsPDF() || att.Path == "" || !util.FileExists(att.Path) {
		return "", ErrNoPDF
	}
	if s.outlines == nil {
		return "", errors.New("outline reader not configured")
	}
	return att.Path, nil
}

// Wait blocks until background memory refreshes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// refreshMemory runs one background refresh per paper; a request arriving
// while one runs is folded into a single rerun.
func (s *Service) refreshMemory(res library.Resolved) {
	s.mu.Lock()
	if s.refreshing[res.PaperID] {
		s.rerun[res.PaperID] = true
		s.mu.Unlock()
		return
	}
	s.refreshing[res.PaperID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if err := s.updateMemory(ctx, res); err != nil {
				s.log.Warn("memory refresh failed", "paper_id", res.PaperID, "error", err)
			}
			cancel()

			s.mu.Lock()
			if !s.rerun[res.PaperID] {
				delete(s.refreshing, res.PaperID)
				s.mu.Unlock()
				return
			}
			delete(s.rerun, res.PaperID)
			s.mu.Unlock()
		}
	}()
}

func (s *Service) updateMemory(ctx context.Context, res library.Resolved) error {
	msgs := s.store.Conversation(res.PaperID)
	turns := s.store.TurnTotal(res.PaperID)
	mem, ok := s.store.Memory(res.PaperID)
	if !conversation.ShouldRefreshMemory(msgs, turns, mem, ok, s.opts.MemoryThreshold) {
		return nil
	}
	prev := strings.TrimSpace(mem.Summary)
	if prev == "" {
		prev = "(none)"
	}
	req := providers.Prompt("memory",
		s.prompts.Render(prompts.MemorySystem, map[string]string{"title": res.Title}),
		s.prompts.Render(prompts.MemoryUser, map[string]string{
			"title":    res.Title,
			"memory":   prev,
			"messages": conversation.Transcript(msgs, s.opts.MemoryWindow),
		}),
	)
	req.PaperID = res.PaperID
	resp, _, err := s.llm.Generate(ctx, req)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil
	}
	return s.store.PutMemory(ctx, res.PaperID, models.ConversationMemory{
		Summary:   text,
		UpdatedAt: time.Now().UTC(),
		TurnCount: turns,
	})
}
