package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"paperchat/internal/chat"
	"paperchat/internal/library"
	"paperchat/internal/logger"
	"paperchat/internal/planner"
	"paperchat/internal/session"
	"paperchat/internal/util"
	"paperchat/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Options struct {
	TaskQueue           string
	MaxConcurrentDrafts int
	MaxSections         int
	// RunRetention is how long a finished in-process summary run stays
	// queryable. Defaults to one hour.
	RunRetention time.Duration
}

// Lister is implemented by catalogs that can enumerate their papers.
type Lister interface {
	List(ctx context.Context) ([]library.Item, error)
}

type ListerFunc func(ctx context.Context) ([]library.Item, error)

func (f ListerFunc) List(ctx context.Context) ([]library.Item, error) { return f(ctx) }

type Server struct {
	svc      *chat.Service
	lister   Lister
	temporal tclient.Client
	opts     Options
	log      *logger.Logger

	mu   sync.Mutex
	runs map[string]*localRun
}

type localRun struct {
	progress workflows.SummarizeProgress
	result   *workflows.SummarizeResult
	finished time.Time
}

// NewServer serves svc over HTTP. tc may be nil, in which case summaries run
// in-process and progress is kept in memory.
func NewServer(svc *chat.Service, lister Lister, tc tclient.Client, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if opts.RunRetention <= 0 {
		opts.RunRetention = time.Hour
	}
	return &Server{
		svc:      svc,
		lister:   lister,
		temporal: tc,
		opts:     opts,
		log:      log.With("component", "api"),
		runs:     map[string]*localRun{},
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/papers", s.handlePapers)
	mux.HandleFunc("/papers/", s.handlePaperScoped)
	mux.HandleFunc("/summaries/", s.handleSummary)
	return withCORS(s.withRequestID(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "temporal": s.temporal != nil})
}

func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.lister == nil {
		writeErr(w, http.StatusNotImplemented, fmt.Errorf("library cannot list papers"))
		return
	}
	items, err := s.lister.List(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": items})
}

// handlePaperScoped serves /papers/{id}/{action}. Item ids may contain
// slashes, so the action is always the last segment.
func (s *Server) handlePaperScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/papers/"), "/")
	cut := strings.LastIndex(rest, "/")
	if cut <= 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	itemID, action := rest[:cut], rest[cut+1:]

	post := map[string]bool{"summarize": true, "ask": true, "clear": true}
	get := map[string]bool{"outline": true, "sections": true, "history": true, "panel": true}
	switch {
	case post[action] && r.Method != http.MethodPost, get[action] && r.Method != http.MethodGet:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	case !post[action] && !get[action]:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	switch action {
	case "summarize":
		s.handleSummarize(w, r, itemID)
	case "ask":
		s.handleAsk(w, r, itemID)
	case "clear":
		res, err := s.svc.Clear(r.Context(), itemID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paper_id": res.PaperID})
	case "outline":
		nodes, err := s.svc.Outline(r.Context(), itemID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outline": nodes})
	case "sections":
		secs, err := s.svc.Sections(r.Context(), itemID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sections": secs})
	case "history":
		res, msgs, err := s.svc.History(r.Context(), itemID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"paper_id": res.PaperID, "title": res.Title, "messages": msgs})
	case "panel":
		res, err := s.svc.Resolve(r.Context(), itemID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		view, ok := s.svc.Panel().View(res.PaperID)
		if !ok {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no result shown for this paper"))
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, itemID string) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}
	out, err := s.svc.Ask(r.Context(), itemID, req.Question)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSummarize starts a summary run and answers 202 with its id. With
// ?wait=true and no Temporal client the summary is returned directly.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request, itemID string) {
	res, err := s.svc.Resolve(r.Context(), itemID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	if s.temporal != nil {
		s.startWorkflow(w, r, itemID, res)
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		out, err := s.svc.Summarize(r.Context(), itemID, nil)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	runID := "local-" + uuid.NewString()
	run := &localRun{progress: workflows.SummarizeProgress{
		ItemID:        itemID,
		PaperID:       res.PaperID,
		Title:         res.Title,
		Status:        workflows.StatusRunning,
		SectionStatus: map[string]string{},
	}}
	s.mu.Lock()
	s.pruneRuns(time.Now())
	s.runs[runID] = run
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		out, err := s.svc.Summarize(ctx, itemID, func(p planner.Progress) {
			s.mu.Lock()
			run.progress.Percent = p.Percent
			run.progress.Stage = p.Stage
			s.mu.Unlock()
		})
		s.mu.Lock()
		defer s.mu.Unlock()
		run.finished = time.Now()
		if err != nil {
			s.log.Warn("summary failed", "item_id", itemID, "error", err)
			run.progress.Status = workflows.StatusFailed
			run.progress.FailReason = err.Error()
			return
		}
		run.progress.Status = workflows.StatusCompleted
		run.result = &workflows.SummarizeResult{
			PaperID:   out.PaperID,
			Title:     out.Title,
			Mode:      out.Summary.Mode,
			Text:      out.Summary.Text,
			File:      out.File,
			Uncertain: out.Summary.Uncertain,
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": runID, "paper_id": res.PaperID})
}

// pruneRuns drops in-process runs that finished more than RunRetention ago.
// Callers hold s.mu.
func (s *Server) pruneRuns(now time.Time) {
	for id, run := range s.runs {
		if !run.finished.IsZero() && now.Sub(run.finished) > s.opts.RunRetention {
			delete(s.runs, id)
		}
	}
}

func (s *Server) startWorkflow(w http.ResponseWriter, r *http.Request, itemID string, res library.Resolved) {
	wfID := workflows.WorkflowID(res.PaperID, uuid.NewString()[:8])
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.opts.TaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.SummarizeWorkflow, workflows.SummarizeInput{
		ItemID:              itemID,
		MaxConcurrentDrafts: s.opts.MaxConcurrentDrafts,
		MaxSections:         s.opts.MaxSections,
	})
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}

	panel := s.svc.Panel()
	gen := panel.Begin(res.PaperID)
	go func() {
		var out workflows.SummarizeResult
		if err := we.Get(context.Background(), &out); err != nil {
			s.log.Warn("summary workflow failed", "workflow_id", we.GetID(), "error", err)
			return
		}
		panel.Commit(res.PaperID, gen, session.View{Kind: chat.ViewSummary, Content: out.Text})
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID(), "paper_id": res.PaperID})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	wfID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/summaries/"), "/")
	if wfID == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	if strings.HasPrefix(wfID, "local-") {
		s.mu.Lock()
		run, ok := s.runs[wfID]
		var body map[string]any
		if ok {
			body = map[string]any{"progress": run.progress}
			if run.result != nil {
				body["result"] = *run.result
			}
		}
		s.mu.Unlock()
		if !ok {
			writeErr(w, http.StatusNotFound, fmt.Errorf("unknown summary run"))
			return
		}
		writeJSON(w, http.StatusOK, body)
		return
	}

	if s.temporal == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("unknown summary run"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), wfID, "", workflows.QueryGetProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	var prog workflows.SummarizeProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	body := map[string]any{"progress": prog}
	if prog.Status == workflows.StatusCompleted {
		var out workflows.SummarizeResult
		if err := s.temporal.GetWorkflow(r.Context(), wfID, "").Get(r.Context(), &out); err == nil {
			body["result"] = out
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "request_id", id, "method", r.Method, "path", r.URL.Path, "elapsed_ms", time.Since(start).Milliseconds())
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrNotFound), errors.Is(err, chat.ErrNoPDF):
		return http.StatusNotFound
	case errors.Is(err, util.ErrContentUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, util.ErrConfigMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, util.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "PC-API-4000"

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "PC-API-5020", Message: "Model provider unavailable. Retry shortly."}
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "PC-API-5030", Message: "Model endpoint is not configured."}
	case status == http.StatusNotImplemented:
		return apiError{Code: "PC-API-5010", Message: "The configured library does not support this request."}
	case status >= 500:
		return apiError{Code: "PC-API-5000", Message: "Internal server error. Please retry or check service logs."}
	case status == http.StatusBadRequest:
		code = "PC-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "PC-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "PC-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusUnprocessableEntity:
		code = "PC-API-4022"
		msg = "No readable content was found for this paper."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "question is required"):
			msg = "A question is required."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		case errors.Is(err, chat.ErrNoPDF):
			msg = "This paper has no local PDF attachment."
		case strings.Contains(low, "no result shown"):
			msg = "Nothing has been shown for this paper yet."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
