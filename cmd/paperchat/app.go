package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"paperchat/internal/api"
	"paperchat/internal/chat"
	"paperchat/internal/config"
	"paperchat/internal/embeddings"
	"paperchat/internal/library"
	"paperchat/internal/library/zotero"
	"paperchat/internal/logger"
	"paperchat/internal/paperindex"
	"paperchat/internal/planner"
	"paperchat/internal/prompts"
	"paperchat/internal/providers"
	"paperchat/internal/retrieval"
	"paperchat/internal/sections"
	"paperchat/internal/storage"
	"paperchat/internal/store"
	"paperchat/internal/util"
)

// app holds everything one command invocation needs. close releases it in
// reverse order of construction.
type app struct {
	cfg     config.Config
	log     *logger.Logger
	svc     *chat.Service
	index   *paperindex.Manager
	lister  api.Lister
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, log.Sync)

	if err := util.EnsureDir(cfg.DataDir); err != nil {
		a.close()
		return nil, err
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	catalog, err := a.openLibrary(ctx, pm)
	if err != nil {
		a.close()
		return nil, err
	}

	st := store.Open(cfg.StorePath(), log)
	a.closers = append(a.closers, st.Close)
	ps := prompts.Load(cfg.PromptsPath, log)

	a.index = paperindex.NewManager(st, catalog, paperindex.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TextCacheDir: filepath.Join(cfg.DataDir, "text-cache"),
	}, log)

	var cache *embeddings.Cache
	if cfg.HybridRetrieval {
		if emb := pm.Embedder(); emb != nil {
			cache = embeddings.NewCache(st, emb, cfg.EmbedBatchSize, cfg.EmbedDim, log)
		}
	}
	retriever := retrieval.NewEngine(cache, retrieval.Options{Hybrid: cfg.HybridRetrieval, CharBudget: cfg.ContextCharBudget}, log)
	loader := sections.NewLoader(sections.Options{
		MaxPages:    cfg.SectionMaxPages,
		MaxChars:    cfg.SectionMaxChars,
		MaxSections: cfg.MaxSections,
	}, log)
	pl := planner.New(a.index, loader, pm, ps, planner.Options{
		CharBudget:  cfg.ContextCharBudget,
		MaxSections: cfg.MaxSections,
	}, log)

	a.svc = chat.NewService(chat.Deps{
		Catalog:   catalog,
		Index:     a.index,
		Retriever: retriever,
		Planner:   pl,
		Outlines:  loader,
		Store:     st,
		LLM:       pm,
		Prompts:   ps,
	}, chat.Options{
		TopK:              cfg.TopK,
		HistoryTurns:      cfg.HistoryTurns,
		MemoryThreshold:   cfg.MemoryThreshold,
		MemoryWindow:      cfg.MemoryWindow,
		MaxStoredMessages: cfg.MaxStoredMessages,
		RequireEvidence:   cfg.RequireEvidence,
		SummaryDir:        filepath.Join(cfg.DataDir, "summaries"),
	}, log)
	a.closers = append(a.closers, a.svc.Wait)
	return a, nil
}

// openLibrary opens the configured catalog. A Postgres literature database also receives
// the chat audit records.
func (a *app) openLibrary(ctx context.Context, pm *providers.Manager) (library.Catalog, error) {
	cfg := a.cfg
	switch strings.ToLower(cfg.LibraryKind) {
	case "", "dir":
		c, err := library.NewDirCatalog(cfg.LibraryPath, a.log)
		if err != nil {
			return nil, err
		}
		a.lister = c
		return c, nil
	case "zotero":
		c, err := zotero.Open(cfg.LibraryPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		return c, nil
	case "postgres":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := storage.NewDB(dialCtx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.EnsureAuditSchema(dialCtx); err != nil {
			a.log.Warn("llm audit table unavailable", "error", err)
		} else {
			pm.SetRecorder(storage.NewLLMAuditRepo(db))
		}
		c := storage.NewCatalog(db, cfg.LibraryPath)
		a.lister = api.ListerFunc(func(ctx context.Context) ([]library.Item, error) {
			return c.List(ctx, "", 0)
		})
		return c, nil
	}
	return nil, fmt.Errorf("unknown library kind %q (want dir, zotero or postgres)", cfg.LibraryKind)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
