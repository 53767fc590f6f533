package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"paperchat/internal/activities"
	"paperchat/internal/api"
	"paperchat/internal/workflows"

	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API; with Temporal enabled also run the summarize worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, opts, func(a *app) error {
				if addr == "" {
					addr = a.cfg.APIAddr
				}
				return serve(ctx, a, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default PAPERCHAT_API_ADDR)")
	return cmd
}

// serve runs the API and, when enabled, a Temporal worker in the same
// process so the store keeps a single writer.
func serve(ctx context.Context, a *app, addr string) error {
	var tc tclient.Client
	if a.cfg.TemporalEnabled {
		c, err := tclient.Dial(tclient.Options{HostPort: a.cfg.TemporalAddress})
		if err != nil {
			return fmt.Errorf("dial temporal: %w", err)
		}
		defer c.Close()
		tc = c

		w := worker.New(c, a.cfg.TemporalTaskQueue, worker.Options{})
		workflows.Register(w)
		activities.Register(w, activities.New(a.svc, a.index))
		if err := w.Start(); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer w.Stop()
		a.log.Info("temporal worker started", "address", a.cfg.TemporalAddress, "queue", a.cfg.TemporalTaskQueue)
	}

	h := api.NewServer(a.svc, a.lister, tc, api.Options{
		TaskQueue:   a.cfg.TemporalTaskQueue,
		MaxSections: a.cfg.MaxSections,
	}, a.log)
	srv := &http.Server{Addr: addr, Handler: h.Routes(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("paperchat api listening", "addr", addr, "library", a.cfg.LibraryKind, "llm_providers", a.cfg.LLMProviders, "embed_providers", a.cfg.EmbedProviders)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
