// Command paperchat summarises and answers questions about the papers in a
// local library.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"paperchat/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configPath string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "paperchat",
		Short:         "Chat with the papers in your library",
		Long:          "Summarise papers section by section from their PDF bookmarks and answer questions grounded in their text.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (overrides PAPERCHAT_CONFIG)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newSummarizeCmd(opts),
		newAskCmd(opts),
		newClearCmd(opts),
		newOutlineCmd(opts),
		newSectionsCmd(opts),
		newHistoryCmd(opts),
		newExportCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
	)
	return root
}

func main() {
	_ = godotenv.Load(".env")
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", userMessage(err))
		os.Exit(1)
	}
}

// withApp loads config, builds the app, runs fn and releases everything.
func withApp(ctx context.Context, opts *rootOptions, fn func(a *app) error) error {
	if opts.configPath != "" {
		if err := os.Setenv("PAPERCHAT_CONFIG", opts.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
