package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"paperchat/internal/chat"
	"paperchat/internal/models"
	"paperchat/internal/planner"
	"paperchat/internal/util"

	"github.com/spf13/cobra"
)

func newSummarizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <item-id>",
		Short: "Summarise a paper and store the result in its conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				stderr := cmd.ErrOrStderr()
				out, err := a.svc.Summarize(cmd.Context(), args[0], func(p planner.Progress) {
					fmt.Fprintf(stderr, "[%3d%%] %s\n", p.Percent, p.Stage)
				})
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, out.Summary.Text)
				if len(out.Summary.Links) > 0 {
					fmt.Fprintln(w)
					for _, l := range out.Summary.Links {
						fmt.Fprintf(w, "  %s  p.%d\n", l.Title, l.PageNumber)
					}
				}
				if out.File != "" {
					fmt.Fprintf(stderr, "saved %s\n", out.File)
				}
				return nil
			})
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var showEvidence bool
	cmd := &cobra.Command{
		Use:   "ask <item-id> <question...>",
		Short: "Ask a question about a paper",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args[1:], " ")
			return withApp(cmd.Context(), opts, func(a *app) error {
				out, err := a.svc.Ask(cmd.Context(), args[0], question)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, out.Answer)
				if showEvidence {
					fmt.Fprintf(w, "\n(%s retrieval)\n", out.Mode)
					for i, ch := range out.Evidence {
						fmt.Fprintf(w, "[C%d] %s\n", i+1, util.DisplayEvidenceSnippet(ch.Text, question, 200))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showEvidence, "evidence", false, "also print the retrieved excerpts")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <item-id>",
		Short: "Forget the conversation and memory for a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				res, err := a.svc.Clear(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared conversation for %q\n", res.Title)
				return nil
			})
		},
	}
}

func newOutlineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "outline <item-id>",
		Short: "Print the PDF bookmark tree with page numbers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				nodes, err := a.svc.Outline(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), nodes)
				}
				if len(nodes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no bookmarks")
					return nil
				}
				printOutline(cmd.OutOrStdout(), nodes)
				return nil
			})
		},
	}
}

func printOutline(w io.Writer, nodes []models.PdfOutlineNode) {
	for _, n := range nodes {
		page := "-"
		if n.PageNumber != nil {
			page = fmt.Sprint(*n.PageNumber)
		}
		fmt.Fprintf(w, "%s%s  p.%s\n", strings.Repeat("  ", n.Depth), n.Title, page)
		printOutline(w, n.Children)
	}
}

func newSectionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sections <item-id>",
		Short: "Print the page range and text preview of every bookmarked section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				secs, err := a.svc.Sections(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), secs)
				}
				w := cmd.OutOrStdout()
				for _, s := range secs {
					fmt.Fprintf(w, "%s %s  pp.%s-%s", s.Path, s.Title, pageOf(s.StartPageNumber), pageOf(s.EndPageNumber))
					if s.Truncated {
						fmt.Fprint(w, "  (truncated)")
					}
					fmt.Fprintln(w)
					if s.PreviewText != "" {
						fmt.Fprintf(w, "    %s\n", s.PreviewText)
					}
				}
				return nil
			})
		},
	}
}

func pageOf(p *int) string {
	if p == nil {
		return "?"
	}
	return fmt.Sprint(*p)
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <item-id>",
		Short: "Print the stored conversation for a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				_, msgs, err := a.svc.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), msgs)
				}
				w := cmd.OutOrStdout()
				if len(msgs) == 0 {
					fmt.Fprintln(w, "no conversation yet")
				}
				for _, m := range msgs {
					fmt.Fprintf(w, "%s (%s):\n%s\n\n", m.Role, m.CreatedAt.Format("2006-01-02 15:04"), m.Content)
				}
				return nil
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <item-id>",
		Short: "Write the conversation for a paper as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				path := out
				if path == "" {
					path = filepath.Join(a.cfg.DataDir, "exports", strings.ReplaceAll(args[0], "/", "_")+".jsonl")
				}
				n, err := a.svc.Export(cmd.Context(), args[0], path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d messages to %s\n", n, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <data-dir>/exports/<item-id>.jsonl)")
	return cmd
}

// userMessage maps service errors to short readable messages.
func userMessage(err error) string {
	switch {
	case errors.Is(err, util.ErrNotFound):
		return "paper not found in the library"
	case errors.Is(err, chat.ErrNoPDF):
		return "this paper has no local PDF attachment"
	case errors.Is(err, util.ErrContentUnavailable):
		return "no readable text, abstract or title was found for this paper"
	case errors.Is(err, util.ErrConfigMissing):
		return "model endpoint is not configured; set PAPERCHAT_CHAT_ENDPOINT and PAPERCHAT_CHAT_MODEL"
	}
	return err.Error()
}
