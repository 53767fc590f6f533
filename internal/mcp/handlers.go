package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paperchat/internal/chat"
	"paperchat/internal/models"
	"paperchat/internal/util"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func makeAskHandler(svc *chat.Service) func(context.Context, *mcp.CallToolRequest, AskPaperInput) (*mcp.CallToolResult, AskPaperOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in AskPaperInput) (*mcp.CallToolResult, AskPaperOutput, error) {
		if strings.TrimSpace(in.ItemID) == "" || strings.TrimSpace(in.Question) == "" {
			return nil, AskPaperOutput{}, errors.New("item_id and question are required")
		}
		out, err := svc.Ask(ctx, in.ItemID, in.Question)
		if err != nil {
			return nil, AskPaperOutput{}, userError(err)
		}
		return nil, AskPaperOutput{
			PaperID:  out.PaperID,
			Title:    out.Title,
			Answer:   out.Answer,
			Mode:     out.Mode,
			Evidence: len(out.Evidence),
		}, nil
	}
}

func makeSummarizeHandler(svc *chat.Service) func(context.Context, *mcp.CallToolRequest, PaperInput) (*mcp.CallToolResult, SummarizePaperOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PaperInput) (*mcp.CallToolResult, SummarizePaperOutput, error) {
		if strings.TrimSpace(in.ItemID) == "" {
			return nil, SummarizePaperOutput{}, errors.New("item_id is required")
		}
		out, err := svc.Summarize(ctx, in.ItemID, nil)
		if err != nil {
			return nil, SummarizePaperOutput{}, userError(err)
		}
		return nil, SummarizePaperOutput{
			PaperID:   out.PaperID,
			Title:     out.Title,
			Mode:      out.Summary.Mode,
			Summary:   out.Summary.Text,
			File:      out.File,
			Links:     out.Summary.Links,
			Uncertain: out.Summary.Uncertain,
		}, nil
	}
}

func makeOutlineHandler(svc *chat.Service) func(context.Context, *mcp.CallToolRequest, PaperInput) (*mcp.CallToolResult, PaperOutlineOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PaperInput) (*mcp.CallToolResult, PaperOutlineOutput, error) {
		nodes, err := svc.Outline(ctx, in.ItemID)
		if err != nil {
			return nil, PaperOutlineOutput{}, userError(err)
		}
		if len(nodes) == 0 {
			return nil, PaperOutlineOutput{Outline: []models.PdfOutlineNode{}, Message: "This PDF has no bookmarks."}, nil
		}
		return nil, PaperOutlineOutput{Outline: nodes}, nil
	}
}

func makeClearHandler(svc *chat.Service) func(context.Context, *mcp.CallToolRequest, PaperInput) (*mcp.CallToolResult, ClearChatOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PaperInput) (*mcp.CallToolResult, ClearChatOutput, error) {
		res, err := svc.Clear(ctx, in.ItemID)
		if err != nil {
			return nil, ClearChatOutput{}, userError(err)
		}
		return nil, ClearChatOutput{PaperID: res.PaperID, Cleared: true}, nil
	}
}

// userError turns service errors into messages a model client can act on.
func userError(err error) error {
	switch {
	case errors.Is(err, util.ErrNotFound):
		return fmt.Errorf("paper not found in the library: %w", err)
	case errors.Is(err, chat.ErrNoPDF):
		return errors.New("this paper has no local PDF attachment")
	case errors.Is(err, util.ErrContentUnavailable):
		return errors.New("no readable text, abstract or title was found for this paper")
	case errors.Is(err, util.ErrConfigMissing):
		return errors.New("the chat model endpoint is not configured")
	case errors.Is(err, util.ErrUpstream):
		return fmt.Errorf("the model provider failed: %w", err)
	}
	return err
}
