// Package mcp exposes the paper chat over the Model Context Protocol.
package mcp

import (
	"context"

	"paperchat/internal/chat"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type Server struct {
	server *mcp.Server
	svc    *chat.Service
}

// NewServer creates an MCP server with the paper tools registered.
func NewServer(svc *chat.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "paperchat", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_paper",
		Description: "Answer a question about one paper from its own text. Answers cite excerpts as [C1], [C2], ...",
	}, makeAskHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "summarize_paper",
		Description: "Summarise a paper section by section from its PDF bookmarks, or in one pass when it has none.",
	}, makeSummarizeHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "paper_outline",
		Description: "Return the bookmark tree of a paper's PDF with resolved page numbers.",
	}, makeOutlineHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_chat",
		Description: "Forget the conversation and memory for a paper. The paper index is kept.",
	}, makeClearHandler(svc))

	return &Server{server: server, svc: svc}
}

// Run serves over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	defer s.svc.Wait()
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
