package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docq-ai/docq/internal/retrieval"
	"github.com/docq-ai/docq/internal/storage"
)

// MCPSearcher abstracts passage retrieval for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, documentID, query string, topK int) ([]retrieval.Passage, error)
}

// MCPAnswerer produces a complete (non-streaming) answer for a question.
type MCPAnswerer interface {
	Answer(ctx context.Context, documentID, question string) (string, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Retriever MCPSearcher
	Responder MCPAnswerer
}

// NewMCPServer creates an MCP server exposing the document index to local
// agents: document listing, raw passage search, and question answering.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docq",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docq — chat with uploaded PDF documents: list them, search passages, ask questions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List uploaded documents with their indexing status."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of documents (default 20)")),
		),
		mcpListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("search_document",
			mcp.WithDescription("Semantically search one document's passages and return the best matches with scores."),
			mcp.WithString("document_id", mcp.Description("Document to search"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of passages (default 4)")),
		),
		mcpSearchDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_document",
			mcp.WithDescription("Ask a question about a document and get a grounded answer. The exchange is recorded in the document's conversation history."),
			mcp.WithString("document_id", mcp.Description("Document to ask about"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
		),
		mcpAskDocument(deps),
	)

	return s
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		docs, err := deps.Store.ListDocuments(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
		}

		type docResult struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Status    string `json:"status"`
			PageCount int    `json:"page_count,omitempty"`
		}
		results := make([]docResult, len(docs))
		for i, d := range docs {
			results[i] = docResult{ID: d.ID, Name: d.Name, Status: d.Status, PageCount: d.PageCount}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 4)
		if limit <= 0 {
			limit = 4
		}
		if limit > 20 {
			limit = 20
		}

		passages, err := deps.Retriever.Search(ctx, docID, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(passages) == 0 {
			return mcpText("[]"), nil
		}

		type passageResult struct {
			ID    string  `json:"id"`
			Page  int     `json:"page"`
			Text  string  `json:"text"`
			Score float32 `json:"score"`
		}
		results := make([]passageResult, len(passages))
		for i, p := range passages {
			results[i] = passageResult{ID: p.ID, Page: p.Page, Text: p.Text, Score: p.Score}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		doc, err := deps.Store.GetDocument(ctx, docID)
		if err != nil {
			return mcpError(fmt.Sprintf("document not found: %v", err)), nil
		}
		if doc.Status != storage.DocStatusReady {
			return mcpError(fmt.Sprintf("document is not ready for chat (status: %s)", doc.Status)), nil
		}

		answer, err := deps.Responder.Answer(ctx, docID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}
		return mcpText(answer), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

func mcpError(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(msg)
}
