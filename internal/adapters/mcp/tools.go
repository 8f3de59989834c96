package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

const noChunkIndex = -1

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("upload_document",
		mcp.WithDescription("Upload a local PDF, XLSX or text file. Returns its content hash, chunks and red flags."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the file on the server host")),
	), s.handleUpload)

	s.server.AddTool(mcp.NewTool("query_document",
		mcp.WithDescription("Answer a question using the most relevant chunks of an uploaded document"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithArray("chunks", mcp.Required(),
			mcp.Description("Document chunks as returned by upload_document"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.handleQuery)

	if s.ports.Explainer != nil {
		s.server.AddTool(mcp.NewTool("explain_clause",
			mcp.WithDescription("Explain a clause in plain English. Pass text, or content_hash with chunk_index."),
			mcp.WithString("text", mcp.Description("Clause text to explain")),
			mcp.WithString("content_hash", mcp.Description("Hash of an uploaded document")),
			mcp.WithNumber("chunk_index", mcp.Description("Index of a chunk in that document")),
			mcp.WithString("role", mcp.Description("Perspective of the reader, e.g. Tenant or Landlord")),
		), s.handleExplain)
	}

	if s.ports.Summaries != nil {
		s.server.AddTool(mcp.NewTool("get_summary",
			mcp.WithDescription("Return the generated summary of an uploaded document"),
			mcp.WithString("content_hash", mcp.Required(), mcp.Description("Hash of an uploaded document")),
		), s.handleSummary)

		s.server.AddTool(mcp.NewTool("summary_status",
			mcp.WithDescription("Report which documents already have a summary"),
			mcp.WithArray("content_hashes", mcp.Required(),
				mcp.Description("Document hashes to check"),
				mcp.Items(map[string]any{"type": "string"}),
			),
		), s.handleSummaryStatus)
	}

	if s.ports.Risk != nil {
		s.server.AddTool(mcp.NewTool("analyze_risk",
			mcp.WithDescription("Classify whether a clause carries legal risk. Pass text, or content_hash with chunk_index."),
			mcp.WithString("text", mcp.Description("Clause text to analyze")),
			mcp.WithString("content_hash", mcp.Description("Hash of an uploaded document")),
			mcp.WithNumber("chunk_index", mcp.Description("Index of a chunk in that document")),
		), s.handleRisk)
	}
}

func (s *Server) handleUpload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open %s: %v", path, err)), nil
	}
	defer f.Close()

	result, err := s.ports.Uploader.Upload(ctx, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.ports.Query.Answer(ctx, query, request.GetStringSlice("chunks", nil))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(answer)
}

func (s *Server) handleExplain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	explanation, err := s.ports.Explainer.Explain(ctx, domain.ExplainRequest{
		ContentHash: request.GetString("content_hash", ""),
		ChunkIndex:  chunkIndexArg(request),
		Text:        request.GetString("text", ""),
		Role:        request.GetString("role", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(explanation)
}

func (s *Server) handleSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash, err := request.RequireString("content_hash")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary, err := s.ports.Summaries.Summary(ctx, hash)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) handleSummaryStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ports.Summaries.SummaryStatus(ctx, request.GetStringSlice("content_hashes", nil)))
}

func (s *Server) handleRisk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	analysis, err := s.ports.Risk.Analyze(ctx, domain.RiskRequest{
		Text:        request.GetString("text", ""),
		ContentHash: request.GetString("content_hash", ""),
		ChunkIndex:  chunkIndexArg(request),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(analysis)
}

func chunkIndexArg(request mcp.CallToolRequest) *int {
	idx := request.GetInt("chunk_index", noChunkIndex)
	if idx == noChunkIndex {
		return nil
	}
	return &idx
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
