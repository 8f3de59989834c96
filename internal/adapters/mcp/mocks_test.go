package mcpadapter

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

type mockUploader struct {
	gotName string
	gotMime string
	gotBody string
	err     error
}

func (m *mockUploader) Upload(_ context.Context, fileName, mimeType string, body io.Reader) (*domain.UploadResult, error) {
	raw, _ := io.ReadAll(body)
	m.gotName, m.gotMime, m.gotBody = fileName, mimeType, string(raw)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.UploadResult{
		ContentHash: domain.ContentHash(raw),
		FileName:    fileName,
		Chunks:      []string{string(raw)},
		State:       domain.StateReady,
	}, nil
}

type mockQuery struct {
	gotQuery  string
	gotChunks []string
	err       error
}

func (m *mockQuery) Answer(_ context.Context, query string, chunks []string) (*domain.QueryAnswer, error) {
	m.gotQuery, m.gotChunks = query, chunks
	if m.err != nil {
		return nil, m.err
	}
	return &domain.QueryAnswer{Answer: "twelve months", Sources: []int{0}}, nil
}

type mockExplainer struct {
	got domain.ExplainRequest
}

func (m *mockExplainer) Explain(_ context.Context, req domain.ExplainRequest) (*domain.Explanation, error) {
	m.got = req
	return &domain.Explanation{Explanation: "plain words", Cached: req.ChunkIndex != nil}, nil
}

type mockSummaries struct {
	summaries map[string]string
}

func (m *mockSummaries) Summary(_ context.Context, hash string) (string, error) {
	if s, ok := m.summaries[hash]; ok {
		return s, nil
	}
	return "", domain.WrapError(domain.ErrNotReady, "summary", io.EOF)
}

func (m *mockSummaries) SummaryBatch(context.Context, []string) map[string]string {
	return m.summaries
}

func (m *mockSummaries) SummaryStatus(_ context.Context, hashes []string) map[string]bool {
	out := map[string]bool{}
	for _, h := range hashes {
		_, out[h] = m.summaries[h]
	}
	return out
}

func (m *mockSummaries) EnrichmentStatus(context.Context, string) (*domain.EnrichmentStatus, error) {
	return nil, domain.ErrDocumentNotFound
}

type mockRisk struct {
	got domain.RiskRequest
}

func (m *mockRisk) Analyze(_ context.Context, req domain.RiskRequest) (*domain.RiskAnalysis, error) {
	m.got = req
	return &domain.RiskAnalysis{HasRisk: true, Analysis: "one-sided"}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	if text, ok := result.Content[0].(mcp.TextContent); ok {
		return text.Text
	}
	return ""
}
