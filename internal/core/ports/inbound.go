package ports

import (
	"context"
	"io"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// DocumentUploader is the inbound contract for upload, dedup and caching.
type DocumentUploader interface {
	Upload(ctx context.Context, fileName, mimeType string, body io.Reader) (*domain.UploadResult, error)
}

// DocumentQueryService answers one-shot questions over a chunk set.
type DocumentQueryService interface {
	Answer(ctx context.Context, query string, chunks []string) (*domain.QueryAnswer, error)
}

// ChatService drives one streaming chat turn; emit receives fragments in arrival order.
type ChatService interface {
	Stream(ctx context.Context, req domain.ChatRequest, emit func(fragment string) error) error
}

// ClauseExplainer returns cached or freshly generated clause explanations.
type ClauseExplainer interface {
	Explain(ctx context.Context, req domain.ExplainRequest) (*domain.Explanation, error)
}

// SummaryReader exposes enrichment results to pollers.
type SummaryReader interface {
	Summary(ctx context.Context, contentHash string) (string, error)
	SummaryBatch(ctx context.Context, contentHashes []string) map[string]string
	SummaryStatus(ctx context.Context, contentHashes []string) map[string]bool
	EnrichmentStatus(ctx context.Context, contentHash string) (*domain.EnrichmentStatus, error)
}

// SummaryExporter renders summaries to PDF and hands out signed links.
type SummaryExporter interface {
	Export(ctx context.Context, contentHash string) (*domain.ExportResult, error)
	ExportBatch(ctx context.Context, contentHashes []string) []domain.ExportBatchItem
}

// RiskAnalyzer classifies a clause as risky or not.
type RiskAnalyzer interface {
	Analyze(ctx context.Context, req domain.RiskRequest) (*domain.RiskAnalysis, error)
}

// CacheInspector reports process-wide cache occupancy.
type CacheInspector interface {
	Info(ctx context.Context) domain.CacheInfo
}
