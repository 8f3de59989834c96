package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const defaultExportURLTTL = time.Hour

type SummaryOptions struct {
	SummaryTimeout            time.Duration
	ExportURLTTL              time.Duration
	ReleaseSourceAfterSummary bool
}

// SummaryUseCase serves enrichment results and PDF exports of summaries.
type SummaryUseCase struct {
	docs       ports.DocumentCache
	summarizer ports.FileSummarizer
	renderer   ports.PDFRenderer
	blobs      ports.BlobStorage
	opts       SummaryOptions
}

var (
	_ ports.SummaryReader   = (*SummaryUseCase)(nil)
	_ ports.SummaryExporter = (*SummaryUseCase)(nil)
)

func NewSummaryUseCase(
	docs ports.DocumentCache,
	summarizer ports.FileSummarizer,
	renderer ports.PDFRenderer,
	blobs ports.BlobStorage,
	opts SummaryOptions,
) *SummaryUseCase {
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = defaultSummaryTimeout
	}
	if opts.ExportURLTTL <= 0 {
		opts.ExportURLTTL = defaultExportURLTTL
	}
	return &SummaryUseCase{
		docs:       docs,
		summarizer: summarizer,
		renderer:   renderer,
		blobs:      blobs,
		opts:       opts,
	}
}

func (uc *SummaryUseCase) Summary(_ context.Context, contentHash string) (string, error) {
	entry, err := loadEntry(uc.docs, contentHash, "summary")
	if err != nil {
		return "", err
	}
	if entry.HasSummary() {
		return entry.Summary, nil
	}
	if entry.SummaryError != "" {
		return "", domain.WrapError(domain.ErrNotReady, "summary", fmt.Errorf("summary failed: %s", entry.SummaryError))
	}
	return "", domain.WrapError(domain.ErrNotReady, "summary", errors.New("summary is still being generated"))
}

// SummaryBatch returns only the summaries that are available.
func (uc *SummaryUseCase) SummaryBatch(ctx context.Context, contentHashes []string) map[string]string {
	out := make(map[string]string, len(contentHashes))
	for _, hash := range contentHashes {
		if summary, err := uc.Summary(ctx, hash); err == nil {
			out[hash] = summary
		}
	}
	return out
}

func (uc *SummaryUseCase) SummaryStatus(_ context.Context, contentHashes []string) map[string]bool {
	out := make(map[string]bool, len(contentHashes))
	for _, hash := range contentHashes {
		entry, ok := uc.docs.Get(domain.DocumentKey(hash))
		out[hash] = ok && entry.HasSummary()
	}
	return out
}

func (uc *SummaryUseCase) EnrichmentStatus(_ context.Context, contentHash string) (*domain.EnrichmentStatus, error) {
	entry, err := loadEntry(uc.docs, contentHash, "enrichment status")
	if err != nil {
		return nil, err
	}
	return &domain.EnrichmentStatus{
		ContentHash:       entry.ContentHash,
		State:             entry.State,
		HasSummary:        entry.HasSummary(),
		SummaryError:      entry.SummaryError,
		RedFlags:          nonNilFlags(entry.RedFlags),
		Explanations:      entry.Explanations,
		ExplanationErrors: entry.ExplanationErrors,
		HasExport:         entry.ExportBlobRef != "",
	}, nil
}

// Export reuses an existing export blob. Otherwise it renders the summary,
// generating it first from the source file when enrichment has not produced one.
func (uc *SummaryUseCase) Export(ctx context.Context, contentHash string) (*domain.ExportResult, error) {
	entry, err := loadEntry(uc.docs, contentHash, "export")
	if err != nil {
		return nil, err
	}
	key := entry.Key

	if entry.ExportBlobRef != "" {
		return uc.exportResult(entry.ContentHash, entry.ExportBlobRef, true)
	}

	summary, err := uc.ensureSummary(ctx, entry)
	if err != nil {
		return nil, err
	}

	pdfBytes, err := uc.renderer.RenderSummary(exportTitle, summary)
	if err != nil {
		return nil, fmt.Errorf("render summary pdf: %w", err)
	}

	blobRef := "exports/" + uuid.NewString() + "-summary.pdf"
	if err := uc.blobs.Put(ctx, blobRef, bytes.NewReader(pdfBytes)); err != nil {
		return nil, fmt.Errorf("store export: %w", err)
	}

	reused := false
	updated, err := uc.docs.Merge(key, func(entry *domain.DocumentEntry) error {
		if entry.ExportBlobRef != "" {
			reused = true
			return nil
		}
		entry.ExportBlobRef = blobRef
		return nil
	})
	if err != nil {
		uc.deleteBlob(ctx, blobRef)
		return nil, fmt.Errorf("record export: %w", err)
	}
	if reused {
		uc.deleteBlob(ctx, blobRef)
	}
	return uc.exportResult(updated.ContentHash, updated.ExportBlobRef, reused)
}

func (uc *SummaryUseCase) ExportBatch(ctx context.Context, contentHashes []string) []domain.ExportBatchItem {
	out := make([]domain.ExportBatchItem, 0, len(contentHashes))
	for _, hash := range contentHashes {
		item := domain.ExportBatchItem{ContentHash: hash}
		result, err := uc.Export(ctx, hash)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.URL = result.URL
			item.BlobRef = result.BlobRef
		}
		out = append(out, item)
	}
	return out
}

func (uc *SummaryUseCase) ensureSummary(ctx context.Context, entry domain.DocumentEntry) (string, error) {
	if entry.HasSummary() {
		return entry.Summary, nil
	}
	if entry.Source == nil || len(entry.Source.Bytes) == 0 {
		return "", domain.WrapError(domain.ErrNotReady, "export", errors.New("summary is not available"))
	}

	summaryCtx, cancel := context.WithTimeout(ctx, uc.opts.SummaryTimeout)
	defer cancel()
	summary, err := uc.summarizer.Summarize(summaryCtx, *entry.Source, summaryInstruction)
	if err != nil {
		return "", fmt.Errorf("summarize for export: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", domain.WrapError(domain.ErrTemporary, "export", errors.New("empty summary"))
	}

	updated, err := uc.docs.Merge(entry.Key, func(entry *domain.DocumentEntry) error {
		if !entry.HasSummary() {
			entry.Summary = summary
			entry.SummaryError = ""
		}
		if uc.opts.ReleaseSourceAfterSummary {
			entry.Source = nil
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("record summary: %w", err)
	}
	return updated.Summary, nil
}

func (uc *SummaryUseCase) exportResult(contentHash, blobRef string, reused bool) (*domain.ExportResult, error) {
	url, err := uc.blobs.SignedURL(blobRef, uc.opts.ExportURLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign export url: %w", err)
	}
	return &domain.ExportResult{
		ContentHash: contentHash,
		URL:         url,
		BlobRef:     blobRef,
		Reused:      reused,
	}, nil
}

func (uc *SummaryUseCase) deleteBlob(ctx context.Context, key string) {
	if err := uc.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("export_blob_delete_failed", "key", key, "error", err)
	}
}
