package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

type ExplainUseCase struct {
	docs      ports.DocumentCache
	generator ports.TextGenerator
}

var _ ports.ClauseExplainer = (*ExplainUseCase)(nil)

func NewExplainUseCase(docs ports.DocumentCache, generator ports.TextGenerator) *ExplainUseCase {
	return &ExplainUseCase{docs: docs, generator: generator}
}

// Explain serves flagged chunks from enrichment results when no role is
// requested. A role, an unflagged chunk, or raw text always goes to the model.
func (uc *ExplainUseCase) Explain(ctx context.Context, req domain.ExplainRequest) (*domain.Explanation, error) {
	role := strings.TrimSpace(req.Role)

	text := strings.TrimSpace(req.Text)
	if req.ContentHash != "" && req.ChunkIndex != nil {
		entry, err := loadEntry(uc.docs, req.ContentHash, "explain")
		if err != nil {
			return nil, err
		}
		idx := *req.ChunkIndex
		if idx < 0 || idx >= len(entry.Chunks) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "explain", fmt.Errorf("chunk index %d out of range", idx))
		}

		if role == "" && isFlagged(entry.RedFlags, idx) {
			if explanation, ok := entry.Explanations[idx]; ok {
				return &domain.Explanation{Explanation: explanation, Cached: true}, nil
			}
			if msg, ok := entry.ExplanationErrors[idx]; ok {
				return nil, domain.WrapError(domain.ErrNotReady, "explain", fmt.Errorf("explanation for chunk %d failed: %s", idx, msg))
			}
			if entry.State != domain.StateEnrichmentDone {
				return nil, domain.WrapError(domain.ErrNotReady, "explain", fmt.Errorf("explanation for chunk %d is still being generated", idx))
			}
		}
		text = entry.Chunks[idx]
	}
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "explain", errors.New("text or content_hash with chunk_index is required"))
	}

	explanation, err := uc.generator.Generate(ctx, buildRoleExplainPrompt(role, text))
	if err != nil {
		return nil, fmt.Errorf("generate explanation: %w", err)
	}
	return &domain.Explanation{
		Explanation: strings.TrimSpace(explanation),
		Model:       uc.generator.ModelName(),
	}, nil
}

func isFlagged(flags []domain.RedFlag, idx int) bool {
	for _, flag := range flags {
		if flag.ChunkIndex == idx {
			return true
		}
	}
	return false
}

func loadEntry(docs ports.DocumentCache, contentHash, operation string) (domain.DocumentEntry, error) {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return domain.DocumentEntry{}, domain.WrapError(domain.ErrInvalidInput, operation, errors.New("content_hash is required"))
	}
	key := domain.DocumentKey(contentHash)
	if key.SessionOnly() {
		return domain.DocumentEntry{}, domain.WrapError(domain.ErrInvalidInput, operation, errors.New("content_hash is not a document hash"))
	}
	entry, ok := docs.Get(key)
	if !ok || !entry.HasIndex() {
		return domain.DocumentEntry{}, domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("content_hash=%s", contentHash))
	}
	return entry, nil
}
