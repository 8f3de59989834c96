package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const analysisUnavailable = "Analysis unavailable."

type RiskUseCase struct {
	docs      ports.DocumentCache
	generator ports.TextGenerator
}

var _ ports.RiskAnalyzer = (*RiskUseCase)(nil)

func NewRiskUseCase(docs ports.DocumentCache, generator ports.TextGenerator) *RiskUseCase {
	return &RiskUseCase{docs: docs, generator: generator}
}

func (uc *RiskUseCase) Analyze(ctx context.Context, req domain.RiskRequest) (*domain.RiskAnalysis, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.ContentHash != "" && req.ChunkIndex != nil {
		entry, err := loadEntry(uc.docs, req.ContentHash, "analyze risk")
		if err != nil {
			return nil, err
		}
		idx := *req.ChunkIndex
		if idx < 0 || idx >= len(entry.Chunks) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "analyze risk", fmt.Errorf("chunk index %d out of range", idx))
		}
		text = entry.Chunks[idx]
	}
	if text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze risk", errors.New("text or content_hash with chunk_index is required"))
	}

	raw, err := uc.generator.GenerateJSON(ctx, buildRiskPrompt(text), riskSchema)
	if err != nil {
		return nil, fmt.Errorf("generate risk analysis: %w", err)
	}

	analysis := parseRiskAnalysis(raw)
	analysis.Model = uc.generator.ModelName()
	return &analysis, nil
}

type riskPayload struct {
	HasRisk  *bool  `json:"hasRisk"`
	Analysis string `json:"analysis"`
}

// parseRiskAnalysis falls back to phrase matching when the model ignores the schema.
func parseRiskAnalysis(raw string) domain.RiskAnalysis {
	var payload riskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err == nil && payload.HasRisk != nil {
		analysis := strings.TrimSpace(payload.Analysis)
		if analysis == "" {
			analysis = analysisUnavailable
		}
		return domain.RiskAnalysis{HasRisk: *payload.HasRisk, Analysis: analysis}
	}

	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	hasRisk := true
	for _, phrase := range noRiskPhrases {
		if strings.Contains(lower, phrase) {
			hasRisk = false
			break
		}
	}
	if trimmed == "" {
		trimmed = analysisUnavailable
	}
	return domain.RiskAnalysis{HasRisk: hasRisk, Analysis: trimmed}
}
