package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/cache/memory"
)

func TestParseRiskAnalysis(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		hasRisk  bool
		analysis string
	}{
		{name: "schema output", raw: `{"hasRisk":true,"analysis":"**Indemnity** is uncapped."}`, hasRisk: true, analysis: "**Indemnity** is uncapped."},
		{name: "schema no risk", raw: `{"hasRisk":false,"analysis":"No risks identified."}`, hasRisk: false, analysis: "No risks identified."},
		{name: "schema empty analysis", raw: `{"hasRisk":false,"analysis":""}`, hasRisk: false, analysis: analysisUnavailable},
		{name: "free text risky", raw: "The clause limits liability heavily.", hasRisk: true, analysis: "The clause limits liability heavily."},
		{name: "free text safe", raw: "There is No significant risk here.", hasRisk: false, analysis: "There is No significant risk here."},
		{name: "empty", raw: "  ", hasRisk: true, analysis: analysisUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseRiskAnalysis(tc.raw)
			if got.HasRisk != tc.hasRisk || got.Analysis != tc.analysis {
				t.Fatalf("parseRiskAnalysis(%q) = %+v", tc.raw, got)
			}
		})
	}
}

func TestRiskAnalyzeUsesCachedChunk(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "h", retrievalChunks, nil)
	generator := &generatorFake{json: `{"hasRisk":true,"analysis":"risky"}`}
	uc := NewRiskUseCase(docs, generator)

	got, err := uc.Analyze(context.Background(), domain.RiskRequest{ContentHash: "h", ChunkIndex: intPtr(2)})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !got.HasRisk || got.Analysis != "risky" || got.Model != "fake-model" {
		t.Fatalf("unexpected analysis %+v", got)
	}
	if prompt := generator.Prompts()[0]; prompt != buildRiskPrompt(retrievalChunks[2]) {
		t.Fatalf("unexpected prompt:\n%s", prompt)
	}
}

func TestRiskAnalyzeRequiresText(t *testing.T) {
	uc := NewRiskUseCase(memory.NewDocumentCache(0, nil), &generatorFake{})
	if _, err := uc.Analyze(context.Background(), domain.RiskRequest{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
