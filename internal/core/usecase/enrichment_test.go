package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/cache/memory"
)

func waitTask(t *testing.T, task *EnrichmentTask) EnrichmentResult {
	t.Helper()
	select {
	case <-task.Done():
		return task.Result()
	case <-time.After(5 * time.Second):
		t.Fatal("enrichment did not finish")
		return EnrichmentResult{}
	}
}

func withSource(entry *domain.DocumentEntry) {
	entry.Source = &domain.SourceFile{Bytes: []byte("source"), FileName: "c.pdf", MimeType: "application/pdf"}
}

func TestEnrichmentKeepsPartialExplanations(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "h1", []string{
		"The supplier shall provide indemnity for claims.",
		"Liability is capped at fees paid.",
	}, withSource)

	generator := &generatorFake{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Liability") {
			return "", errors.New("model overloaded")
		}
		return "The supplier covers third-party losses.", nil
	}}
	uc := NewEnrichmentUseCase(docs, &summarizerFake{summary: "summary"}, generator, nil, nil, EnrichmentOptions{})

	result := waitTask(t, uc.Start("h1"))
	if result.Err != nil {
		t.Fatalf("Result().Err = %v", result.Err)
	}
	if result.Explained != 1 || result.Failed != 1 || !result.SummaryOK {
		t.Fatalf("unexpected result %+v", result)
	}

	entry, _ := docs.Get(domain.DocumentKey("h1"))
	if entry.Explanations[0] == "" {
		t.Fatalf("expected explanation for chunk 0, got %+v", entry.Explanations)
	}
	if !strings.Contains(entry.ExplanationErrors[1], "model overloaded") {
		t.Fatalf("expected recorded error for chunk 1, got %+v", entry.ExplanationErrors)
	}
	if _, ok := entry.Explanations[1]; ok {
		t.Fatal("failed chunk must not have an explanation")
	}
}

func TestEnrichmentFailureDoesNotEraseEarlierExplanation(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "h2", []string{
		"Indemnity applies to all claims.",
		"Liability is unlimited.",
	}, func(entry *domain.DocumentEntry) {
		withSource(entry)
		entry.Explanations[0] = "earlier explanation"
	})

	generator := &generatorFake{err: errors.New("down")}
	uc := NewEnrichmentUseCase(docs, &summarizerFake{summary: "summary"}, generator, nil, nil, EnrichmentOptions{})

	waitTask(t, uc.Start("h2"))

	entry, _ := docs.Get(domain.DocumentKey("h2"))
	if entry.Explanations[0] != "earlier explanation" {
		t.Fatalf("expected earlier explanation kept, got %q", entry.Explanations[0])
	}
	if _, ok := entry.ExplanationErrors[0]; ok {
		t.Fatal("expected no error recorded for already explained chunk")
	}
	if _, ok := entry.ExplanationErrors[1]; !ok {
		t.Fatal("expected error recorded for chunk 1")
	}
	for _, prompt := range generator.Prompts() {
		if strings.Contains(prompt, "Indemnity applies") {
			t.Fatal("already explained chunk must not be requested again")
		}
	}
}

func TestEnrichmentSummaryTimeoutIsRecorded(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "h3", []string{"Plain clause without flags."}, withSource)

	uc := NewEnrichmentUseCase(docs, &summarizerFake{block: true}, &generatorFake{}, nil, nil, EnrichmentOptions{
		SummaryTimeout: 20 * time.Millisecond,
	})

	result := waitTask(t, uc.Start("h3"))
	if result.SummaryOK {
		t.Fatal("expected summary failure")
	}
	entry, _ := docs.Get(domain.DocumentKey("h3"))
	if entry.Summary != "" || !strings.Contains(entry.SummaryError, "timed out") {
		t.Fatalf("expected timeout error, got summary=%q err=%q", entry.Summary, entry.SummaryError)
	}
	if entry.Source == nil {
		t.Fatal("expected source kept when no summary exists")
	}
	if entry.State != domain.StateEnrichmentDone {
		t.Fatalf("expected enrichment_done, got %s", entry.State)
	}
}

func TestEnrichmentReleasesSourceAfterSummary(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "h4", []string{"Plain clause."}, withSource)

	uc := NewEnrichmentUseCase(docs, &summarizerFake{summary: "done"}, &generatorFake{}, nil, nil, EnrichmentOptions{
		ReleaseSourceAfterSummary: true,
	})
	waitTask(t, uc.Start("h4"))

	entry, _ := docs.Get(domain.DocumentKey("h4"))
	if entry.Summary != "done" || entry.Source != nil {
		t.Fatalf("expected summary stored and source released, got summary=%q source=%v", entry.Summary, entry.Source)
	}
}

func TestEnrichmentMissingEntryReportsError(t *testing.T) {
	uc := NewEnrichmentUseCase(memory.NewDocumentCache(0, nil), &summarizerFake{}, &generatorFake{}, nil, nil, EnrichmentOptions{})

	result := waitTask(t, uc.Start("missing"))
	if !domain.IsKind(result.Err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", result.Err)
	}
}

func TestEnrichmentRecoversSummaryPanic(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "h5", []string{"Plain clause."}, withSource)

	uc := NewEnrichmentUseCase(docs, &summarizerFake{panics: true}, &generatorFake{}, nil, nil, EnrichmentOptions{})
	result := waitTask(t, uc.Start("h5"))
	if result.SummaryOK {
		t.Fatal("expected summary failure")
	}
	entry, _ := docs.Get(domain.DocumentKey("h5"))
	if !strings.Contains(entry.SummaryError, "panic") {
		t.Fatalf("expected panic recorded, got %q", entry.SummaryError)
	}
}

type panickingDocs struct {
	*memory.DocumentCache
}

func (panickingDocs) Merge(domain.CacheKey, func(*domain.DocumentEntry) error) (domain.DocumentEntry, error) {
	panic("cache corrupted")
}

func TestEnrichmentRecoversTaskPanic(t *testing.T) {
	uc := NewEnrichmentUseCase(panickingDocs{memory.NewDocumentCache(0, nil)}, &summarizerFake{}, &generatorFake{}, nil, nil, EnrichmentOptions{})

	result := waitTask(t, uc.Start("h6"))
	if result.Err == nil || !strings.Contains(result.Err.Error(), "panic") {
		t.Fatalf("expected panic error, got %v", result.Err)
	}
}

func TestEnrichmentShutdownWaitsForTasks(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "h7", []string{"Plain clause."}, withSource)
	uc := NewEnrichmentUseCase(docs, &summarizerFake{summary: "ok"}, &generatorFake{}, nil, nil, EnrichmentOptions{})

	task := uc.Start("h7")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("expected task finished after Shutdown")
	}
}
