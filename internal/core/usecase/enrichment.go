package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const defaultSummaryTimeout = 60 * time.Second

// EnrichmentResult is the outcome of one enrichment run.
type EnrichmentResult struct {
	ContentHash string
	SummaryOK   bool
	Explained   int
	Failed      int
	Err         error
}

// EnrichmentTask is a handle on a background enrichment run.
type EnrichmentTask struct {
	done   chan struct{}
	result EnrichmentResult
}

func (t *EnrichmentTask) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task finishes.
func (t *EnrichmentTask) Result() EnrichmentResult {
	<-t.done
	return t.result
}

type EnrichmentOptions struct {
	SummaryTimeout            time.Duration
	ReleaseSourceAfterSummary bool
}

type EnrichmentUseCase struct {
	docs       ports.DocumentCache
	summarizer ports.FileSummarizer
	generator  ports.TextGenerator
	events     ports.EventPublisher
	metrics    ports.CacheMetrics
	opts       EnrichmentOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ EnrichmentStarter = (*EnrichmentUseCase)(nil)

func NewEnrichmentUseCase(
	docs ports.DocumentCache,
	summarizer ports.FileSummarizer,
	generator ports.TextGenerator,
	events ports.EventPublisher,
	metrics ports.CacheMetrics,
	opts EnrichmentOptions,
) *EnrichmentUseCase {
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = defaultSummaryTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EnrichmentUseCase{
		docs:       docs,
		summarizer: summarizer,
		generator:  generator,
		events:     events,
		metrics:    metrics,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches enrichment for a cached document. The caller never waits on
// it; failures are recorded on the entry and in the task result.
func (uc *EnrichmentUseCase) Start(contentHash string) *EnrichmentTask {
	task := &EnrichmentTask{done: make(chan struct{})}
	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		defer close(task.done)
		defer func() {
			if r := recover(); r != nil {
				task.result = EnrichmentResult{
					ContentHash: contentHash,
					Err:         fmt.Errorf("enrichment panic: %v", r),
				}
				slog.Error("enrichment_panic", "content_hash", contentHash, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		task.result = uc.run(uc.ctx, contentHash)
	}()
	return task
}

// Shutdown waits for running tasks; when ctx ends first, they are cancelled.
func (uc *EnrichmentUseCase) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		uc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		uc.cancel()
		return nil
	case <-ctx.Done():
		uc.cancel()
		<-done
		return ctx.Err()
	}
}

type explanationOutcome struct {
	index int
	text  string
	err   error
}

type summaryOutcome struct {
	text    string
	err     error
	skipped bool
}

func (uc *EnrichmentUseCase) run(ctx context.Context, contentHash string) EnrichmentResult {
	start := time.Now()
	key := domain.DocumentKey(contentHash)
	result := EnrichmentResult{ContentHash: contentHash}

	entry, err := uc.docs.Merge(key, func(entry *domain.DocumentEntry) error {
		if !entry.HasIndex() {
			return domain.WrapError(domain.ErrNotReady, "enrich", errors.New("document is not ready"))
		}
		entry.State = domain.StateEnrichmentPending
		return nil
	})
	if err != nil {
		result.Err = err
		slog.Error("enrichment_failed", "content_hash", contentHash, "step", "start", "error", err)
		recordEnrichment(uc.metrics, "start", "error")
		return result
	}

	summaryCh := make(chan summaryOutcome, 1)
	go func() {
		outcome := summaryOutcome{}
		defer func() {
			if r := recover(); r != nil {
				outcome = summaryOutcome{err: fmt.Errorf("summary panic: %v", r)}
			}
			summaryCh <- outcome
		}()
		outcome = uc.summarize(ctx, entry)
	}()

	explanations := uc.explain(ctx, entry)
	summary := <-summaryCh

	_, err = uc.docs.Merge(key, func(entry *domain.DocumentEntry) error {
		for _, outcome := range explanations {
			if outcome.err == nil {
				entry.Explanations[outcome.index] = outcome.text
				delete(entry.ExplanationErrors, outcome.index)
				continue
			}
			if _, ok := entry.Explanations[outcome.index]; !ok {
				entry.ExplanationErrors[outcome.index] = outcome.err.Error()
			}
		}
		switch {
		case summary.skipped:
		case summary.err == nil:
			entry.Summary = summary.text
			entry.SummaryError = ""
		case !entry.HasSummary():
			entry.SummaryError = summary.err.Error()
		}
		if uc.opts.ReleaseSourceAfterSummary && entry.HasSummary() {
			entry.Source = nil
		}
		entry.State = domain.StateEnrichmentDone
		return nil
	})
	if err != nil {
		result.Err = fmt.Errorf("merge enrichment: %w", err)
		slog.Error("enrichment_failed", "content_hash", contentHash, "step", "merge", "error", err)
		recordEnrichment(uc.metrics, "merge", "error")
		return result
	}

	result.SummaryOK = summary.err == nil
	for _, outcome := range explanations {
		if outcome.err == nil {
			result.Explained++
			recordEnrichment(uc.metrics, "explanation", "ok")
			continue
		}
		result.Failed++
		recordEnrichment(uc.metrics, "explanation", "error")
		slog.Error("enrichment_failed",
			"content_hash", contentHash,
			"step", "explanation",
			"chunk_index", outcome.index,
			"error", outcome.err,
		)
	}
	if !summary.skipped {
		if summary.err != nil {
			recordEnrichment(uc.metrics, "summary", "error")
			slog.Error("enrichment_failed", "content_hash", contentHash, "step", "summary", "error", summary.err)
		} else {
			recordEnrichment(uc.metrics, "summary", "ok")
		}
	}

	publishEvent(ctx, uc.events, domain.DocumentEvent{
		Type:        domain.EventDocumentEnriched,
		ContentHash: contentHash,
		State:       string(domain.StateEnrichmentDone),
		SummaryOK:   result.SummaryOK,
		Explained:   result.Explained,
		Failed:      result.Failed,
	})
	slog.Info("enrichment_done",
		"content_hash", contentHash,
		"summary_ok", result.SummaryOK,
		"explained", result.Explained,
		"failed", result.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

func (uc *EnrichmentUseCase) summarize(ctx context.Context, entry domain.DocumentEntry) summaryOutcome {
	if entry.HasSummary() {
		return summaryOutcome{text: entry.Summary, skipped: true}
	}
	if entry.Source == nil || len(entry.Source.Bytes) == 0 {
		return summaryOutcome{err: errors.New("source file unavailable")}
	}

	ctx, cancel := context.WithTimeout(ctx, uc.opts.SummaryTimeout)
	defer cancel()

	text, err := uc.summarizer.Summarize(ctx, *entry.Source, summaryInstruction)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return summaryOutcome{err: fmt.Errorf("summary timed out after %s", uc.opts.SummaryTimeout)}
		}
		return summaryOutcome{err: fmt.Errorf("summarize: %w", err)}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return summaryOutcome{err: errors.New("summarize: empty summary")}
	}
	return summaryOutcome{text: text}
}

// explain requests one explanation per flagged chunk concurrently. Indexes
// that already have an explanation are skipped.
func (uc *EnrichmentUseCase) explain(ctx context.Context, entry domain.DocumentEntry) []explanationOutcome {
	pending := make([]domain.RedFlag, 0, len(entry.RedFlags))
	seen := make(map[int]bool, len(entry.RedFlags))
	for _, flag := range entry.RedFlags {
		if seen[flag.ChunkIndex] {
			continue
		}
		seen[flag.ChunkIndex] = true
		if _, ok := entry.Explanations[flag.ChunkIndex]; ok {
			continue
		}
		pending = append(pending, flag)
	}

	out := make([]explanationOutcome, len(pending))
	var wg sync.WaitGroup
	for i, flag := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := explanationOutcome{index: flag.ChunkIndex}
			defer func() {
				if r := recover(); r != nil {
					outcome.err = fmt.Errorf("explanation panic: %v", r)
				}
				out[i] = outcome
			}()
			text, err := uc.generator.Generate(ctx, buildEnrichmentExplainPrompt(flag.Text))
			switch {
			case err != nil:
				outcome.err = err
			case strings.TrimSpace(text) == "":
				outcome.err = errors.New("empty explanation")
			default:
				outcome.text = strings.TrimSpace(text)
			}
		}()
	}
	wg.Wait()
	return out
}
