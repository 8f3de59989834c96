package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const eventPublishTimeout = 5 * time.Second

// publishEvent is best-effort; a nil publisher disables events.
func publishEvent(ctx context.Context, publisher ports.EventPublisher, event domain.DocumentEvent) {
	if publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := publisher.Publish(ctx, event); err != nil {
		slog.Warn("document_event_publish_failed",
			"type", event.Type,
			"content_hash", event.ContentHash,
			"error", err,
		)
	}
}

func recordCacheLookup(metrics ports.CacheMetrics, source domain.CacheSource) {
	if metrics != nil {
		metrics.RecordCacheLookup(string(source))
	}
}

func recordEnrichment(metrics ports.CacheMetrics, step, status string) {
	if metrics != nil {
		metrics.RecordEnrichment(step, status)
	}
}
