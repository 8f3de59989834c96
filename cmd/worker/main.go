package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-lens/internal/observability/logging"
	"github.com/kirillkom/legal-lens/internal/observability/metrics"
)

const serviceName = "worker"

// The worker follows document lifecycle events published by the API and
// exports them as metrics and structured logs.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	if cfg.NATSURL == "" {
		slog.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscriber, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		slog.Error("nats_connect_failed", "error", err)
		os.Exit(1)
	}
	defer subscriber.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = subscriber.Subscribe(ctx, func(_ context.Context, event domain.DocumentEvent) error {
		lag := time.Duration(-1)
		if !event.OccurredAt.IsZero() {
			lag = time.Since(event.OccurredAt)
		}
		workerMetrics.ObserveEvent(serviceName, event.Type, event.State, lag)
		slog.Info("document_event",
			"type", event.Type,
			"content_hash", event.ContentHash,
			"state", event.State,
			"summary_ok", event.SummaryOK,
			"explained", event.Explained,
			"failed", event.Failed,
			"lag_ms", lag.Milliseconds(),
		)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
