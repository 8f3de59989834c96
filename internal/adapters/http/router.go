package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/observability/metrics"
)

const (
	serviceName = "api"

	// multipartOverhead leaves room for boundaries and part headers on top of the file limit.
	multipartOverhead = 1 << 20
)

// BlobServer serves signed export downloads.
type BlobServer interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Verify(key, expires, signature string) error
}

// Services bundles the inbound ports the router exposes. Nil services answer 503.
type Services struct {
	Uploader  ports.DocumentUploader
	Query     ports.DocumentQueryService
	Chat      ports.ChatService
	Explainer ports.ClauseExplainer
	Summaries ports.SummaryReader
	Exporter  ports.SummaryExporter
	Risk      ports.RiskAnalyzer
	Cache     ports.CacheInspector
	Blobs     BlobServer
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg      config.Config
	services Services
}

func NewRouter(cfg config.Config, services Services) *Router {
	return &Router{
		cfg:      cfg,
		services: services,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.services.Metrics != nil {
		mux.Handle("GET /metrics", rt.services.Metrics.Handler())
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{hash}/enrichment", rt.enrichmentStatus)
	mux.HandleFunc("POST /v1/query", rt.queryDocument)
	mux.HandleFunc("POST /v1/chat", rt.chat)
	mux.HandleFunc("POST /v1/explain", rt.explain)
	mux.HandleFunc("POST /v1/summary", rt.summary)
	mux.HandleFunc("POST /v1/summary/batch", rt.summaryBatch)
	mux.HandleFunc("POST /v1/summary/status", rt.summaryStatus)
	mux.HandleFunc("POST /v1/export", rt.export)
	mux.HandleFunc("POST /v1/export/batch", rt.exportBatch)
	mux.HandleFunc("POST /v1/risk/analyze", rt.analyzeRisk)
	mux.HandleFunc("GET /v1/cache", rt.cacheInfo)
	mux.HandleFunc("GET /v1/blobs/{key...}", rt.downloadBlob)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.services.Metrics != nil {
		handler = rt.services.Metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.services.Uploader == nil {
		writeUnavailable(w)
		return
	}
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	result, err := rt.services.Uploader.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) enrichmentStatus(w http.ResponseWriter, r *http.Request) {
	if rt.services.Summaries == nil {
		writeUnavailable(w)
		return
	}
	status, err := rt.services.Summaries.EnrichmentStatus(r.Context(), r.PathValue("hash"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) queryDocument(w http.ResponseWriter, r *http.Request) {
	if rt.services.Query == nil {
		writeUnavailable(w)
		return
	}
	var req struct {
		Query  string   `json:"query"`
		Chunks []string `json:"chunks"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := rt.services.Query.Answer(r.Context(), req.Query, req.Chunks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.services.Metrics != nil {
		rt.services.Metrics.RecordRAGModeRequest(serviceName, "/v1/query", string(domain.ChatModeDocument))
	}
	writeJSON(w, http.StatusOK, answer)
}

// chat streams fragments as plain text. Errors raised before the first fragment
// are reported as JSON; later ones can only end the stream.
func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if rt.services.Chat == nil {
		writeUnavailable(w)
		return
	}
	var req domain.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start := time.Now()
	flusher, _ := w.(http.Flusher)
	started := false
	fragments := 0
	startStream := func() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		started = true
	}

	err := rt.services.Chat.Stream(r.Context(), req, func(fragment string) error {
		if !started {
			startStream()
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			return err
		}
		fragments++
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if !started {
			writeError(w, r, err)
			return
		}
		slog.Warn("chat_stream_aborted",
			"request_id", requestIDFromContext(r.Context()),
			"fragments", fragments,
			"error", err,
		)
		return
	}
	if !started {
		startStream()
	}
	if rt.services.Metrics != nil {
		rt.services.Metrics.RecordRAGModeRequest(serviceName, "/v1/chat", string(req.EffectiveMode()))
		rt.services.Metrics.RecordRAGObservation(serviceName, "/v1/chat", fragments, time.Since(start))
	}
}

func (rt *Router) explain(w http.ResponseWriter, r *http.Request) {
	if rt.services.Explainer == nil {
		writeUnavailable(w)
		return
	}
	var req domain.ExplainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	explanation, err := rt.services.Explainer.Explain(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, explanation)
}

type hashRequest struct {
	ContentHash string `json:"content_hash"`
}

type hashesRequest struct {
	ContentHashes []string `json:"content_hashes"`
}

func (rt *Router) summary(w http.ResponseWriter, r *http.Request) {
	if rt.services.Summaries == nil {
		writeUnavailable(w)
		return
	}
	var req hashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	summary, err := rt.services.Summaries.Summary(r.Context(), req.ContentHash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"content_hash": req.ContentHash,
		"summary":      summary,
	})
}

func (rt *Router) summaryBatch(w http.ResponseWriter, r *http.Request) {
	if rt.services.Summaries == nil {
		writeUnavailable(w)
		return
	}
	var req hashesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summaries": rt.services.Summaries.SummaryBatch(r.Context(), req.ContentHashes),
	})
}

func (rt *Router) summaryStatus(w http.ResponseWriter, r *http.Request) {
	if rt.services.Summaries == nil {
		writeUnavailable(w)
		return
	}
	var req hashesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": rt.services.Summaries.SummaryStatus(r.Context(), req.ContentHashes),
	})
}

func (rt *Router) export(w http.ResponseWriter, r *http.Request) {
	if rt.services.Exporter == nil {
		writeUnavailable(w)
		return
	}
	var req hashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := rt.services.Exporter.Export(r.Context(), req.ContentHash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) exportBatch(w http.ResponseWriter, r *http.Request) {
	if rt.services.Exporter == nil {
		writeUnavailable(w)
		return
	}
	var req hashesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exports": rt.services.Exporter.ExportBatch(r.Context(), req.ContentHashes),
	})
}

func (rt *Router) analyzeRisk(w http.ResponseWriter, r *http.Request) {
	if rt.services.Risk == nil {
		writeUnavailable(w)
		return
	}
	var req domain.RiskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	analysis, err := rt.services.Risk.Analyze(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (rt *Router) cacheInfo(w http.ResponseWriter, r *http.Request) {
	if rt.services.Cache == nil {
		writeUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, rt.services.Cache.Info(r.Context()))
}

func (rt *Router) downloadBlob(w http.ResponseWriter, r *http.Request) {
	if rt.services.Blobs == nil {
		writeUnavailable(w)
		return
	}
	key := r.PathValue("key")
	query := r.URL.Query()
	if err := rt.services.Blobs.Verify(key, query.Get("expires"), query.Get("sig")); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid or expired link"})
		return
	}

	body, err := rt.services.Blobs.Get(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := "application/octet-stream"
	if strings.EqualFold(path.Ext(key), ".pdf") {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("blob_download_interrupted", "request_id", requestIDFromContext(r.Context()), "key", key, "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service is not configured"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
