package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/core/domain"
)

type queryErrFake struct {
	err error
}

func (f queryErrFake) Answer(_ context.Context, query string, chunks []string) (*domain.QueryAnswer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.QueryAnswer{Answer: "ok: " + query, Sources: []int{0}}, nil
}

type summariesFake struct {
	err       error
	summaries map[string]string
}

func (f summariesFake) Summary(_ context.Context, contentHash string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.summaries[contentHash], nil
}

func (f summariesFake) SummaryBatch(_ context.Context, contentHashes []string) map[string]string {
	out := map[string]string{}
	for _, hash := range contentHashes {
		if summary, ok := f.summaries[hash]; ok {
			out[hash] = summary
		}
	}
	return out
}

func (f summariesFake) SummaryStatus(_ context.Context, contentHashes []string) map[string]bool {
	out := map[string]bool{}
	for _, hash := range contentHashes {
		_, ok := f.summaries[hash]
		out[hash] = ok
	}
	return out
}

func (f summariesFake) EnrichmentStatus(_ context.Context, contentHash string) (*domain.EnrichmentStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	_, ok := f.summaries[contentHash]
	return &domain.EnrichmentStatus{ContentHash: contentHash, State: domain.StateEnrichmentDone, HasSummary: ok}, nil
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestQueryMapsDomainInvalidInputTo400(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{
		Query: queryErrFake{err: domain.WrapError(domain.ErrInvalidInput, "query", errors.New("chunks are required"))},
	}).Handler()

	res := postJSON(t, handler, "/v1/query", map[string]any{"query": "test"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestQueryReturnsAnswer(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Query: queryErrFake{}}).Handler()

	res := postJSON(t, handler, "/v1/query", map[string]any{"query": "term", "chunks": []string{"a"}})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var answer domain.QueryAnswer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if answer.Answer != "ok: term" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestQueryRejectsInvalidJSON(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{Query: queryErrFake{}}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSummaryNotReadyMapsTo404(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{
		Summaries: summariesFake{err: domain.WrapError(domain.ErrNotReady, "summary", errors.New("summary is still being generated"))},
	}).Handler()

	res := postJSON(t, handler, "/v1/summary", map[string]any{"content_hash": "abc"})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestEnrichmentStatusReturns404ForUnknownDocument(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{
		Summaries: summariesFake{err: domain.WrapError(domain.ErrDocumentNotFound, "enrichment status", errors.New("hash=missing"))},
	}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing/enrichment", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestSummaryStatusReportsEveryHash(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{
		Summaries: summariesFake{summaries: map[string]string{"a": "- one"}},
	}).Handler()

	res := postJSON(t, handler, "/v1/summary/status", map[string]any{"content_hashes": []string{"a", "b"}})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Status map[string]bool `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Status["a"] || resp.Status["b"] {
		t.Fatalf("unexpected status: %+v", resp.Status)
	}
	if _, ok := resp.Status["b"]; !ok {
		t.Fatalf("expected entry for b")
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrDocumentNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrNotReady, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestUnconfiguredServiceReturns503(t *testing.T) {
	handler := NewRouter(config.Config{}, Services{}).Handler()

	res := postJSON(t, handler, "/v1/explain", map[string]any{"text": "clause"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}
