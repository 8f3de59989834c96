package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/cache/memory"
	"github.com/kirillkom/legal-lens/internal/infrastructure/session/lru"
)

func TestCacheInfoCountsDocumentsOnly(t *testing.T) {
	docs := memory.NewDocumentCache(0, nil)
	seedDocument(docs, "a", retrievalChunks, nil)
	seedDocument(docs, "b", retrievalChunks[:2], func(entry *domain.DocumentEntry) { entry.State = domain.StateEnrichmentDone })
	registry := lru.NewRegistry(10, docs, &chatModelFake{}, nil)
	if _, err := registry.Session(context.Background(), domain.GeneralKey("caller")); err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	embeddings := memory.NewEmbeddingCache(&embedderFake{}, memory.EmbeddingCacheOptions{})
	if _, err := embeddings.Embed(context.Background(), []string{"x", "y"}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	info := NewCacheInfoUseCase(docs, registry, embeddings).Info(context.Background())
	if info.Documents != 2 || info.Sessions != 1 || info.Embeddings != 2 {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.States[domain.StateReady] != 1 || info.States[domain.StateEnrichmentDone] != 1 {
		t.Fatalf("unexpected states %v", info.States)
	}
}
