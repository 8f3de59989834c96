package usecase

import (
	"context"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

type CacheInfoUseCase struct {
	docs       ports.DocumentCache
	sessions   ports.SessionRegistry
	embeddings ports.EmbeddingCache
}

var _ ports.CacheInspector = (*CacheInfoUseCase)(nil)

func NewCacheInfoUseCase(docs ports.DocumentCache, sessions ports.SessionRegistry, embeddings ports.EmbeddingCache) *CacheInfoUseCase {
	return &CacheInfoUseCase{docs: docs, sessions: sessions, embeddings: embeddings}
}

func (uc *CacheInfoUseCase) Info(context.Context) domain.CacheInfo {
	states := uc.docs.States()
	info := domain.CacheInfo{States: states}
	for _, n := range states {
		info.Documents += n
	}
	if uc.sessions != nil {
		info.Sessions = uc.sessions.Len()
	}
	if uc.embeddings != nil {
		info.Embeddings = uc.embeddings.Len()
	}
	return info
}
