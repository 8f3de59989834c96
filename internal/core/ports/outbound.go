package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// DocumentCache is the process-wide content-addressed store. Merge is the only
// way to change an entry; it runs under a per-key lock.
type DocumentCache interface {
	Get(key domain.CacheKey) (domain.DocumentEntry, bool)
	GetOrCreate(key domain.CacheKey) (domain.DocumentEntry, bool)
	Merge(key domain.CacheKey, update func(entry *domain.DocumentEntry) error) (domain.DocumentEntry, error)
	Delete(key domain.CacheKey)
	FindKeyByChunks(chunks []string) (domain.CacheKey, bool)
	Len() int
	States() map[domain.EntryState]int
}

// SnapshotStore persists processed documents for read-through on a cache miss.
type SnapshotStore interface {
	Load(ctx context.Context, contentHash string) (*domain.DocumentSnapshot, error)
	Save(ctx context.Context, snapshot *domain.DocumentSnapshot) error
}

// BlobStorage stores exports and staged uploads.
type BlobStorage interface {
	Put(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	SignedURL(key string, ttl time.Duration) (string, error)
}

// EventPublisher announces document lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.DocumentEvent) error
}

// TextExtractor turns raw upload bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, fileName string) (domain.Extraction, error)
	CountPages(data []byte, mimeType, fileName string) (int, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache is an Embedder that remembers every vector it produced.
type EmbeddingCache interface {
	Embedder
	Len() int
}

// Chunker splits text into retrieval passages.
type Chunker interface {
	Split(text string) []string
}

// RedFlagScanner flags chunks that mention a risk term.
type RedFlagScanner interface {
	Scan(chunks []string) []domain.RedFlag
}

// IndexBuilder builds an immutable similarity index.
type IndexBuilder interface {
	Build(vectors [][]float32) (domain.VectorIndex, error)
}

// TextGenerator produces one-shot completions.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema map[string]any) (string, error)
	ModelName() string
}

// FileSummarizer summarizes an original upload.
type FileSummarizer interface {
	Summarize(ctx context.Context, source domain.SourceFile, prompt string) (string, error)
}

// ChatModel opens stateful chat sessions.
type ChatModel interface {
	NewSession(ctx context.Context) (domain.ChatSession, error)
}

// SessionRegistry hands out chat sessions per cache key under an LRU bound.
type SessionRegistry interface {
	Session(ctx context.Context, key domain.CacheKey) (domain.ChatSession, error)
	Len() int
}

// PDFRenderer renders a markdown summary document.
type PDFRenderer interface {
	RenderSummary(title, markdown string) ([]byte, error)
}

// WorkerPool bounds concurrent blocking upstream calls.
type WorkerPool interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// CacheMetrics records cache and enrichment outcomes.
type CacheMetrics interface {
	RecordCacheLookup(source string)
	RecordEnrichment(step, status string)
	RecordSessionEviction(scope string)
}
