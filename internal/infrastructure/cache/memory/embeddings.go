package memory

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/ports"
)

// LookupRecorder observes embedding cache hits and misses.
type LookupRecorder interface {
	RecordEmbeddingLookup(hits, misses int)
}

// Owned batches outlive the caller that started them; other callers may be
// waiting on the same texts.
const embedBatchTimeout = 2 * time.Minute

type embeddingItem struct {
	text   string
	vector []float32
}

type pendingEmbedding struct {
	done   chan struct{}
	vector []float32
	err    error
}

// EmbeddingCache deduplicates embedding calls by exact text. A text that is
// cached or already being embedded by another caller is never sent upstream
// again while it stays in the cache.
type EmbeddingCache struct {
	upstream   ports.Embedder
	batchSize  int
	maxEntries int
	recorder   LookupRecorder

	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	inflight map[string]*pendingEmbedding
}

var _ ports.EmbeddingCache = (*EmbeddingCache)(nil)

type EmbeddingCacheOptions struct {
	BatchSize  int
	MaxEntries int
	Recorder   LookupRecorder
}

func NewEmbeddingCache(upstream ports.Embedder, opts EmbeddingCacheOptions) *EmbeddingCache {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	maxEntries := opts.MaxEntries
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &EmbeddingCache{
		upstream:   upstream,
		batchSize:  batchSize,
		maxEntries: maxEntries,
		recorder:   opts.Recorder,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		inflight:   make(map[string]*pendingEmbedding),
	}
}

func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *EmbeddingCache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Embed returns vectors aligned with texts. Novel texts go upstream in batches.
func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	waits := make(map[int]*pendingEmbedding)
	owned := make(map[string]*pendingEmbedding)
	var novel []string
	hits := 0

	c.mu.Lock()
	for i, text := range texts {
		if el, ok := c.items[text]; ok {
			c.order.MoveToFront(el)
			out[i] = el.Value.(*embeddingItem).vector
			hits++
			continue
		}
		if pending, ok := c.inflight[text]; ok {
			waits[i] = pending
			continue
		}
		pending := &pendingEmbedding{done: make(chan struct{})}
		c.inflight[text] = pending
		owned[text] = pending
		waits[i] = pending
		novel = append(novel, text)
	}
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordEmbeddingLookup(hits, len(novel))
	}

	if len(novel) > 0 {
		go c.embedNovel(context.WithoutCancel(ctx), novel, owned)
	}

	for i, pending := range waits {
		select {
		case <-pending.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if pending.err != nil {
			return nil, pending.err
		}
		out[i] = pending.vector
	}
	return out, nil
}

func (c *EmbeddingCache) embedNovel(ctx context.Context, novel []string, owned map[string]*pendingEmbedding) {
	ctx, cancel := context.WithTimeout(ctx, embedBatchTimeout)
	defer cancel()

	for start := 0; start < len(novel); start += c.batchSize {
		end := min(start+c.batchSize, len(novel))
		batch := novel[start:end]

		vectors, err := c.upstream.Embed(ctx, batch)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(batch))
		}
		if err != nil {
			c.fail(novel[start:], owned, fmt.Errorf("embed batch: %w", err))
			return
		}
		c.store(batch, vectors, owned)
	}
}

func (c *EmbeddingCache) store(batch []string, vectors [][]float32, owned map[string]*pendingEmbedding) {
	c.mu.Lock()
	for i, text := range batch {
		c.items[text] = c.order.PushFront(&embeddingItem{text: text, vector: vectors[i]})
		delete(c.inflight, text)
	}
	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*embeddingItem).text)
	}
	c.mu.Unlock()

	for i, text := range batch {
		pending := owned[text]
		pending.vector = vectors[i]
		close(pending.done)
	}
}

func (c *EmbeddingCache) fail(texts []string, owned map[string]*pendingEmbedding, err error) {
	c.mu.Lock()
	for _, text := range texts {
		delete(c.inflight, text)
	}
	c.mu.Unlock()

	for _, text := range texts {
		pending := owned[text]
		pending.err = err
		close(pending.done)
	}
}
