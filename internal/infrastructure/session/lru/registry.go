package lru

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const DefaultCapacity = 200

// Registry maps cache keys to chat sessions stored on the document entries.
// Document, general and ad-hoc keys share one recency list and one capacity.
type Registry struct {
	capacity int
	docs     ports.DocumentCache
	model    ports.ChatModel
	metrics  ports.CacheMetrics

	mu    sync.Mutex
	order *list.List
	items map[domain.CacheKey]*list.Element
}

var _ ports.SessionRegistry = (*Registry)(nil)

func NewRegistry(capacity int, docs ports.DocumentCache, model ports.ChatModel, metrics ports.CacheMetrics) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		docs:     docs,
		model:    model,
		metrics:  metrics,
		order:    list.New(),
		items:    make(map[domain.CacheKey]*list.Element),
	}
}

// Session returns the session bound to key, creating one when the entry has
// none (first access or after eviction). Document keys must already be cached.
func (r *Registry) Session(ctx context.Context, key domain.CacheKey) (domain.ChatSession, error) {
	session, err := r.attach(ctx, key)
	if err != nil && key.SessionOnly() && domain.IsKind(err, domain.ErrDocumentNotFound) {
		// evicted between create and attach
		session, err = r.attach(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	r.Touch(key)
	return session, nil
}

func (r *Registry) attach(ctx context.Context, key domain.CacheKey) (domain.ChatSession, error) {
	if key.SessionOnly() {
		r.docs.GetOrCreate(key)
	}

	var session domain.ChatSession
	_, err := r.docs.Merge(key, func(entry *domain.DocumentEntry) error {
		if entry.ChatSession != nil {
			session = entry.ChatSession
			return nil
		}
		created, err := r.model.NewSession(ctx)
		if err != nil {
			return fmt.Errorf("create chat session: %w", err)
		}
		entry.ChatSession = created
		session = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Touch marks key as most recently used and evicts past capacity. A key whose
// entry is no longer cached is not registered again.
func (r *Registry) Touch(key domain.CacheKey) {
	r.mu.Lock()
	if el, ok := r.items[key]; ok {
		r.order.MoveToFront(el)
	} else if _, cached := r.docs.Get(key); cached {
		r.items[key] = r.order.PushFront(key)
	} else {
		r.mu.Unlock()
		return
	}

	var evicted []domain.CacheKey
	for r.order.Len() > r.capacity {
		oldest := r.order.Back()
		evictKey := oldest.Value.(domain.CacheKey)
		r.order.Remove(oldest)
		delete(r.items, evictKey)
		if evictKey.SessionOnly() {
			// removed under r.mu so a concurrent Touch sees it gone
			r.docs.Delete(evictKey)
		}
		evicted = append(evicted, evictKey)
	}
	r.mu.Unlock()

	for _, evictKey := range evicted {
		r.evict(evictKey)
	}
}

// Forget drops key from the recency list without touching the cache. The
// document cache calls it when it evicts an entry on its own.
func (r *Registry) Forget(key domain.CacheKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.items[key]; ok {
		r.order.Remove(el)
		delete(r.items, key)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Keys returns registered keys, most recent first.
func (r *Registry) Keys() []domain.CacheKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CacheKey, 0, r.order.Len())
	for el := r.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(domain.CacheKey))
	}
	return out
}

// evict detaches the session from document entries. Session-only entries are
// already deleted by Touch.
func (r *Registry) evict(key domain.CacheKey) {
	scope := key.Scope()
	if !key.SessionOnly() {
		_, err := r.docs.Merge(key, func(entry *domain.DocumentEntry) error {
			entry.ChatSession = nil
			return nil
		})
		if err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
			slog.Error("session_evict_failed", "key", key.String(), "error", err)
		}
	}
	slog.Debug("session_evicted", "key", key.String(), "scope", string(scope))
	if r.metrics != nil {
		r.metrics.RecordSessionEviction(string(scope))
	}
}
