package memory

import (
	"container/list"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

type documentSlot struct {
	key  domain.CacheKey
	elem *list.Element

	mu      sync.Mutex
	entry   domain.DocumentEntry
	removed bool
}

// DocumentCache keeps one slot per key. The map and the recency list are
// guarded by mu; each entry is guarded by its slot lock, so merges for
// different keys never contend.
type DocumentCache struct {
	maxEntries int
	onEvict    func(domain.CacheKey)

	mu    sync.Mutex
	slots map[domain.CacheKey]*documentSlot
	order *list.List
}

var _ ports.DocumentCache = (*DocumentCache)(nil)

// NewDocumentCache builds a cache bounded to maxEntries by recency; zero means unbounded.
func NewDocumentCache(maxEntries int, onEvict func(domain.CacheKey)) *DocumentCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &DocumentCache{
		maxEntries: maxEntries,
		onEvict:    onEvict,
		slots:      make(map[domain.CacheKey]*documentSlot),
		order:      list.New(),
	}
}

func (c *DocumentCache) Get(key domain.CacheKey) (domain.DocumentEntry, bool) {
	c.mu.Lock()
	slot, ok := c.slots[key]
	if ok {
		c.order.MoveToFront(slot.elem)
	}
	c.mu.Unlock()
	if !ok {
		return domain.DocumentEntry{}, false
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.removed {
		return domain.DocumentEntry{}, false
	}
	return slot.entry.Clone(), true
}

// GetOrCreate returns the entry for key, creating an empty Processing entry
// when absent. The second result reports whether it was created.
func (c *DocumentCache) GetOrCreate(key domain.CacheKey) (domain.DocumentEntry, bool) {
	c.mu.Lock()
	slot, ok := c.slots[key]
	var evicted []*documentSlot
	if ok {
		c.order.MoveToFront(slot.elem)
	} else {
		slot = &documentSlot{key: key, entry: domain.NewDocumentEntry(key)}
		slot.elem = c.order.PushFront(slot)
		c.slots[key] = slot
		evicted = c.evictLocked()
	}
	c.mu.Unlock()

	c.release(evicted)

	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.entry.Clone(), !ok
}

// Merge applies update to the entry under its key lock. Changes are committed
// only when update returns nil. update must not call back into the cache.
func (c *DocumentCache) Merge(key domain.CacheKey, update func(entry *domain.DocumentEntry) error) (domain.DocumentEntry, error) {
	c.mu.Lock()
	slot, ok := c.slots[key]
	c.mu.Unlock()
	if !ok {
		return domain.DocumentEntry{}, domain.WrapError(domain.ErrDocumentNotFound, "merge", fmt.Errorf("key=%s", key))
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.removed {
		return domain.DocumentEntry{}, domain.WrapError(domain.ErrDocumentNotFound, "merge", fmt.Errorf("key=%s", key))
	}

	working := slot.entry.Clone()
	if err := update(&working); err != nil {
		return slot.entry.Clone(), err
	}
	working.UpdatedAt = time.Now().UTC()
	slot.entry = working
	return working.Clone(), nil
}

func (c *DocumentCache) Delete(key domain.CacheKey) {
	c.mu.Lock()
	slot, ok := c.slots[key]
	if ok {
		delete(c.slots, key)
		c.order.Remove(slot.elem)
	}
	c.mu.Unlock()
	if ok {
		slot.mu.Lock()
		slot.removed = true
		slot.mu.Unlock()
	}
}

// FindKeyByChunks scans every entry, O(n) in the number of cached entries,
// for an indexed document whose chunk list equals chunks exactly.
func (c *DocumentCache) FindKeyByChunks(chunks []string) (domain.CacheKey, bool) {
	for _, slot := range c.snapshotSlots() {
		slot.mu.Lock()
		match := !slot.removed && slot.entry.HasIndex() && slices.Equal(slot.entry.Chunks, chunks)
		slot.mu.Unlock()
		if match {
			return slot.key, true
		}
	}
	return "", false
}

func (c *DocumentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func (c *DocumentCache) States() map[domain.EntryState]int {
	out := make(map[domain.EntryState]int)
	for _, slot := range c.snapshotSlots() {
		slot.mu.Lock()
		if !slot.removed && slot.key.Scope() == domain.ScopeDocument {
			out[slot.entry.State]++
		}
		slot.mu.Unlock()
	}
	return out
}

func (c *DocumentCache) snapshotSlots() []*documentSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*documentSlot, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*documentSlot))
	}
	return out
}

func (c *DocumentCache) evictLocked() []*documentSlot {
	if c.maxEntries == 0 {
		return nil
	}
	var evicted []*documentSlot
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		slot := oldest.Value.(*documentSlot)
		c.order.Remove(oldest)
		delete(c.slots, slot.key)
		evicted = append(evicted, slot)
	}
	return evicted
}

func (c *DocumentCache) release(slots []*documentSlot) {
	for _, slot := range slots {
		slot.mu.Lock()
		slot.removed = true
		slot.mu.Unlock()
		if c.onEvict != nil {
			c.onEvict(slot.key)
		}
	}
}
