// Package rlm implements the Relevant Local Memory context manager
// (SPEC_FULL.md §4.11): a per-agent, token-bounded LRU cache of source
// files, a domain scoper that ranks which files belong in that cache, and
// a bounded-depth subagent spawner for delegated work.
package rlm

import (
	"container/list"
	"sync"
	"time"

	"github.com/wavehq/orchestrator/pkg/domain"
)

// DefaultMaxTokens is the cache's default token budget (SPEC_FULL.md §4.11).
const DefaultMaxTokens = 100_000

// entryRef is the payload stored in the LRU list; Pinned entries are
// skipped by eviction but still participate in lookup.
type entryRef struct {
	entry domain.ContextCacheEntry
}

// Cache is a token-bounded LRU cache of file contents. Pinned entries
// (typically the agent's own domain files) are never evicted; eviction
// only ever removes the least-recently-used unpinned entry.
type Cache struct {
	mu        sync.Mutex
	maxTokens int
	total     int
	order     *list.List // front = most recently used
	index     map[string]*list.Element
}

func NewCache(maxTokens int) *Cache {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Cache{
		maxTokens: maxTokens,
		order:     list.New(),
		index:     make(map[string]*list.Element),
	}
}

// Put inserts or updates an entry, touching it to most-recently-used, and
// evicts unpinned entries from the back until the cache is within budget
// (or only pinned entries remain).
func (c *Cache) Put(path, content string, pinned bool) domain.ContextCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens := domain.EstimateTokens(content)
	entry := domain.ContextCacheEntry{
		Path: path, Content: content, EstimatedTokens: tokens,
		Pinned: pinned, LastAccess: time.Now().UnixNano(),
	}

	if el, ok := c.index[path]; ok {
		old := el.Value.(*entryRef).entry
		c.total -= old.EstimatedTokens
		el.Value = &entryRef{entry: entry}
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&entryRef{entry: entry})
		c.index[path] = el
	}
	c.total += tokens

	c.evictLocked()
	return entry
}

// Get returns a cached entry and marks it most-recently-used.
func (c *Cache) Get(path string) (domain.ContextCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[path]
	if !ok {
		return domain.ContextCacheEntry{}, false
	}
	ref := el.Value.(*entryRef)
	ref.entry.LastAccess = time.Now().UnixNano()
	c.order.MoveToFront(el)
	return ref.entry, true
}

// Snapshot returns path -> content for every cached entry
// (get_context() in SPEC_FULL.md §4.11).
func (c *Cache) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.index))
	for path, el := range c.index {
		out[path] = el.Value.(*entryRef).entry.Content
	}
	return out
}

// TotalTokens returns the cache's current token usage.
func (c *Cache) TotalTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evictLocked removes least-recently-used unpinned entries from the back
// of the list until the cache is within budget or only pinned entries
// remain. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	for c.total > c.maxTokens {
		el := c.oldestUnpinnedLocked()
		if el == nil {
			return
		}
		ref := el.Value.(*entryRef)
		c.total -= ref.entry.EstimatedTokens
		delete(c.index, ref.entry.Path)
		c.order.Remove(el)
	}
}

func (c *Cache) oldestUnpinnedLocked() *list.Element {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if !el.Value.(*entryRef).entry.Pinned {
			return el
		}
	}
	return nil
}
