// Package cache holds recently loaded attachment bytes. It is a bounded
// in-memory LRU and never the source of truth: entries whose backing file
// has vanished are purged on access, and the whole cache is invalidated
// after every cleanup sweep.
package cache

import (
	"container/list"
	"os"
	"sync"
)

// Default capacity limits.
const (
	DefaultMaxEntries   = 100
	DefaultMaxCostBytes = 50 << 20
)

// AttachmentCache maps cache keys ("account:mail:part") to attachment
// bytes. Reads take the shared lock; structural mutations (insert, evict,
// purge, clear) take the exclusive lock.
type AttachmentCache struct {
	mu         sync.RWMutex
	order      *list.List
	entries    map[string]*list.Element
	cost       int64
	maxEntries int
	maxCost    int64
}

type entry struct {
	key string
	// backingPath is the absolute file the bytes came from; empty for
	// inlined attachments, which cannot go stale.
	backingPath string
	data        []byte
}

// New creates a cache bounded by entry count and total byte cost.
// Non-positive limits fall back to the defaults.
func New(maxEntries int, maxCost int64) *AttachmentCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxCost <= 0 {
		maxCost = DefaultMaxCostBytes
	}
	return &AttachmentCache{
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		maxEntries: maxEntries,
		maxCost:    maxCost,
	}
}

// Get returns the cached bytes for key. A hit requires the backing file to
// still exist; a stale entry is purged and reported as a miss.
func (c *AttachmentCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}
	e := elem.Value.(*entry)
	backing := e.backingPath
	data := e.data
	c.mu.RUnlock()

	if backing != "" {
		if _, err := os.Stat(backing); err != nil {
			c.Remove(key)
			return nil, false
		}
	}

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
	}
	c.mu.Unlock()
	return data, true
}

// Add inserts bytes under key, evicting least recently used entries while
// either capacity limit is exceeded. The cost of an entry is len(data).
func (c *AttachmentCache) Add(key, backingPath string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		c.cost += int64(len(data)) - int64(len(e.data))
		e.data = data
		e.backingPath = backingPath
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&entry{key: key, backingPath: backingPath, data: data})
		c.entries[key] = elem
		c.cost += int64(len(data))
	}

	for (c.order.Len() > c.maxEntries || c.cost > c.maxCost) && c.order.Len() > 1 {
		c.evictOldest()
	}
	// A single entry larger than the cost cap is not worth caching.
	if c.cost > c.maxCost && c.order.Len() == 1 {
		c.evictOldest()
	}
}

// Remove drops the entry for key if present.
func (c *AttachmentCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// InvalidateAll empties the cache. Called after every cleanup sweep since
// backing files may have been deleted.
func (c *AttachmentCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.cost = 0
}

// Len returns the current entry count.
func (c *AttachmentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Cost returns the current total byte cost.
func (c *AttachmentCache) Cost() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cost
}

// MaxCost returns the configured byte-cost capacity.
func (c *AttachmentCache) MaxCost() int64 {
	return c.maxCost
}

func (c *AttachmentCache) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *AttachmentCache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, e.key)
	c.cost -= int64(len(e.data))
}
