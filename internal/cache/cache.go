// ABOUTME: Thread-safe LRU cache with an entry-count bound and per-entry max age
// ABOUTME: Used by the document store to avoid re-reading hot documents from storage

package cache

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores a value, its insertion time and its list element.
type cacheEntry[V any] struct {
	key     string
	value   V
	addedAt time.Time
}

// Cache is a size-limited LRU cache whose entries also expire after maxAge,
// independent of how recently they were used. Uses a doubly-linked list
// (most recently used at back) for O(1) eviction.
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxAge  time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache holding at most maxSize entries for at most maxAge each.
// A background goroutine periodically removes expired entries; call Close to
// stop it.
func New[V any](maxSize int, maxAge time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxAge:  maxAge,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the value for key if present and not expired, marking it as
// most recently used. Expired entries are removed on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*cacheEntry[V])
	if c.expired(entry, c.now()) {
		c.removeElement(elem)
		return zero, false
	}
	c.order.MoveToBack(elem)
	return entry.value, true
}

// Set stores value under key, resetting its age. If the cache is full the
// least recently used entry is evicted.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// setLocked is the internal set implementation. Must be called with mu held.
func (c *Cache[V]) setLocked(key string, value V) {
	now := c.now()

	if elem, exists := c.items[key]; exists {
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		entry.addedAt = now
		c.order.MoveToBack(elem)
		return
	}

	if c.maxSize <= 0 {
		return
	}
	for len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(&cacheEntry[V]{key: key, value: value, addedAt: now})
	c.items[key] = elem
}

// Delete removes key from the cache.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of entries, including expired ones not yet removed.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) expired(entry *cacheEntry[V], now time.Time) bool {
	return c.maxAge > 0 && now.Sub(entry.addedAt) >= c.maxAge
}

// evictOldest removes the least recently used entry. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.removeElement(front)
}

// removeElement drops elem from both the list and the map. Must be called with mu held.
func (c *Cache[V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry[V])
	c.order.Remove(elem)
	delete(c.items, entry.key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	interval := time.Minute
	if c.maxAge > 0 && c.maxAge < interval {
		interval = c.maxAge
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, elem := range c.items {
		if c.expired(elem.Value.(*cacheEntry[V]), now) {
			c.removeElement(elem)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
