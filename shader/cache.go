package shader

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// DefaultCacheCapacity is the number of programs a Cache keeps when
// created with a non-positive capacity.
const DefaultCacheCapacity = 64

// Cache memoizes Compile by source text with LRU eviction. Failed
// compilations are not cached. It is safe for concurrent use.
//
// The returned SPIR-V is shared between callers and must not be modified.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	lru      *list.List // front is most recently used

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	key    uint64
	source string
	spirv  []byte
}

// CacheStats holds cache counters.
type CacheStats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// NewCache creates a cache holding up to capacity programs.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[uint64]*list.Element),
		lru:      list.New(),
	}
}

// sourceKey is the FNV-1a hash of the source text.
func sourceKey(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// Compile returns the cached module for source, compiling it on a miss.
// Concurrent misses for the same source may compile it more than once.
func (c *Cache) Compile(source string) ([]byte, error) {
	key := sourceKey(source)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok && el.Value.(*cacheEntry).source == source {
		c.lru.MoveToFront(el)
		spirv := el.Value.(*cacheEntry).spirv
		c.mu.Unlock()
		c.hits.Add(1)
		return spirv, nil
	}
	c.mu.Unlock()
	c.misses.Add(1)

	spirv, err := Compile(source)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		// Same hash: refresh, whether another caller won the race or the
		// sources collide.
		el.Value = &cacheEntry{key: key, source: source, spirv: spirv}
		c.lru.MoveToFront(el)
		return spirv, nil
	}
	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, source: source, spirv: spirv})
	return spirv, nil
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	n := c.lru.Len()
	c.mu.Unlock()
	return CacheStats{
		Len:       n,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
