package shader

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// DefaultCacheCapacity is the number of modules kept by the package cache.
const DefaultCacheCapacity = 32

// CacheStats reports cache activity.
type CacheStats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a thread-safe LRU cache of SPIR-V modules keyed by the hash of
// whatever produced them (WGSL source, or a file identity).
//
// Cached code is shared between callers and must not be modified.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	lru      *list.List

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	key  uint64
	code []uint32
}

// NewCache creates a cache holding at most capacity modules.
// If capacity <= 0, DefaultCacheCapacity is used.
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

// Key hashes the parts identifying a module with FNV-1a. Parts are separated
// so that ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Get returns the module stored under key.
func (c *Cache) Get(key uint64) ([]uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.lru.MoveToFront(e)
		c.hits.Add(1)
		return e.Value.(*cacheEntry).code, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores a module, evicting the least recently used one when full.
func (c *Cache) Set(key uint64, code []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, code)
}

func (c *Cache) set(key uint64, code []uint32) {
	if e, ok := c.entries[key]; ok {
		e.Value.(*cacheEntry).code = code
		c.lru.MoveToFront(e)
		return
	}
	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, code: code})
}

// GetOrCreate returns the cached module or produces it with create. Failed
// creations are not cached. create runs with the cache locked, so concurrent
// callers asking for the same key compile once.
func (c *Cache) GetOrCreate(key uint64, create func() ([]uint32, error)) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.lru.MoveToFront(e)
		c.hits.Add(1)
		return e.Value.(*cacheEntry).code, nil
	}
	c.misses.Add(1)
	code, err := create()
	if err != nil {
		return nil, err
	}
	c.set(key, code)
	return code, nil
}

// Clear drops every module. Statistics are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uint64]*list.Element)
	c.lru.Init()
	c.mu.Unlock()
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

var modules = NewCache(DefaultCacheCapacity)

// ModuleCache returns the cache shared by CompileWGSL and LoadRayTracingSet.
func ModuleCache() *Cache { return modules }
