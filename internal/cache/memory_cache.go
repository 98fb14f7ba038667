package cache

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

// MemoryCache implements in-memory LRU cache of decoded renditions.
// The recency list itself is unbounded; the Evictor owns every limit and
// runs after each Put inside the same critical section.
type MemoryCache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[RequestKey, *Entry]
	evictor *Evictor
	logger  *zap.Logger

	bytes     int64
	hits      int64
	misses    int64
	evictions int64
	rejected  int64
}

// NewMemoryCache creates a new in-memory LRU cache governed by evictor
func NewMemoryCache(evictor *Evictor, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &MemoryCache{
		evictor: evictor,
		logger:  logger,
	}

	// simplelru only fails on a non-positive size
	lru, _ := simplelru.NewLRU[RequestKey, *Entry](math.MaxInt, c.onEvict)
	c.lru = lru
	return c
}

// onEvict runs under c.mu: every removal path goes through a locked method
func (c *MemoryCache) onEvict(key RequestKey, value *Entry) {
	c.bytes -= value.Size()
	c.evictions++
	c.logger.Debug("Evicted entry",
		zap.Stringer("key", key),
		zap.Stringer("tier", value.Tier),
		zap.Int64("bytes", value.Size()),
	)
}

func (c *MemoryCache) Get(key RequestKey) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry, true
}

func (c *MemoryCache) Peek(key RequestKey) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Peek(key)
}

func (c *MemoryCache) Put(key RequestKey, entry *Entry) bool {
	if entry == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := true
	if existing, ok := c.lru.Get(key); ok {
		if existing.Tier > entry.Tier {
			// Never downgrade: keep the higher tier, recency is already bumped by Get.
			c.rejected++
			stored = false
		} else {
			c.bytes -= existing.Size()
		}
	}

	if stored {
		c.lru.Add(key, entry)
		c.bytes += entry.Size()
	}

	c.evictor.Enforce(c.lru)
	return stored
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Len:       c.lru.Len(),
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Rejected:  c.rejected,
	}
}

// keys returns the cached keys from least to most recently used
func (c *MemoryCache) keys() []RequestKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Keys()
}
