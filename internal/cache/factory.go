package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// NewCache creates a cache instance based on the cache type
func NewCache(cacheType string, capacity int, minFreeBytes uint64, log *zap.Logger) (Cache, error) {
	switch cacheType {
	case "memory":
		log.Info("Using memory cache",
			zap.Int("capacity", capacity),
			zap.Uint64("min_free_bytes", minFreeBytes),
		)
		var probe MemoryProbe
		if minFreeBytes > 0 {
			probe = SystemMemory{}
		}
		evictor := NewEvictor(capacity, minFreeBytes, probe, log.Named("evictor"))
		return NewMemoryCache(evictor, log.Named("cache")), nil
	case "disabled":
		log.Info("Cache disabled")
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, disabled)", cacheType)
	}
}
