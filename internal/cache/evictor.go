package cache

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrMemoryProbeUnsupported = errors.New("memory probe not supported on this platform")

// MemoryProbe reports how many bytes of system memory are currently available
type MemoryProbe interface {
	Available() (uint64, error)
}

// recencyList is the part of the LRU the evictor needs. Oldest means least recently used.
type recencyList interface {
	Len() int
	RemoveOldest() (RequestKey, *Entry, bool)
}

// Evictor enforces the count limit and, when a floor is configured, the
// free-memory limit. Both policies walk the same recency order.
type Evictor struct {
	capacity int
	minFree  uint64
	probe    MemoryProbe
	logger   *zap.Logger

	mu       sync.Mutex
	disabled bool // memory policy turned off after an unsupported probe
}

// NewEvictor creates an evictor keeping at most capacity entries. A zero
// minFreeBytes or nil probe disables the memory-pressure policy.
func NewEvictor(capacity int, minFreeBytes uint64, probe MemoryProbe, logger *zap.Logger) *Evictor {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evictor{
		capacity: capacity,
		minFree:  minFreeBytes,
		probe:    probe,
		logger:   logger,
	}
}

// Enforce evicts from l until both policies are satisfied and returns the
// number of entries removed. The caller must hold the lock guarding l.
func (e *Evictor) Enforce(l recencyList) int {
	evicted := 0
	for l.Len() > e.capacity {
		if _, _, ok := l.RemoveOldest(); !ok {
			break
		}
		evicted++
	}

	return evicted + e.enforceMemory(l)
}

func (e *Evictor) enforceMemory(l recencyList) int {
	if e.minFree == 0 || e.probe == nil || l.Len() <= 1 {
		return 0
	}

	e.mu.Lock()
	disabled := e.disabled
	e.mu.Unlock()
	if disabled {
		return 0
	}

	available, err := e.probe.Available()
	if err != nil {
		if errors.Is(err, ErrMemoryProbeUnsupported) {
			e.mu.Lock()
			e.disabled = true
			e.mu.Unlock()
			e.logger.Warn("Memory pressure eviction disabled", zap.Error(err))
			return 0
		}
		e.logger.Debug("Memory probe failed", zap.Error(err))
		return 0
	}
	if available >= e.minFree {
		return 0
	}

	// Released bytes are counted against the deficit; the last entry always survives.
	deficit := e.minFree - available
	var freed uint64
	evicted := 0
	for l.Len() > 1 && freed < deficit {
		_, entry, ok := l.RemoveOldest()
		if !ok {
			break
		}
		freed += uint64(entry.Size())
		evicted++
	}

	e.logger.Debug("Memory pressure eviction",
		zap.Uint64("available_bytes", available),
		zap.Uint64("min_free_bytes", e.minFree),
		zap.Uint64("freed_bytes", freed),
		zap.Int("evicted", evicted),
	)
	return evicted
}
