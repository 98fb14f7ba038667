package loader

import (
	"time"

	"slideshow/internal/cache"
)

// ResultFunc receives a completed rendition on the presentation goroutine
type ResultFunc func(key cache.RequestKey, entry *cache.Entry, tier cache.QualityTier)

// ErrorFunc receives a failed read or decode on the presentation goroutine
type ErrorFunc func(key cache.RequestKey, err error)

// Callbacks are optional; a task without them only warms the cache
type Callbacks struct {
	OnResult ResultFunc
	OnError  ErrorFunc
}

// task is one decode request. Lifecycle: queued, running, then completed,
// aborted (stale generation) or failed.
type task struct {
	id        string
	key       cache.RequestKey
	tier      cache.QualityTier
	gen       uint64
	callbacks *Callbacks
	submitted time.Time
}

func (t *task) prefetch() bool {
	return t.callbacks == nil
}
