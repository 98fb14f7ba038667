// Package loader turns "show image X at size/rotation/mode Y" into
// non-blocking work: a fast draft rendition followed by a final one, plus a
// warm set of likely next requests. Navigation bumps a generation counter;
// work stamped with an older generation abandons itself at the next
// checkpoint without producing callbacks or cache writes.
package loader

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"slideshow/internal/cache"
	"slideshow/internal/imaging"
)

// DefaultDraftWorkers is the draft pool size when none is configured
const DefaultDraftWorkers = 2

// SourceReader provides the encoded bytes for a source id
type SourceReader interface {
	ReadBytes(sourceID string) ([]byte, error)
}

type Config struct {
	// DraftWorkers sizes the draft pool. The final pool always has one worker.
	DraftWorkers int
	// Neighbors is optional; without it the warm set has no adjacent sibling.
	Neighbors Neighbors
}

type Stats struct {
	Generation     uint64      `json:"generation"`
	Submitted      uint64      `json:"submitted"`
	Completed      uint64      `json:"completed"`
	ShortCircuited uint64      `json:"short_circuited"`
	Aborted        uint64      `json:"aborted"`
	Failed         uint64      `json:"failed"`
	DraftPending   int         `json:"draft_pending"`
	FinalPending   int         `json:"final_pending"`
	Cache          cache.Stats `json:"cache"`
}

type Loader struct {
	source     SourceReader
	decoder    imaging.Decoder
	store      cache.Cache
	dispatcher Dispatcher
	planner    *Planner
	logger     *zap.Logger

	gen   Generation
	reads singleflight.Group
	draft *pool
	final *pool

	submitted      atomic.Uint64
	completed      atomic.Uint64
	shortCircuited atomic.Uint64
	aborted        atomic.Uint64
	failed         atomic.Uint64

	closeOnce sync.Once
}

func New(cfg Config, src SourceReader, decoder imaging.Decoder, store cache.Cache, dispatcher Dispatcher, logger *zap.Logger) *Loader {
	if cfg.DraftWorkers < 1 {
		cfg.DraftWorkers = DefaultDraftWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Loader{
		source:     src,
		decoder:    decoder,
		store:      store,
		dispatcher: dispatcher,
		planner:    NewPlanner(cfg.Neighbors),
		logger:     logger,
	}
	l.draft = newPool("draft", cfg.DraftWorkers, l.process)
	l.final = newPool("final", 1, l.process)

	logger.Info("Loader started", zap.Int("draft_workers", cfg.DraftWorkers))
	return l
}

// TryGetCached is a synchronous lookup that never decodes
func (l *Loader) TryGetCached(key cache.RequestKey) (*cache.Entry, bool) {
	return l.store.Get(key)
}

// RequestLoad enqueues one rendition under the current generation.
// cb may be nil for a warm-only request.
func (l *Loader) RequestLoad(key cache.RequestKey, tier cache.QualityTier, cb *Callbacks) {
	l.submit(key, tier, l.gen.Current(), cb)
}

// LoadTarget starts a new generation for key: draft and final renditions
// with cb, then the warm set. It returns the new generation.
func (l *Loader) LoadTarget(key cache.RequestKey, hint Hint, cb *Callbacks) uint64 {
	gen := l.gen.Bump()

	l.submit(key, cache.TierDraft, gen, cb)
	l.submit(key, cache.TierFinal, gen, cb)

	for _, planned := range l.planner.Plan(key, hint) {
		if entry, ok := l.store.Peek(planned.Key); ok && entry.Tier >= planned.Tier {
			continue
		}
		l.submit(planned.Key, planned.Tier, gen, nil)
	}

	l.logger.Debug("Target loaded",
		zap.Stringer("key", key),
		zap.Uint64("generation", gen),
		zap.String("predicted_next", hint.PredictedNext),
	)
	return gen
}

// CancelAll invalidates all outstanding work without submitting anything
func (l *Loader) CancelAll() uint64 {
	gen := l.gen.Bump()
	l.logger.Debug("Outstanding work cancelled", zap.Uint64("generation", gen))
	return gen
}

// Generation returns the live generation value
func (l *Loader) Generation() uint64 {
	return l.gen.Current()
}

func (l *Loader) Stats() Stats {
	return Stats{
		Generation:     l.gen.Current(),
		Submitted:      l.submitted.Load(),
		Completed:      l.completed.Load(),
		ShortCircuited: l.shortCircuited.Load(),
		Aborted:        l.aborted.Load(),
		Failed:         l.failed.Load(),
		DraftPending:   l.draft.pending(),
		FinalPending:   l.final.pending(),
		Cache:          l.store.Stats(),
	}
}

// Close invalidates outstanding work and stops both pools
func (l *Loader) Close() {
	l.closeOnce.Do(func() {
		l.gen.Bump()
		l.draft.close()
		l.final.close()
		l.logger.Info("Loader stopped")
	})
}

func (l *Loader) submit(key cache.RequestKey, tier cache.QualityTier, gen uint64, cb *Callbacks) {
	t := &task{
		id:        uuid.NewString(),
		key:       key,
		tier:      tier,
		gen:       gen,
		callbacks: cb,
		submitted: time.Now(),
	}

	p := l.final
	if tier == cache.TierDraft {
		p = l.draft
	}
	if !p.submit(t) {
		return
	}
	l.submitted.Add(1)

	l.logger.Debug("Task queued",
		zap.String("task_id", t.id),
		zap.Stringer("key", key),
		zap.Stringer("tier", tier),
		zap.Uint64("generation", gen),
		zap.Bool("prefetch", t.prefetch()),
	)
}

// process runs one task, checking the generation before every expensive step
func (l *Loader) process(t *task) {
	defer func() {
		if r := recover(); r != nil {
			l.fail(t, &DecodeError{Key: t.key, Tier: t.tier, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	if l.stale(t, "queued") {
		return
	}

	if entry, ok := l.store.Peek(t.key); ok && entry.Tier >= t.tier {
		if !t.prefetch() {
			// Only a delivered hit counts as a use of the entry
			l.store.Get(t.key)
		}
		l.deliver(t, entry)
		l.shortCircuited.Add(1)
		return
	}

	data, err := l.read(t.key.SourceID)
	if err != nil {
		l.fail(t, &SourceReadError{Key: t.key, Err: err})
		return
	}

	if l.stale(t, "read") {
		return
	}

	img, err := l.decoder.Decode(data, t.key, t.tier)
	if err != nil {
		l.fail(t, &DecodeError{Key: t.key, Tier: t.tier, Err: err})
		return
	}
	defer img.Close()

	if l.stale(t, "decode") {
		return
	}

	entry, err := l.decoder.Resample(img, t.key, t.tier)
	if err != nil {
		l.fail(t, &DecodeError{Key: t.key, Tier: t.tier, Err: err})
		return
	}

	if l.stale(t, "resample") {
		return
	}

	entry.Tier = t.tier
	if !l.store.Put(t.key, entry) {
		// A final rendition landed while this draft was being made
		l.logger.Debug("Draft superseded",
			zap.String("task_id", t.id),
			zap.Stringer("key", t.key),
		)
		l.completed.Add(1)
		return
	}

	l.logger.Debug("Task completed",
		zap.String("task_id", t.id),
		zap.Stringer("key", t.key),
		zap.Stringer("tier", t.tier),
		zap.Uint64("generation", t.gen),
		zap.Int("width", entry.Width),
		zap.Int("height", entry.Height),
		zap.Duration("elapsed", time.Since(t.submitted)),
	)

	l.deliver(t, entry)
	l.completed.Add(1)
}

// read collapses concurrent reads of the same source, e.g. the draft and
// final tasks of one target
func (l *Loader) read(sourceID string) ([]byte, error) {
	v, err, _ := l.reads.Do(sourceID, func() (interface{}, error) {
		return l.source.ReadBytes(sourceID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// stale reports whether t belongs to an old generation and records the
// abort. Only call it where the task ends on a true result.
func (l *Loader) stale(t *task, stage string) bool {
	if l.gen.IsCurrent(t.gen) {
		return false
	}
	l.aborted.Add(1)
	l.logger.Debug("Task aborted",
		zap.String("task_id", t.id),
		zap.Stringer("key", t.key),
		zap.Stringer("tier", t.tier),
		zap.String("stage", stage),
		zap.Uint64("generation", t.gen),
	)
	return true
}

// deliver posts the result to the presentation goroutine. The generation
// is checked again there, so a cancel issued on that goroutine also
// suppresses results that were already queued.
func (l *Loader) deliver(t *task, entry *cache.Entry) {
	if t.callbacks == nil || t.callbacks.OnResult == nil {
		return
	}
	// The task has already finished and been counted; only the callback is dropped
	if !l.gen.IsCurrent(t.gen) {
		l.logger.Debug("Result dropped",
			zap.String("task_id", t.id),
			zap.Stringer("key", t.key),
			zap.Uint64("generation", t.gen),
		)
		return
	}

	onResult := t.callbacks.OnResult
	key, gen := t.key, t.gen
	l.dispatcher.Post(func() {
		if !l.gen.IsCurrent(gen) {
			return
		}
		onResult(key, entry, entry.Tier)
	})
}

func (l *Loader) fail(t *task, err error) {
	if l.stale(t, "failed") {
		return
	}
	defer l.failed.Add(1)

	l.logger.Warn("Task failed",
		zap.String("task_id", t.id),
		zap.Stringer("key", t.key),
		zap.Stringer("tier", t.tier),
		zap.Error(err),
	)

	if t.callbacks == nil || t.callbacks.OnError == nil {
		return
	}
	onError := t.callbacks.OnError
	key, gen := t.key, t.gen
	l.dispatcher.Post(func() {
		if !l.gen.IsCurrent(gen) {
			return
		}
		onError(key, err)
	})
}
