// Package viewer owns the display state. Everything that reads or changes
// it runs on one goroutine, the one inside Run: loader callbacks, control
// commands and the slideshow timer all arrive through the same queue.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"slideshow/internal/cache"
	"slideshow/internal/loader"
	"slideshow/internal/navigator"
)

const (
	// MaxConsecutiveSkips bounds how many failing images the slideshow skips in a row
	MaxConsecutiveSkips = 10

	// MaxViewportSide is the largest accepted viewport width or height
	MaxViewportSide = 8192

	DefaultSlideDuration = 4 * time.Second
)

var ErrUnknownAction = errors.New("unknown action")

// Loader is the part of the decode pipeline the viewer drives
type Loader interface {
	TryGetCached(key cache.RequestKey) (*cache.Entry, bool)
	LoadTarget(key cache.RequestKey, hint loader.Hint, cb *loader.Callbacks) uint64
	CancelAll() uint64
	Stats() loader.Stats
}

// Navigator picks images
type Navigator interface {
	Len() int
	Current() string
	Mode() navigator.Mode
	ToggleMode() navigator.Mode
	History() (int, int)
	Next() (string, bool)
	Prev() (string, bool)
	PredictNext() (string, bool)
	Show(id string)
	Sibling(offset int) (string, bool)
	First() (string, bool)
	Folder(offset int) (string, bool)
}

// Describer resolves display metadata for a source id
type Describer interface {
	GetName(id string) string
	GetParent(id string) string
	GetSize(id string) int64
}

type Config struct {
	SlideDuration  time.Duration
	ViewportWidth  int
	ViewportHeight int
	FitMode        cache.FitMode
	Playing        bool
}

// Frame is the rendition currently on screen
type Frame struct {
	Key   cache.RequestKey
	Entry *cache.Entry
}

type State struct {
	Current        string       `json:"current"`
	Name           string       `json:"name,omitempty"`
	Folder         string       `json:"folder,omitempty"`
	Size           int64        `json:"size,omitempty"`
	FitMode        string       `json:"fit_mode"`
	Rotation       int          `json:"rotation"`
	ViewportWidth  int          `json:"viewport_width"`
	ViewportHeight int          `json:"viewport_height"`
	Tier           string       `json:"tier,omitempty"`
	Width          int          `json:"width,omitempty"`
	Height         int          `json:"height,omitempty"`
	OriginalWidth  int          `json:"original_width,omitempty"`
	OriginalHeight int          `json:"original_height,omitempty"`
	Playing        bool         `json:"playing"`
	Mode           string       `json:"mode"`
	Images         int          `json:"images"`
	HistoryIndex   int          `json:"history_index"`
	HistoryLength  int          `json:"history_length"`
	Error          string       `json:"error,omitempty"`
	Generation     uint64       `json:"generation"`
	Loader         loader.Stats `json:"loader"`
}

type Viewer struct {
	loader    Loader
	nav       Navigator
	describer Describer
	queue     *loader.Queue
	logger    *zap.Logger
	duration  time.Duration

	// Owned by the Run goroutine
	key        cache.RequestKey
	frame      *cache.Entry
	playing    bool
	lastErr    string
	skips      int
	generation uint64
	timer      *time.Timer
}

func New(cfg Config, l Loader, nav Navigator, describer Describer, queue *loader.Queue, logger *zap.Logger) *Viewer {
	if cfg.SlideDuration <= 0 {
		cfg.SlideDuration = DefaultSlideDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timer := time.NewTimer(cfg.SlideDuration)
	timer.Stop()

	return &Viewer{
		loader:    l,
		nav:       nav,
		describer: describer,
		queue:     queue,
		logger:    logger,
		duration:  cfg.SlideDuration,
		key: cache.RequestKey{
			FitMode:        cfg.FitMode,
			ViewportWidth:  cfg.ViewportWidth,
			ViewportHeight: cfg.ViewportHeight,
		},
		playing: cfg.Playing,
		timer:   timer,
	}
}

// Run makes the calling goroutine the presentation goroutine until ctx is done
func (v *Viewer) Run(ctx context.Context) {
	defer v.timer.Stop()

	if v.nav.Len() > 0 {
		v.step(v.nav.Next)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.queue.Ready():
			v.queue.Drain()
		case <-v.timer.C:
			v.logger.Debug("Slide timer fired")
			v.step(v.nav.Next)
		}
	}
}

// Control applies an action on the presentation goroutine
func (v *Viewer) Control(ctx context.Context, action string) error {
	return v.call(ctx, func() error {
		return v.apply(action)
	})
}

// Show jumps to a specific image
func (v *Viewer) Show(ctx context.Context, id string) error {
	return v.call(ctx, func() error {
		v.nav.Show(id)
		v.navigated()
		return nil
	})
}

// Resize changes the viewport. Nothing is reloaded when the size is unchanged.
func (v *Viewer) Resize(ctx context.Context, width, height int) error {
	if width <= 0 || height <= 0 || width > MaxViewportSide || height > MaxViewportSide {
		return fmt.Errorf("invalid viewport %dx%d (each side must be within 1..%d)", width, height, MaxViewportSide)
	}
	return v.call(ctx, func() error {
		if width == v.key.ViewportWidth && height == v.key.ViewportHeight {
			return nil
		}
		v.key.ViewportWidth = width
		v.key.ViewportHeight = height
		v.load()
		return nil
	})
}

// State returns a snapshot of the display state
func (v *Viewer) State(ctx context.Context) (State, error) {
	var s State
	err := v.call(ctx, func() error {
		s = v.snapshot()
		return nil
	})
	return s, err
}

// Frame returns the rendition currently shown, if any
func (v *Viewer) Frame(ctx context.Context) (Frame, bool, error) {
	var (
		f  Frame
		ok bool
	)
	err := v.call(ctx, func() error {
		if v.frame != nil {
			f = Frame{Key: v.key, Entry: v.frame}
			ok = true
		}
		return nil
	})
	return f, ok, err
}

func (v *Viewer) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	v.queue.Post(func() {
		done <- fn()
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Viewer) apply(action string) error {
	switch action {
	case "next":
		v.step(v.nav.Next)
	case "prev":
		v.step(v.nav.Prev)
	case "sibling_next":
		v.step(func() (string, bool) { return v.nav.Sibling(1) })
	case "sibling_prev":
		v.step(func() (string, bool) { return v.nav.Sibling(-1) })
	case "first":
		v.step(v.nav.First)
	case "folder_next":
		v.step(func() (string, bool) { return v.nav.Folder(1) })
	case "folder_prev":
		v.step(func() (string, bool) { return v.nav.Folder(-1) })
	case "play":
		v.setPlaying(true)
	case "pause":
		v.setPlaying(false)
	case "toggle":
		v.setPlaying(!v.playing)
	case "mode":
		mode := v.nav.ToggleMode()
		v.logger.Info("Slide mode changed", zap.Stringer("mode", mode))
		v.resetTimer()
	case "fit":
		v.key.FitMode = v.key.FitMode.Next()
		v.load()
	case "rotate_cw":
		v.rotate(90)
	case "rotate_ccw":
		v.rotate(-90)
	case "cancel":
		v.generation = v.loader.CancelAll()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return nil
}

func (v *Viewer) step(move func() (string, bool)) {
	if _, ok := move(); !ok {
		return
	}
	v.skips = 0
	v.navigated()
}

func (v *Viewer) navigated() {
	v.key.Rotation = 0
	v.load()
	v.resetTimer()
}

func (v *Viewer) rotate(delta int) {
	v.key.Rotation = cache.NormalizeRotation(v.key.Rotation + delta)
	v.load()
}

func (v *Viewer) setPlaying(playing bool) {
	v.playing = playing
	v.resetTimer()
	v.logger.Info("Slideshow state changed", zap.Bool("playing", playing))
}

func (v *Viewer) resetTimer() {
	v.timer.Stop()
	if v.playing {
		v.timer.Reset(v.duration)
	}
}

// load shows whatever is cached for the current key right away and starts
// a new generation for it
func (v *Viewer) load() {
	v.key.SourceID = v.nav.Current()
	if v.key.SourceID == "" {
		return
	}

	v.frame = nil
	v.lastErr = ""
	if entry, ok := v.loader.TryGetCached(v.key); ok {
		v.frame = entry
	}

	predicted, _ := v.nav.PredictNext()
	hint := loader.Hint{
		PredictedNext: predicted,
		Sequential:    v.nav.Mode() == navigator.ModeSequential,
	}
	v.generation = v.loader.LoadTarget(v.key, hint, &loader.Callbacks{
		OnResult: v.onResult,
		OnError:  v.onError,
	})
}

func (v *Viewer) onResult(key cache.RequestKey, entry *cache.Entry, tier cache.QualityTier) {
	if key != v.key {
		return
	}
	if v.frame != nil && v.frame.Tier > tier {
		return
	}
	v.frame = entry
	v.skips = 0
	v.lastErr = ""
}

func (v *Viewer) onError(key cache.RequestKey, err error) {
	if key != v.key {
		return
	}
	v.lastErr = err.Error()

	if !v.playing || v.frame != nil {
		return
	}
	if v.skips >= MaxConsecutiveSkips {
		v.logger.Warn("Too many failing images in a row, slideshow paused", zap.Int("skips", v.skips))
		v.setPlaying(false)
		return
	}

	v.skips++
	v.logger.Info("Skipping failing image", zap.String("source_id", key.SourceID), zap.Int("skips", v.skips))
	if _, ok := v.nav.Next(); ok {
		v.key.Rotation = 0
		v.load()
		v.resetTimer()
	}
}

func (v *Viewer) snapshot() State {
	s := State{
		Current:        v.key.SourceID,
		FitMode:        v.key.FitMode.String(),
		Rotation:       v.key.Rotation,
		ViewportWidth:  v.key.ViewportWidth,
		ViewportHeight: v.key.ViewportHeight,
		Playing:        v.playing,
		Mode:           v.nav.Mode().String(),
		Images:         v.nav.Len(),
		Error:          v.lastErr,
		Generation:     v.generation,
		Loader:         v.loader.Stats(),
	}
	s.HistoryIndex, s.HistoryLength = v.nav.History()
	if s.Current != "" && v.describer != nil {
		s.Name = v.describer.GetName(s.Current)
		s.Folder = v.describer.GetParent(s.Current)
		s.Size = v.describer.GetSize(s.Current)
	}
	if v.frame != nil {
		s.Tier = v.frame.Tier.String()
		s.Width = v.frame.Width
		s.Height = v.frame.Height
		s.OriginalWidth = v.frame.OriginalWidth
		s.OriginalHeight = v.frame.OriginalHeight
	}
	return s
}
