package cache

import "fmt"

// FitMode selects how a decoded image is sized against the viewport
type FitMode int

const (
	FitModeFit FitMode = iota
	FitModeOriginal
	FitModeFill
	FitModeMagnify
)

// FitModes lists every fit mode in cycling order
var FitModes = []FitMode{FitModeFit, FitModeOriginal, FitModeFill, FitModeMagnify}

func (m FitMode) String() string {
	switch m {
	case FitModeFit:
		return "fit"
	case FitModeOriginal:
		return "original"
	case FitModeFill:
		return "fill"
	case FitModeMagnify:
		return "magnify"
	default:
		return fmt.Sprintf("fitmode(%d)", int(m))
	}
}

// Next returns the following mode in cycling order
func (m FitMode) Next() FitMode {
	return FitModes[(int(m)+1)%len(FitModes)]
}

// ParseFitMode maps a mode name back to its value
func ParseFitMode(s string) (FitMode, error) {
	for _, m := range FitModes {
		if m.String() == s {
			return m, nil
		}
	}
	return FitModeFit, fmt.Errorf("unknown fit mode: %s (supported: fit, original, fill, magnify)", s)
}

// QualityTier orders renditions of the same key. A higher tier supersedes a lower one.
type QualityTier int

const (
	TierDraft QualityTier = iota
	TierFinal
)

func (t QualityTier) String() string {
	switch t {
	case TierDraft:
		return "draft"
	case TierFinal:
		return "final"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// RequestKey identifies a renderable variant of a source image.
// Viewport dimensions are part of the identity because resize targets depend on them.
type RequestKey struct {
	SourceID       string
	FitMode        FitMode
	Rotation       int
	ViewportWidth  int
	ViewportHeight int
}

// WithSource returns a copy of the key pointing at another source
func (k RequestKey) WithSource(sourceID string) RequestKey {
	k.SourceID = sourceID
	return k
}

// WithFitMode returns a copy of the key using another fit mode
func (k RequestKey) WithFitMode(mode FitMode) RequestKey {
	k.FitMode = mode
	return k
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%s[%s r%d %dx%d]", k.SourceID, k.FitMode, k.Rotation, k.ViewportWidth, k.ViewportHeight)
}

// NormalizeRotation folds any multiple of 90 degrees into 0, 90, 180 or 270
func NormalizeRotation(degrees int) int {
	r := degrees % 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}

// Entry is a decoded rendition. Data holds the encoded pixels in Format
// sized Width x Height; OriginalWidth/OriginalHeight describe the source
// after orientation and rotation were applied.
type Entry struct {
	Data           []byte
	Format         string
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	Tier           QualityTier
}

// Size is the number of bytes the entry holds
func (e *Entry) Size() int64 {
	if e == nil {
		return 0
	}
	return int64(len(e.Data))
}

// Stats is a point-in-time view of a store
type Stats struct {
	Len       int   `json:"len"`
	Bytes     int64 `json:"bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Rejected  int64 `json:"rejected"`
}

type Cache interface {
	// Get returns the entry and moves the key to the most recently used position
	Get(key RequestKey) (*Entry, bool)
	// Peek returns the entry without touching recency
	Peek(key RequestKey) (*Entry, bool)
	// Put stores the entry unless a higher tier is already held for the key.
	// It reports false only when the entry was rejected for that reason.
	Put(key RequestKey, entry *Entry) bool
	Len() int
	Stats() Stats
}
