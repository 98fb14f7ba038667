// Package imaging holds the decoder contract shared by the loader and the
// libvips renderer, plus the sizing rules that turn a RequestKey into
// target pixel dimensions.
package imaging

import (
	"math"

	"slideshow/internal/cache"
)

// MagnifyFactor is the fixed multiplier applied to native pixels in magnify mode
const MagnifyFactor = 2

// Image is a decoded, oriented and rotated picture waiting to be resampled
type Image interface {
	Width() int
	Height() int
	Close()
}

// Decoder turns source bytes into renditions. Decode covers decoding,
// orientation and rotation; Resample covers sizing and encoding. The split
// lets callers check for staleness between the two.
type Decoder interface {
	Decode(data []byte, key cache.RequestKey, tier cache.QualityTier) (Image, error)
	Resample(img Image, key cache.RequestKey, tier cache.QualityTier) (*cache.Entry, error)
}

// TargetSize computes the rendition size for an image of width x height
// (already rotated) under the key's fit mode and viewport.
func TargetSize(width, height int, key cache.RequestKey) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}

	w, h := float64(width), float64(height)
	vw, vh := float64(key.ViewportWidth), float64(key.ViewportHeight)

	var tw, th int
	switch key.FitMode {
	case cache.FitModeOriginal:
		tw, th = width, height
	case cache.FitModeFill:
		if vw <= 0 || vh <= 0 {
			tw, th = width, height
			break
		}
		ratio := math.Max(vw/w, vh/h)
		tw, th = int(w*ratio), int(h*ratio)
	case cache.FitModeMagnify:
		tw, th = width*MagnifyFactor, height*MagnifyFactor
	default:
		if vw <= 0 || vh <= 0 {
			tw, th = width, height
			break
		}
		ratio := math.Min(vw/w, vh/h)
		tw, th = int(w*ratio), int(h*ratio)
	}

	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

// RotatedSize swaps the dimensions for quarter turns
func RotatedSize(width, height, rotation int) (int, int) {
	switch cache.NormalizeRotation(rotation) {
	case 90, 270:
		return height, width
	default:
		return width, height
	}
}

// OrientedSize applies an EXIF orientation tag to stored dimensions.
// Orientations 5 to 8 transpose the image.
func OrientedSize(width, height, orientation int) (int, int) {
	if orientation >= 5 && orientation <= 8 {
		return height, width
	}
	return width, height
}

// DraftShrink picks the largest JPEG shrink-on-load factor (1, 2, 4 or 8)
// that still leaves at least target pixels on both axes.
func DraftShrink(width, height, targetWidth, targetHeight int) int {
	if targetWidth <= 0 || targetHeight <= 0 {
		return 1
	}

	shrink := 1
	for _, s := range []int{2, 4, 8} {
		if width/s < targetWidth || height/s < targetHeight {
			break
		}
		shrink = s
	}
	return shrink
}
