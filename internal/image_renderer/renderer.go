package image_renderer

import (
	"bytes"
	"fmt"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"slideshow/internal/cache"
	"slideshow/internal/imaging"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// Renderer decodes and resamples images with libvips. Draft renditions use
// JPEG shrink-on-load and a nearest-neighbour kernel; final renditions load
// at full resolution and resample with Lanczos3.
type Renderer struct {
	draftQuality int
	finalQuality int
	logger       *zap.Logger
}

// decodedImage is a vips image after orientation and rotation.
// nativeWidth and nativeHeight are the full-resolution size in the same
// orientation, whatever shrink-on-load did to the pixels.
type decodedImage struct {
	image        *vips.Image
	nativeWidth  int
	nativeHeight int
}

func (d *decodedImage) Width() int  { return d.image.Width() }
func (d *decodedImage) Height() int { return d.image.Height() }
func (d *decodedImage) Close()      { d.image.Close() }

func New(draftQuality, finalQuality int, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		draftQuality: draftQuality,
		finalQuality: finalQuality,
		logger:       logger,
	}
}

func (r *Renderer) Decode(data []byte, key cache.RequestKey, tier cache.QualityTier) (imaging.Image, error) {
	image, nativeWidth, nativeHeight, err := r.loadImage(data, key, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	// EXIF orientation first, then the viewer rotation on top of it
	if err := image.Autorot(nil); err != nil {
		image.Close()
		return nil, fmt.Errorf("failed to apply orientation: %w", err)
	}

	if angle, ok := rotationAngle(key.Rotation); ok {
		if err := image.Rot(angle); err != nil {
			image.Close()
			return nil, fmt.Errorf("failed to rotate: %w", err)
		}
	}

	return &decodedImage{image: image, nativeWidth: nativeWidth, nativeHeight: nativeHeight}, nil
}

func (r *Renderer) Resample(img imaging.Image, key cache.RequestKey, tier cache.QualityTier) (*cache.Entry, error) {
	decoded, ok := img.(*decodedImage)
	if !ok {
		return nil, fmt.Errorf("unexpected image type %T", img)
	}
	image := decoded.image

	width, height := image.Width(), image.Height()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}

	// Sizing is computed from the full-resolution geometry so draft and
	// final renditions of the same key come out the same size.
	originalWidth, originalHeight := decoded.nativeWidth, decoded.nativeHeight
	targetWidth, targetHeight := imaging.TargetSize(originalWidth, originalHeight, key)

	if targetWidth != width || targetHeight != height {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = resizeKernel(tier)
		resizeOpts.Vscale = float64(targetHeight) / float64(height)
		if err := image.Resize(float64(targetWidth)/float64(width), resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = r.finalQuality
	if tier == cache.TierDraft {
		jpegOpts.Q = r.draftQuality
	}
	jpegOpts.Interlace = false

	data, err := image.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	return &cache.Entry{
		Data:           data,
		Format:         "jpeg",
		Width:          image.Width(),
		Height:         image.Height(),
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		Tier:           tier,
	}, nil
}

// loadImage opens the buffer and returns it with the native size as it will
// be displayed, after EXIF orientation and the key's rotation. For draft
// JPEGs it reopens the buffer with the largest shrink-on-load factor that
// still covers the target size.
func (r *Renderer) loadImage(data []byte, key cache.RequestKey, tier cache.QualityTier) (*vips.Image, int, int, error) {
	image, err := vips.NewImageFromBuffer(data, nil)
	if err != nil {
		return nil, 0, 0, err
	}

	width, height := imaging.OrientedSize(image.Width(), image.Height(), image.Orientation())
	width, height = imaging.RotatedSize(width, height, key.Rotation)

	if tier != cache.TierDraft || !bytes.HasPrefix(data, jpegMagic) {
		return image, width, height, nil
	}

	targetWidth, targetHeight := imaging.TargetSize(width, height, key)
	shrink := imaging.DraftShrink(width, height, targetWidth, targetHeight)
	if shrink == 1 {
		return image, width, height, nil
	}
	image.Close()

	opts := vips.DefaultJpegloadBufferOptions()
	opts.Shrink = shrink
	image, err = vips.NewJpegloadBuffer(data, opts)
	if err != nil {
		return nil, 0, 0, err
	}

	r.logger.Debug("Draft shrink-on-load", zap.Stringer("key", key), zap.Int("shrink", shrink))
	return image, width, height, nil
}

// resizeKernel trades quality for speed on drafts
func resizeKernel(tier cache.QualityTier) vips.Kernel {
	if tier == cache.TierDraft {
		return vips.KernelNearest
	}
	return vips.KernelLanczos3
}

func rotationAngle(degrees int) (vips.Angle, bool) {
	switch cache.NormalizeRotation(degrees) {
	case 90:
		return vips.AngleD90, true
	case 180:
		return vips.AngleD180, true
	case 270:
		return vips.AngleD270, true
	default:
		return vips.AngleD0, false
	}
}
