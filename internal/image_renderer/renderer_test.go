package image_renderer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cshum/vipsgen/vips"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"slideshow/internal/cache"
)

var (
	vipsOnce sync.Once
	vipsErr  error
)

func requireVips(t *testing.T) {
	t.Helper()
	vipsOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				vipsErr = fmt.Errorf("libvips startup: %v", r)
			}
		}()
		vips.Startup(&vips.Config{ConcurrencyLevel: 1})
	})
	if vipsErr != nil {
		t.Skipf("libvips unavailable: %v", vipsErr)
	}
}

// testJPEG encodes a black width x height JPEG, tagged with an EXIF
// orientation when orientation is above 1
func testJPEG(t *testing.T, width, height, orientation int) []byte {
	t.Helper()

	img, err := vips.NewBlack(width, height, nil)
	require.NoError(t, err)
	defer img.Close()

	if orientation > 1 {
		require.NoError(t, img.SetOrientation(orientation))
	}

	data, err := img.JpegsaveBuffer(vips.DefaultJpegsaveBufferOptions())
	require.NoError(t, err)
	return data
}

func render(t *testing.T, r *Renderer, data []byte, key cache.RequestKey, tier cache.QualityTier) (*cache.Entry, int, int) {
	t.Helper()

	img, err := r.Decode(data, key, tier)
	require.NoError(t, err)
	defer img.Close()
	decodedWidth, decodedHeight := img.Width(), img.Height()

	entry, err := r.Resample(img, key, tier)
	require.NoError(t, err)
	return entry, decodedWidth, decodedHeight
}

func TestRenderer_FitModesWithRotation(t *testing.T) {
	requireVips(t)
	r := New(70, 90, zaptest.NewLogger(t))
	data := testJPEG(t, 400, 200, 1)

	tests := []struct {
		mode         cache.FitMode
		wantW, wantH int
	}{
		{cache.FitModeFit, 50, 100},
		{cache.FitModeFill, 100, 200},
		{cache.FitModeOriginal, 200, 400},
		{cache.FitModeMagnify, 400, 800},
	}

	for _, tt := range tests {
		for _, tier := range []cache.QualityTier{cache.TierDraft, cache.TierFinal} {
			t.Run(tt.mode.String()+"/"+tier.String(), func(t *testing.T) {
				key := cache.RequestKey{
					SourceID:       "a.jpg",
					FitMode:        tt.mode,
					Rotation:       90,
					ViewportWidth:  100,
					ViewportHeight: 100,
				}
				entry, _, _ := render(t, r, data, key, tier)

				assert.Equal(t, tt.wantW, entry.Width)
				assert.Equal(t, tt.wantH, entry.Height)
				assert.Equal(t, 200, entry.OriginalWidth)
				assert.Equal(t, 400, entry.OriginalHeight)
				assert.Equal(t, tier, entry.Tier)
				assert.Equal(t, "jpeg", entry.Format)
				assert.Equal(t, jpegMagic, entry.Data[:3])
			})
		}
	}
}

func TestRenderer_DraftShrinksOnLoad(t *testing.T) {
	requireVips(t)
	r := New(70, 90, zaptest.NewLogger(t))
	data := testJPEG(t, 400, 200, 1)
	key := cache.RequestKey{SourceID: "a.jpg", FitMode: cache.FitModeFit, ViewportWidth: 100, ViewportHeight: 100}

	_, w, h := render(t, r, data, key, cache.TierDraft)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)

	_, w, h = render(t, r, data, key, cache.TierFinal)
	assert.Equal(t, 400, w)
	assert.Equal(t, 200, h)
}

func TestRenderer_ExifOrientation(t *testing.T) {
	requireVips(t)
	r := New(70, 90, zaptest.NewLogger(t))
	// Stored landscape, displayed portrait
	data := testJPEG(t, 400, 200, 6)
	key := cache.RequestKey{SourceID: "a.jpg", FitMode: cache.FitModeFill, ViewportWidth: 100, ViewportHeight: 100}

	for _, tier := range []cache.QualityTier{cache.TierDraft, cache.TierFinal} {
		entry, w, h := render(t, r, data, key, tier)
		assert.Equal(t, 100, entry.Width, tier.String())
		assert.Equal(t, 200, entry.Height, tier.String())
		assert.Equal(t, 200, entry.OriginalWidth, tier.String())
		assert.Equal(t, 400, entry.OriginalHeight, tier.String())
		assert.GreaterOrEqual(t, h, entry.Height, "%s decoded below its target", tier)
		assert.GreaterOrEqual(t, w, entry.Width, "%s decoded below its target", tier)
	}
}

func TestRenderer_DraftKeepsNativeSize(t *testing.T) {
	requireVips(t)
	r := New(70, 90, zaptest.NewLogger(t))
	// 1001 / 8 rounds up on load
	data := testJPEG(t, 1001, 501, 1)
	key := cache.RequestKey{SourceID: "a.jpg", FitMode: cache.FitModeFit, ViewportWidth: 100, ViewportHeight: 100}

	draft, w, _ := render(t, r, data, key, cache.TierDraft)
	final, _, _ := render(t, r, data, key, cache.TierFinal)

	assert.Less(t, w, 1001, "draft should shrink on load")
	assert.Equal(t, 1001, draft.OriginalWidth)
	assert.Equal(t, 501, draft.OriginalHeight)
	assert.Equal(t, final.Width, draft.Width)
	assert.Equal(t, final.Height, draft.Height)
}

func TestRenderer_RejectsGarbage(t *testing.T) {
	requireVips(t)
	r := New(70, 90, nil)

	_, err := r.Decode([]byte("not an image"), cache.RequestKey{SourceID: "x"}, cache.TierFinal)
	assert.Error(t, err)
}

func TestResizeKernel(t *testing.T) {
	assert.Equal(t, vips.KernelNearest, resizeKernel(cache.TierDraft))
	assert.Equal(t, vips.KernelLanczos3, resizeKernel(cache.TierFinal))
}
