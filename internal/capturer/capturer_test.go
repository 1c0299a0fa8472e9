package capturer

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/postlens/agent/internal/types"
)

// fakeSource returns a synthetic image of a fixed size, optionally
// scaled relative to the logical bounds it reports, to exercise the
// thumbScale reconciliation path.
type fakeSource struct {
	logical    image.Rectangle
	pixelScale int // acquired image is logical size * pixelScale
	failBounds bool
	failCapture bool
	empty      bool
}

func (f *fakeSource) Bounds() (image.Rectangle, error) {
	if f.failBounds {
		return image.Rectangle{}, fmt.Errorf("no display")
	}
	return f.logical, nil
}

func (f *fakeSource) Capture(bounds image.Rectangle) (*image.RGBA, error) {
	if f.failCapture {
		return nil, fmt.Errorf("capture unavailable")
	}
	scale := f.pixelScale
	if scale == 0 {
		scale = 1
	}
	w, h := bounds.Dx()*scale, bounds.Dy()*scale
	if f.empty {
		w, h = 0, 0
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0, A: 255})
		}
	}
	return img, nil
}

func TestCapture_BasicCrop(t *testing.T) {
	src := &fakeSource{logical: image.Rect(0, 0, 1000, 800), pixelScale: 1}
	c := New(src)

	artifact, err := c.Capture(types.Rect{X: 100, Y: 100, W: 200, H: 150}, 1.0)
	if err != nil {
		t.Fatalf("Capture: unexpected error: %v", err)
	}
	if artifact.Width != 200 || artifact.Height != 150 {
		t.Errorf("got %dx%d, want 200x150", artifact.Width, artifact.Height)
	}
	if len(artifact.JPEG) == 0 {
		t.Error("expected non-empty JPEG")
	}
}

func TestCapture_AppliesDPRAndThumbScale(t *testing.T) {
	// Logical 1000x800, but the acquired image is 2x that (retina-like),
	// and dpr is itself 2 (browser-observed device pixel ratio).
	src := &fakeSource{logical: image.Rect(0, 0, 1000, 800), pixelScale: 2}
	c := New(src)

	artifact, err := c.Capture(types.Rect{X: 10, Y: 10, W: 50, H: 50}, 2.0)
	if err != nil {
		t.Fatalf("Capture: unexpected error: %v", err)
	}
	// 50 * dpr(2) * thumbScale(2) = 200
	if artifact.Width != 200 || artifact.Height != 200 {
		t.Errorf("got %dx%d, want 200x200", artifact.Width, artifact.Height)
	}
}

func TestCapture_NegativeOriginClampsToPositiveArea(t *testing.T) {
	src := &fakeSource{logical: image.Rect(0, 0, 1000, 800), pixelScale: 1}
	c := New(src)

	// Post partially off-screen to the left: most of it is still visible.
	artifact, err := c.Capture(types.Rect{X: -50, Y: 0, W: 200, H: 100}, 1.0)
	if err != nil {
		t.Fatalf("Capture: unexpected error: %v", err)
	}
	if artifact.Width <= 0 || artifact.Height <= 0 {
		t.Fatalf("expected positive area, got %dx%d", artifact.Width, artifact.Height)
	}
	if artifact.Width > 150 {
		t.Errorf("expected crop to clamp to the visible 150px, got %d", artifact.Width)
	}
}

func TestCapture_EntirelyOffScreenFailsCleanly(t *testing.T) {
	src := &fakeSource{logical: image.Rect(0, 0, 1000, 800), pixelScale: 1}
	c := New(src)

	_, err := c.Capture(types.Rect{X: -500, Y: -500, W: 100, H: 100}, 1.0)
	if err == nil {
		t.Fatal("expected error for fully off-screen rect")
	}
}

func TestCapture_NoDisplaySource(t *testing.T) {
	src := &fakeSource{failBounds: true}
	c := New(src)
	if _, err := c.Capture(types.Rect{W: 10, H: 10}, 1.0); err == nil {
		t.Fatal("expected error when display source unavailable")
	}
}

func TestCapture_EmptyCapture(t *testing.T) {
	src := &fakeSource{logical: image.Rect(0, 0, 1000, 800), empty: true}
	c := New(src)
	if _, err := c.Capture(types.Rect{X: 0, Y: 0, W: 10, H: 10}, 1.0); err == nil {
		t.Fatal("expected error for empty capture")
	}
}
