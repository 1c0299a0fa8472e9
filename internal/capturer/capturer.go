// Package capturer produces cropped, JPEG-encoded screen captures on
// demand (spec §4.3). It is grounded on the teacher's StreamProvider
// abstraction (a small interface wrapping a pixel source, satisfied by a
// real implementation and a fake for tests) but adapted from a
// continuous frame channel to a single on-demand operation, since the
// capture source here is the OS display rather than an RTSP camera.
package capturer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	"github.com/postlens/agent/internal/types"
)

const jpegQuality = 85

// DisplaySource abstracts acquiring pixels from the primary display. The
// real implementation wraps github.com/kbinani/screenshot; tests use a
// fake that returns a synthetic image of known size.
type DisplaySource interface {
	// Bounds returns the primary display's logical size.
	Bounds() (image.Rectangle, error)
	// Capture acquires the full-screen pixel source for the given
	// logical bounds. The returned image's actual pixel dimensions may
	// differ from bounds (e.g. on a high-DPI display); the caller
	// reconciles the difference via ThumbScale.
	Capture(bounds image.Rectangle) (*image.RGBA, error)
}

// Capturer implements the capture(rect, dpr) operation of spec §4.3.
type Capturer struct {
	source DisplaySource
}

// New builds a Capturer over the given display source.
func New(source DisplaySource) *Capturer {
	return &Capturer{source: source}
}

// Capture crops the region described by rect (screen-space CSS pixels)
// out of the primary display and returns it JPEG-encoded.
//
// scaleFactor converts CSS pixels to the browser's own device pixels
// (dpr, supplied by the sensor). thumbScale further converts device
// pixels to the acquired image's actual pixel grid, accounting for any
// OS-level display scaling between the logical bounds we asked for and
// the physical pixels we got back. Both are applied, as spec §4.3
// requires, before clamping into the image and failing on non-positive
// area.
func (c *Capturer) Capture(rect types.Rect, dpr float64) (types.FrameArtifact, error) {
	logical, err := c.source.Bounds()
	if err != nil {
		return types.FrameArtifact{}, fmt.Errorf("capturer: no display source available: %w", err)
	}

	img, err := c.source.Capture(logical)
	if err != nil {
		return types.FrameArtifact{}, fmt.Errorf("capturer: capture failed: %w", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return types.FrameArtifact{}, fmt.Errorf("capturer: empty capture")
	}

	thumbScaleX := float64(img.Bounds().Dx()) / float64(logical.Dx())
	thumbScaleY := float64(img.Bounds().Dy()) / float64(logical.Dy())

	cropX := int(math.Round(rect.X * dpr * thumbScaleX))
	cropY := int(math.Round(rect.Y * dpr * thumbScaleY))
	cropW := int(math.Round(rect.W * dpr * thumbScaleX))
	cropH := int(math.Round(rect.H * dpr * thumbScaleY))

	cropRect := clampRect(image.Rect(cropX, cropY, cropX+cropW, cropY+cropH), img.Bounds())
	if cropRect.Dx() <= 0 || cropRect.Dy() <= 0 {
		return types.FrameArtifact{}, fmt.Errorf("capturer: invalid geometry, clamped crop has non-positive area")
	}

	cropped := image.NewRGBA(image.Rect(0, 0, cropRect.Dx(), cropRect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, cropRect.Min, draw.Src)

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, cropped, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return types.FrameArtifact{}, fmt.Errorf("capturer: jpeg encode failed: %w", err)
	}

	return types.FrameArtifact{
		JPEG:   buf.Bytes(),
		Width:  cropRect.Dx(),
		Height: cropRect.Dy(),
	}, nil
}

// clampRect intersects r with bounds, producing a rectangle fully inside
// bounds. If r lies entirely outside bounds the result is empty.
func clampRect(r, bounds image.Rectangle) image.Rectangle {
	return r.Intersect(bounds)
}
