package types

import "time"

// FrameArtifact is a JPEG-encoded crop of the screen plus the dimensions
// it was clamped to. Produced by the capturer, written to the frames
// directory, consumed by the uploader, retained on disk for the history
// view.
type FrameArtifact struct {
	JPEG   []byte
	Width  int
	Height int
}

// Rect is a screen-space rectangle in CSS pixels. X/Y may be negative:
// the post may be partially off-screen.
type Rect struct {
	X, Y, W, H float64
}

// CaptureRequest is what the crop coordinator hands to a session: enough
// information to crop physical pixels for one post.
type CaptureRequest struct {
	FullPostID string
	Rect       Rect
	DPR        float64
	ObservedAt time.Time
	// TraceID correlates every log line and telemetry event belonging to
	// one observation-to-resolution cycle, mirroring the teacher's
	// Frame.TraceID.
	TraceID string
}
