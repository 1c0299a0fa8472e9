// Package cropcoordinator translates sensor location messages into the
// capture rectangles and lifecycle signals the session manager acts on
// (spec §4.2).
package cropcoordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/postlens/agent/internal/config"
	"github.com/postlens/agent/internal/sensorintake"
	"github.com/postlens/agent/internal/types"
)

// SignalKind discriminates the two things a coordinator can tell the
// session manager.
type SignalKind int

const (
	SignalActivePostObserved SignalKind = iota
	SignalActivePostCleared
)

// Signal is what the coordinator emits for every sensor event.
type Signal struct {
	Kind    SignalKind
	Request types.CaptureRequest // valid when Kind == SignalActivePostObserved
}

// Translate applies the policy of spec §4.2 to a single sensor event.
// policy is the operator-editable site allowlist (SPEC_FULL §2.2): a
// location message from a site not on the allowlist is treated the same
// as no active post, so the session never arms for a disallowed site.
//
// The window-offset fields (windowScreenX/windowScreenY) are parsed by
// the sensor package but intentionally not added here: post.X/Y are
// already absolute screen coordinates per the sensor's contract (open
// question resolved in SPEC_FULL §5.2).
func Translate(ev sensorintake.Event, now time.Time, policy config.SitePolicy) Signal {
	if ev.Kind == sensorintake.EventDisconnected {
		return Signal{Kind: SignalActivePostCleared}
	}

	post := ev.Location.Post
	if post == nil {
		return Signal{Kind: SignalActivePostCleared}
	}

	if !policy.Allows(ev.Location.Site) {
		return Signal{Kind: SignalActivePostCleared}
	}

	return Signal{
		Kind: SignalActivePostObserved,
		Request: types.CaptureRequest{
			FullPostID: post.ID,
			Rect:       types.Rect{X: post.X, Y: post.Y, W: post.W, H: post.H},
			DPR:        ev.Location.DPR,
			ObservedAt: now,
			TraceID:    uuid.NewString(),
		},
	}
}
