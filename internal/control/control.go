// Package control implements the application window of spec §4.8: a
// detection-enabled switch, a polled verdict listing, per-entry Explain,
// and a frames-directory display with manual reload. It shares no mutable
// state with the overlay — both receive commands through their own
// channel, and this surface only ever writes into the session Manager's
// via session.Command.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	webview "github.com/webview/webview_go"

	"github.com/postlens/agent/internal/education"
	"github.com/postlens/agent/internal/session"
	"github.com/postlens/agent/internal/types"
)

// VerdictClient is the subset of the classifier client the control
// surface needs. Satisfied directly by *classifier.Client.
type VerdictClient interface {
	GetVerdict(ctx context.Context, baseID string) (types.DetectionVerdict, bool, error)
	Health(ctx context.Context) error
}

// Entry is one row of the control surface's listing: a base post id with
// at least one stored frame, plus its verdict if the classifier has one.
type Entry struct {
	BaseID  string                  `json:"baseId"`
	Verdict *types.DetectionVerdict `json:"verdict,omitempty"`
}

// Surface owns the native control window for the process lifetime.
type Surface struct {
	framesDir    string
	pollInterval time.Duration
	client       VerdictClient
	educator     *education.Fetcher
	sessionCmds  chan<- session.Command

	w       webview.WebView
	enabled bool
}

// New builds a control Surface. sessionCmds carries the detection-enabled
// toggle to the session Manager, which owns the flag (spec §9).
func New(framesDir string, pollInterval time.Duration, client VerdictClient, educator *education.Fetcher, sessionCmds chan<- session.Command) *Surface {
	return &Surface{
		framesDir:    framesDir,
		pollInterval: pollInterval,
		client:       client,
		educator:     educator,
		sessionCmds:  sessionCmds,
		enabled:      true,
	}
}

// Run creates the native window and blocks until it closes or ctx is
// cancelled.
func (s *Surface) Run(ctx context.Context) error {
	s.w = webview.New(false)
	defer s.w.Destroy()

	s.w.SetTitle("postlens control")
	s.w.SetSize(480, 640, webview.HintNone)
	s.w.Navigate("data:text/html," + controlHTML)

	s.w.Bind("setEnabled", func(enabled bool) {
		s.enabled = enabled
		s.sessionCmds <- session.Command{Kind: session.CommandSetEnabled, Enabled: enabled}
	})
	s.w.Bind("explain", func(baseID string) {
		go s.handleExplain(baseID)
	})
	s.w.Bind("reload", func() {
		s.refresh(context.Background())
	})

	go s.pollLoop(ctx)

	s.w.Run()
	return nil
}

func (s *Surface) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			if s.w != nil {
				s.w.Terminate()
			}
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

type refreshPayload struct {
	Entries      []Entry `json:"entries"`
	FramesDir    string  `json:"framesDir"`
	ClassifierUp bool    `json:"classifierUp"`
	Enabled      bool    `json:"enabled"`
}

func (s *Surface) refresh(ctx context.Context) {
	entries, err := s.listEntries(ctx)
	if err != nil {
		slog.Warn("control: failed to list frames directory", "dir", s.framesDir, "error", err)
		entries = nil
	}

	classifierUp := s.client.Health(ctx) == nil

	payload, err := json.Marshal(refreshPayload{
		Entries:      entries,
		FramesDir:    s.framesDir,
		ClassifierUp: classifierUp,
		Enabled:      s.enabled,
	})
	if err != nil {
		slog.Error("control: failed to marshal refresh payload", "error", err)
		return
	}

	if s.w == nil {
		return // under test
	}
	script := fmt.Sprintf("window.__postlensRefresh(%s)", payload)
	s.w.Dispatch(func() {
		_ = s.w.Eval(script)
	})
}

// listEntries scans the frames directory for distinct base post ids and
// attaches each one's verdict if the classifier has resolved it.
func (s *Surface) listEntries(ctx context.Context) ([]Entry, error) {
	files, err := os.ReadDir(s.framesDir)
	if err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}

	seen := make(map[string]bool)
	var entries []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		baseID, err := types.ParseBaseIDFromFilename(f.Name())
		if err != nil || seen[baseID] {
			continue
		}
		seen[baseID] = true

		entry := Entry{BaseID: baseID}
		if verdict, ok, err := s.client.GetVerdict(ctx, baseID); err == nil && ok {
			entry.Verdict = &verdict
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Surface) handleExplain(baseID string) {
	ed, err := s.educator.Fetch(context.Background(), baseID)
	if err != nil {
		slog.Warn("control: explain request failed", "post_id", baseID, "error", err)
		return
	}
	payload, err := json.Marshal(ed)
	if err != nil {
		slog.Error("control: failed to marshal education payload", "error", err)
		return
	}
	if s.w == nil {
		return
	}
	script := fmt.Sprintf("window.__postlensShowEducation(%s)", payload)
	s.w.Dispatch(func() {
		_ = s.w.Eval(script)
	})
}

const controlHTML = `<!doctype html><html><body>
<h3>postlens</h3>
<label><input type="checkbox" checked onchange="setEnabled(this.checked)"> detection enabled</label>
<div id="framesDir"></div>
<ul id="entries"></ul>
<button onclick="reload()">reload</button>
<script>
window.__postlensRefresh = function(payload) {
  document.getElementById('framesDir').innerText = payload.framesDir + (payload.classifierUp ? '' : ' (classifier unreachable)');
  var list = document.getElementById('entries');
  list.innerHTML = '';
  payload.entries.forEach(function(e) {
    var li = document.createElement('li');
    li.innerText = e.baseId + ': ' + (e.verdict ? e.verdict.label : 'Analyzing…');
    var btn = document.createElement('button');
    btn.innerText = 'Explain';
    btn.onclick = function() { explain(e.baseId); };
    li.appendChild(btn);
    list.appendChild(li);
  });
};
window.__postlensShowEducation = function(ed) {
  console.log('education', ed);
};
</script>
</body></html>`
