// Package session implements the per-post state machine of spec §4.4: the
// architectural heart of postlens. A single Manager tracks whichever base
// post id is currently active, driving it through Idle, Arming, Capturing,
// and Resolved, and owns the verdict cache and the detection-enabled flag.
//
// It is grounded on the teacher's Orion task loop
// (References/orion-prototipe/internal/core/orion.go): one goroutine,
// one select statement, channels standing in for every suspension point,
// nil channels standing in for "not currently waiting on this".
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/postlens/agent/internal/config"
	"github.com/postlens/agent/internal/cropcoordinator"
	"github.com/postlens/agent/internal/metrics"
	"github.com/postlens/agent/internal/types"
)

// Capturer crops and JPEG-encodes one frame for the given rect/dpr (spec
// §4.3). Satisfied directly by *capturer.Capturer.
type Capturer interface {
	Capture(rect types.Rect, dpr float64) (types.FrameArtifact, error)
}

// Subscription is a single-verdict push subscription (spec §4.5).
// Satisfied directly by *resultclient.Subscription.
type Subscription interface {
	Results() <-chan types.DetectionVerdict
	Close() error
}

// SubscribeFunc opens a push subscription for a base post id. Wraps
// (*resultclient.Client).Subscribe: its concrete *resultclient.Subscription
// return value converts to the Subscription interface at the call site, so
// no adapter type is needed.
type SubscribeFunc func(ctx context.Context, baseID string) (Subscription, error)

// FrameSink persists a captured frame to the frames directory (spec §6).
// Satisfied directly by *DiskFrameSink.
type FrameSink interface {
	WriteFrame(fullID string, counter int, jpeg []byte) (path string, err error)
}

type state int

const (
	stateIdle state = iota
	stateArming
	stateCapturing
	stateResolved
)

func (s state) String() string {
	switch s {
	case stateArming:
		return "Arming"
	case stateCapturing:
		return "Capturing"
	case stateResolved:
		return "Resolved"
	default:
		return "Idle"
	}
}

// captureOutcome is what a capture goroutine reports back to the state
// machine. Capture itself runs off the state-machine task (spec §5); only
// its outcome crosses back over a channel.
type captureOutcome struct {
	baseID   string
	artifact types.FrameArtifact
	err      error
}

// sess holds the mutable state of whichever base post id is currently
// tracked. A zero-value sess is Idle.
type sess struct {
	state   state
	baseID  string
	fullID  string
	traceID string
	rect    types.Rect
	dpr     float64
	counter int

	observedAt time.Time

	settleTimer    *time.Timer
	ticker         *time.Ticker
	sub            Subscription
	captureResultC chan captureOutcome
	inFlight       bool
}

func (s *sess) settleC() <-chan time.Time {
	if s.settleTimer == nil {
		return nil
	}
	return s.settleTimer.C
}

func (s *sess) captureC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

func (s *sess) resultC() <-chan types.DetectionVerdict {
	if s.sub == nil {
		return nil
	}
	return s.sub.Results()
}

func (s *sess) captureOutC() <-chan captureOutcome {
	return s.captureResultC
}

// teardown cancels the settle timer, stops the capture ticker, and closes
// the subscription, in that fixed order (spec §5 cancellation order), then
// resets to Idle.
func (s *sess) teardown() {
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	s.captureResultC = nil
	s.inFlight = false
	s.state = stateIdle
	s.baseID = ""
	s.fullID = ""
	s.traceID = ""
	s.counter = 0
}

// Manager is the session state machine. Exactly one instance runs for the
// agent's lifetime.
type Manager struct {
	cfg       config.CaptureConfig
	capturer  Capturer
	subscribe SubscribeFunc
	sink      FrameSink
	cache     *Cache
	overlay   chan<- types.OverlayCommand
	notify    func(Event)

	mu         sync.Mutex
	enabled    bool
	lastFullID string
	lastJPEG   []byte
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithNotifier registers a callback invoked on every state transition,
// feeding session telemetry (SPEC_FULL §3/§4). Unset by default.
func WithNotifier(fn func(Event)) Option {
	return func(m *Manager) { m.notify = fn }
}

// New builds a session Manager with detection enabled by default.
func New(cfg config.CaptureConfig, capturer Capturer, subscribe SubscribeFunc, sink FrameSink, overlay chan<- types.OverlayCommand, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		capturer:  capturer,
		subscribe: subscribe,
		sink:      sink,
		cache:     NewCache(cfg.VerdictCacheTTL),
		overlay:   overlay,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetEnabled toggles the master detection switch outside of Run's loop
// (e.g. directly from tests). Prefer sending a Command through Run's
// commands channel when the loop is already running.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

func (m *Manager) isEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Run is the session's single event loop (spec §5): one goroutine,
// selecting over location signals, commands, the settle timer, the capture
// ticker, and the active subscription's result channel. It returns when
// ctx is cancelled or either channel closes.
func (m *Manager) Run(ctx context.Context, signals <-chan cropcoordinator.Signal, commands <-chan Command) {
	var cur sess
	defer cur.teardown()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd, ok := <-commands:
			if !ok {
				return
			}
			m.handleCommand(&cur, cmd)

		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.handleSignal(ctx, &cur, sig)

		case <-cur.settleC():
			m.handleSettle(&cur)

		case <-cur.captureC():
			m.handleCaptureTick(&cur)

		case res, ok := <-cur.captureOutC():
			if ok {
				m.handleCaptureResult(&cur, res)
			}

		case verdict, ok := <-cur.resultC():
			if ok {
				m.handleResult(&cur, verdict)
			}
			// A subscription closing without a value leaves the session in
			// Capturing; it keeps producing frames until teardown (§4.5).
		}
	}
}

func (m *Manager) handleCommand(cur *sess, cmd Command) {
	switch cmd.Kind {
	case CommandSetEnabled:
		m.SetEnabled(cmd.Enabled)
		if !cmd.Enabled && cur.state != stateIdle {
			m.emit(Event{Kind: EventTornDown, BaseID: cur.baseID})
			cur.teardown()
			m.sendOverlay(types.HideCommand())
		}
	}
}

func (m *Manager) handleSignal(ctx context.Context, cur *sess, sig cropcoordinator.Signal) {
	if sig.Kind == cropcoordinator.SignalActivePostCleared {
		if cur.state != stateIdle {
			m.emit(Event{Kind: EventTornDown, BaseID: cur.baseID})
		}
		cur.teardown()
		m.sendOverlay(types.HideCommand())
		return
	}

	req := sig.Request
	baseID, err := types.BasePostID(req.FullPostID)
	if err != nil {
		slog.Warn("session: location event with unparseable post id dropped", "post_id", req.FullPostID, "error", err)
		return
	}

	if cur.state != stateIdle && cur.baseID == baseID {
		return // same post re-observed, nothing changes
	}

	if cur.state != stateIdle {
		m.emit(Event{Kind: EventTornDown, BaseID: cur.baseID})
		cur.teardown()
	}

	if !m.isEnabled() {
		m.sendOverlay(types.HideCommand())
		return
	}

	cur.baseID = baseID
	cur.fullID = req.FullPostID
	cur.traceID = req.TraceID
	cur.rect = req.Rect
	cur.dpr = req.DPR
	cur.observedAt = time.Now()

	// Cache short-circuit: a live, non-Analyzing verdict for this base id
	// goes straight to Resolved (spec §4.4 cache semantics).
	if verdict, ok := m.cache.Get(baseID, time.Now()); ok {
		cur.state = stateResolved
		m.emit(Event{Kind: EventResolved, BaseID: baseID, Verdict: &verdict})
		m.sendOverlay(types.ShowCommand(overlayState(cur, verdict.Label, verdict.Confidence)))
		return
	}

	m.arm(ctx, cur)
}

func (m *Manager) arm(ctx context.Context, cur *sess) {
	cur.state = stateArming
	m.emit(Event{Kind: EventArmed, BaseID: cur.baseID})
	m.sendOverlay(types.ShowCommand(overlayState(cur, types.LabelAnalyzing, 0)))
	slog.Debug("session: armed", "post_id", cur.baseID, "trace_id", cur.traceID)

	sub, err := m.subscribe(ctx, cur.baseID)
	if err != nil {
		slog.Warn("session: failed to open result subscription", "post_id", cur.baseID, "trace_id", cur.traceID, "error", err)
	} else {
		cur.sub = sub
	}

	cur.settleTimer = time.NewTimer(m.cfg.SettleDelay)
}

func (m *Manager) handleSettle(cur *sess) {
	if cur.state != stateArming {
		return
	}
	cur.settleTimer = nil
	cur.counter = 0
	cur.captureResultC = make(chan captureOutcome, 1)
	cur.state = stateCapturing
	m.emit(Event{Kind: EventCapturing, BaseID: cur.baseID})

	m.triggerCapture(cur)
	cur.ticker = time.NewTicker(m.cfg.CaptureInterval)
}

func (m *Manager) handleCaptureTick(cur *sess) {
	if cur.state != stateCapturing {
		return
	}
	if verdict, ok := m.cache.Get(cur.baseID, time.Now()); ok {
		m.resolve(cur, verdict)
		return
	}
	m.triggerCapture(cur)
}

// triggerCapture runs one capture off the state-machine task (spec §5). The
// capture timer never overlaps work: a capture already in flight causes
// this tick to be skipped rather than queued (spec §5 backpressure).
func (m *Manager) triggerCapture(cur *sess) {
	if cur.inFlight {
		return
	}
	cur.inFlight = true

	baseID, rect, dpr := cur.baseID, cur.rect, cur.dpr
	resultC := cur.captureResultC
	go func() {
		artifact, err := m.capturer.Capture(rect, dpr)
		resultC <- captureOutcome{baseID: baseID, artifact: artifact, err: err}
	}()
}

func (m *Manager) handleCaptureResult(cur *sess, res captureOutcome) {
	cur.inFlight = false

	// The active post may have changed while the capture was in flight;
	// the completed JPEG is discarded in that case (spec §5).
	if cur.state != stateCapturing || cur.baseID != res.baseID {
		return
	}
	if res.err != nil {
		metrics.FramesCaptured.WithLabelValues("error").Inc()
		slog.Warn("session: capture failed, retrying next tick", "post_id", res.baseID, "error", res.err)
		return
	}

	cur.counter++
	if _, err := m.sink.WriteFrame(cur.fullID, cur.counter, res.artifact.JPEG); err != nil {
		metrics.FramesCaptured.WithLabelValues("error").Inc()
		slog.Warn("session: failed to write frame", "post_id", res.baseID, "error", err)
		return
	}
	m.setLastCapture(cur.fullID, res.artifact.JPEG)
	metrics.FramesCaptured.WithLabelValues("ok").Inc()
}

func (m *Manager) setLastCapture(fullID string, jpeg []byte) {
	m.mu.Lock()
	m.lastFullID = fullID
	m.lastJPEG = jpeg
	m.mu.Unlock()
}

// SaveDebugFrame writes the most recently captured frame buffer into dir
// under the debug hotkey's filename convention (spec §4.10). Returns an
// error if no frame has been captured yet this run.
func (m *Manager) SaveDebugFrame(dir string) (string, error) {
	m.mu.Lock()
	fullID, jpeg := m.lastFullID, m.lastJPEG
	m.mu.Unlock()

	if fullID == "" {
		return "", fmt.Errorf("session: no capture buffer available yet")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("session: failed to create debug directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("debug_%s_%d.jpg", fullID, time.Now().UnixMilli())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("session: failed to write debug frame %s: %w", name, err)
	}
	return path, nil
}

func (m *Manager) handleResult(cur *sess, verdict types.DetectionVerdict) {
	if verdict.PostID != cur.baseID {
		return
	}
	m.cache.Put(cur.baseID, verdict, time.Now())
	if cur.state == stateArming || cur.state == stateCapturing {
		m.resolve(cur, verdict)
	}
}

func (m *Manager) resolve(cur *sess, verdict types.DetectionVerdict) {
	if cur.settleTimer != nil {
		cur.settleTimer.Stop()
		cur.settleTimer = nil
	}
	if cur.ticker != nil {
		cur.ticker.Stop()
		cur.ticker = nil
	}
	if cur.sub != nil {
		_ = cur.sub.Close()
		cur.sub = nil
	}
	cur.state = stateResolved
	metrics.VerdictsReceived.WithLabelValues(string(verdict.Label)).Inc()
	if !cur.observedAt.IsZero() {
		metrics.SessionDuration.Observe(time.Since(cur.observedAt).Seconds())
	}
	slog.Debug("session: resolved", "post_id", cur.baseID, "trace_id", cur.traceID, "label", verdict.Label)
	m.emit(Event{Kind: EventResolved, BaseID: cur.baseID, Verdict: &verdict})
	m.sendOverlay(types.ShowCommand(overlayState(cur, verdict.Label, verdict.Confidence)))
}

func (m *Manager) sendOverlay(cmd types.OverlayCommand) {
	if m.overlay == nil {
		return
	}
	select {
	case m.overlay <- cmd:
	default:
		slog.Warn("session: overlay command dropped, channel full")
	}
}

func (m *Manager) emit(ev Event) {
	if m.notify != nil {
		m.notify(ev)
	}
}

func overlayState(cur *sess, label types.Label, score float64) types.OverlayState {
	return types.OverlayState{
		Visible: true,
		X:       cur.rect.X,
		Y:       cur.rect.Y,
		W:       cur.rect.W,
		H:       cur.rect.H,
		Label:   label,
		Score:   score,
		PostID:  cur.baseID,
	}
}
