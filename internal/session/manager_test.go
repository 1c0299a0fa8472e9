package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/postlens/agent/internal/config"
	"github.com/postlens/agent/internal/cropcoordinator"
	"github.com/postlens/agent/internal/types"
)

type fakeCapturer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCapturer) Capture(rect types.Rect, dpr float64) (types.FrameArtifact, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return types.FrameArtifact{}, f.err
	}
	return types.FrameArtifact{JPEG: []byte("jpeg"), Width: 10, Height: 10}, nil
}

func (f *fakeCapturer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSubscription struct {
	results chan types.DetectionVerdict

	mu     sync.Mutex
	closed bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{results: make(chan types.DetectionVerdict, 1)}
}

func (s *fakeSubscription) Results() <-chan types.DetectionVerdict { return s.results }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeSink struct {
	mu    sync.Mutex
	count map[string]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{count: make(map[string]int)}
}

func (f *fakeSink) WriteFrame(fullID string, counter int, jpeg []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base, _ := types.BasePostID(fullID)
	f.count[base]++
	return fullID, nil
}

func (f *fakeSink) framesFor(baseID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[baseID]
}

func testConfig() config.CaptureConfig {
	return config.CaptureConfig{
		SettleDelay:     20 * time.Millisecond,
		CaptureInterval: 15 * time.Millisecond,
		VerdictCacheTTL: 5 * time.Second,
		BatchSize:       4,
	}
}

func observedSignal(fullID string, rect types.Rect, dpr float64) cropcoordinator.Signal {
	return cropcoordinator.Signal{
		Kind: cropcoordinator.SignalActivePostObserved,
		Request: types.CaptureRequest{
			FullPostID: fullID,
			Rect:       rect,
			DPR:        dpr,
			ObservedAt: time.Now(),
		},
	}
}

func waitForOverlay(t *testing.T, overlay <-chan types.OverlayCommand, want func(types.OverlayCommand) bool, timeout time.Duration) types.OverlayCommand {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case cmd := <-overlay:
			if want(cmd) {
				return cmd
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected overlay command")
		}
	}
}

func TestManager_CleanAIVerdict(t *testing.T) {
	capturer := &fakeCapturer{}
	sink := newFakeSink()
	subs := make(chan *fakeSubscription, 1)

	subscribe := func(ctx context.Context, baseID string) (Subscription, error) {
		sub := newFakeSubscription()
		subs <- sub
		return sub, nil
	}

	overlay := make(chan types.OverlayCommand, 16)
	mgr := New(testConfig(), capturer, subscribe, sink, overlay)

	signals := make(chan cropcoordinator.Signal, 4)
	commands := make(chan Command, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mgr.Run(ctx, signals, commands)

	signals <- observedSignal("post_1_1000", types.Rect{X: 100, Y: 100, W: 400, H: 800}, 2)

	waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayShow && c.State.Label == types.LabelAnalyzing
	}, time.Second)

	var sub *fakeSubscription
	select {
	case sub = <-subs:
	case <-time.After(time.Second):
		t.Fatal("subscribe was never called")
	}

	// The classifier only answers after frames were captured and uploaded,
	// so the verdict is pushed once the first frame has been written.
	deadline := time.After(time.Second)
	for sink.framesFor("post_1") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a frame to be captured")
		case <-time.After(5 * time.Millisecond):
		}
	}

	verdict := types.NewVerdict("post_1", true, 0.92, types.SeverityHigh, []string{"synthetic texture"})
	sub.results <- verdict

	shown := waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayShow && c.State.Label == types.LabelLikelyAI
	}, time.Second)

	if shown.State.X != 100 || shown.State.W != 400 {
		t.Errorf("overlay rect = %+v, want anchored at the post's rect", shown.State)
	}
	if shown.State.Score != 0.92 {
		t.Errorf("score = %v, want 0.92", shown.State.Score)
	}

	time.Sleep(30 * time.Millisecond) // let any stray ticks settle
	if capturer.callCount() == 0 {
		t.Error("expected at least one capture before resolution")
	}
	if sink.framesFor("post_1") == 0 {
		t.Error("expected at least one frame written for post_1")
	}
	if !sub.isClosed() {
		t.Error("expected subscription to be closed after resolving")
	}
}

func TestManager_QuickScrollAway(t *testing.T) {
	capturer := &fakeCapturer{}
	sink := newFakeSink()
	subsByID := make(map[string]*fakeSubscription)
	var subsMu sync.Mutex

	subscribe := func(ctx context.Context, baseID string) (Subscription, error) {
		sub := newFakeSubscription()
		subsMu.Lock()
		subsByID[baseID] = sub
		subsMu.Unlock()
		return sub, nil
	}

	cfg := testConfig()
	cfg.SettleDelay = 100 * time.Millisecond // long settle so the scroll beats it

	overlay := make(chan types.OverlayCommand, 16)
	mgr := New(cfg, capturer, subscribe, sink, overlay)

	signals := make(chan cropcoordinator.Signal, 4)
	commands := make(chan Command, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mgr.Run(ctx, signals, commands)

	signals <- observedSignal("post_1_1000", types.Rect{X: 0, Y: 0, W: 100, H: 100}, 1)
	waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayShow && c.State.PostID == "post_1"
	}, time.Second)

	time.Sleep(20 * time.Millisecond) // well within the 100ms settle delay
	signals <- observedSignal("post_2_2000", types.Rect{X: 10, Y: 10, W: 50, H: 50}, 1)

	waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayShow && c.State.PostID == "post_2" && c.State.Label == types.LabelAnalyzing
	}, time.Second)

	time.Sleep(150 * time.Millisecond) // past what would have been post_1's settle

	if sink.framesFor("post_1") != 0 {
		t.Errorf("expected zero frames written for post_1, got %d", sink.framesFor("post_1"))
	}

	subsMu.Lock()
	sub1 := subsByID["post_1"]
	subsMu.Unlock()
	if sub1 == nil || !sub1.isClosed() {
		t.Error("expected the post_1 subscription to be closed")
	}
}

func TestManager_ReentryWithinTTL(t *testing.T) {
	capturer := &fakeCapturer{}
	sink := newFakeSink()
	subscribeCalls := 0
	var mu sync.Mutex

	subscribe := func(ctx context.Context, baseID string) (Subscription, error) {
		mu.Lock()
		subscribeCalls++
		mu.Unlock()
		return newFakeSubscription(), nil
	}

	overlay := make(chan types.OverlayCommand, 16)
	mgr := New(testConfig(), capturer, subscribe, sink, overlay)

	// Seed the cache directly, simulating a verdict received moments ago.
	mgr.cache.Put("post_3", types.NewVerdict("post_3", false, 0.91, types.SeverityLow, nil), time.Now())

	signals := make(chan cropcoordinator.Signal, 4)
	commands := make(chan Command, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mgr.Run(ctx, signals, commands)

	signals <- observedSignal("post_3_3000", types.Rect{X: 0, Y: 0, W: 10, H: 10}, 1)

	shown := waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayShow && c.State.PostID == "post_3"
	}, time.Second)

	if shown.State.Label != types.LabelLikelyReal {
		t.Errorf("label = %q, want cached Likely Real rendered immediately", shown.State.Label)
	}

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	calls := subscribeCalls
	mu.Unlock()
	if calls != 0 {
		t.Errorf("subscribe called %d times, want 0 on a cache hit", calls)
	}
	if sink.framesFor("post_3") != 0 {
		t.Errorf("expected zero frames written on a cache hit, got %d", sink.framesFor("post_3"))
	}
}

func TestManager_DisconnectTearsDownActiveSession(t *testing.T) {
	capturer := &fakeCapturer{}
	sink := newFakeSink()
	sub := newFakeSubscription()

	subscribe := func(ctx context.Context, baseID string) (Subscription, error) {
		return sub, nil
	}

	overlay := make(chan types.OverlayCommand, 16)
	mgr := New(testConfig(), capturer, subscribe, sink, overlay)

	signals := make(chan cropcoordinator.Signal, 4)
	commands := make(chan Command, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mgr.Run(ctx, signals, commands)

	signals <- observedSignal("post_4_4000", types.Rect{X: 0, Y: 0, W: 10, H: 10}, 1)
	waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayShow && c.State.PostID == "post_4"
	}, time.Second)

	signals <- cropcoordinator.Signal{Kind: cropcoordinator.SignalActivePostCleared}

	waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayHide
	}, time.Second)

	time.Sleep(10 * time.Millisecond)
	if !sub.isClosed() {
		t.Error("expected subscription to be closed on teardown")
	}
}

func TestManager_SaveDebugFrame_NoCaptureYet(t *testing.T) {
	mgr := New(testConfig(), &fakeCapturer{}, func(ctx context.Context, baseID string) (Subscription, error) {
		return newFakeSubscription(), nil
	}, newFakeSink(), make(chan types.OverlayCommand, 1))

	if _, err := mgr.SaveDebugFrame(t.TempDir()); err == nil {
		t.Error("expected an error when no frame has been captured yet")
	}
}

func TestManager_SaveDebugFrame_WritesLatestCapture(t *testing.T) {
	capturer := &fakeCapturer{}
	sink := newFakeSink()
	subscribe := func(ctx context.Context, baseID string) (Subscription, error) {
		return newFakeSubscription(), nil
	}

	overlay := make(chan types.OverlayCommand, 16)
	mgr := New(testConfig(), capturer, subscribe, sink, overlay)

	signals := make(chan cropcoordinator.Signal, 4)
	commands := make(chan Command, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mgr.Run(ctx, signals, commands)

	signals <- observedSignal("post_6_6000", types.Rect{X: 0, Y: 0, W: 10, H: 10}, 1)
	waitForOverlay(t, overlay, func(c types.OverlayCommand) bool {
		return c.Kind == types.OverlayShow && c.State.PostID == "post_6"
	}, time.Second)

	deadline := time.After(time.Second)
	for sink.framesFor("post_6") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a frame to be captured")
		case <-time.After(5 * time.Millisecond):
		}
	}

	dir := t.TempDir()
	path, err := mgr.SaveDebugFrame(dir)
	if err != nil {
		t.Fatalf("SaveDebugFrame: unexpected error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path = %q, want under %q", path, dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "jpeg" {
		t.Errorf("debug frame contents = %q, want %q", data, "jpeg")
	}
}
