// Package uploader implements the frame batcher of spec §4.6: it watches
// the frames directory, groups newly written JPEGs by base post id, and
// POSTs each base id's first full batch to the classifier exactly once.
//
// It is grounded on the teacher's framebus/framesupplier component
// (modules/framesupplier), which plays the analogous "watch an external
// source, group, and hand off work" role for camera frame ingestion, but
// swaps the teacher's channel-fed supplier for an fsnotify-driven directory
// watcher since the frames arrive on disk rather than over a bus.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/postlens/agent/internal/metrics"
	"github.com/postlens/agent/internal/types"
)

// AnalyzeClient is the subset of the classifier client the uploader needs.
// Satisfied directly by *classifier.Client.
type AnalyzeClient interface {
	Analyze(ctx context.Context, baseID string, frames [][]byte) error
}

// Uploader watches dir for newly written frames and batches them per base
// post id, enforcing at-most-once submission via the Ledger.
type Uploader struct {
	dir       string
	batchSize int
	debounce  time.Duration
	client    AnalyzeClient
	ledger    *Ledger

	mu      sync.Mutex
	queues  map[string][]string    // baseID -> pending frame paths, oldest first
	pending map[string]*time.Timer // path -> debounce timer, collapses duplicate fs events
}

// New builds an Uploader. batchSize and debounce come from
// config.CaptureConfig (spec §9 open question 1: fixed at 4 per
// SPEC_FULL §5).
func New(dir string, batchSize int, debounce time.Duration, client AnalyzeClient) *Uploader {
	return &Uploader{
		dir:       dir,
		batchSize: batchSize,
		debounce:  debounce,
		client:    client,
		ledger:    NewLedger(),
		queues:    make(map[string][]string),
		pending:   make(map[string]*time.Timer),
	}
}

// Run watches the frames directory until ctx is cancelled. A watcher setup
// failure is fatal to the uploader task alone, per spec §7 — it is logged
// and Run returns; the rest of the agent keeps running off cached verdicts.
func (u *Uploader) Run(ctx context.Context) error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return fmt.Errorf("uploader: failed to create frames directory %s: %w", u.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("uploader: failed to start directory watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(u.dir); err != nil {
		return fmt.Errorf("uploader: failed to watch %s: %w", u.dir, err)
	}

	slog.Info("uploader watching frames directory", "dir", u.dir)

	for {
		select {
		case <-ctx.Done():
			u.cancelPendingTimers()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("uploader: watcher event channel closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			u.debounceFile(ctx, ev.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("uploader: watcher error channel closed")
			}
			slog.Error("uploader: directory watcher failure", "error", err)
			return fmt.Errorf("uploader: watcher failed: %w", err)
		}
	}
}

// debounceFile collapses duplicate filesystem notifications for the same
// path into a single handleNewFile call, per spec §4.6's ≤150ms debounce.
func (u *Uploader) debounceFile(ctx context.Context, path string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if t, ok := u.pending[path]; ok {
		t.Reset(u.debounce)
		return
	}
	u.pending[path] = time.AfterFunc(u.debounce, func() {
		u.mu.Lock()
		delete(u.pending, path)
		u.mu.Unlock()
		u.handleNewFile(ctx, path)
	})
}

func (u *Uploader) cancelPendingTimers() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for path, t := range u.pending {
		t.Stop()
		delete(u.pending, path)
	}
}

// handleNewFile enqueues path under its base post id and, once the queue
// reaches batchSize, submits and marks the ledger — exactly once per base
// id, per spec §4.6.
func (u *Uploader) handleNewFile(ctx context.Context, path string) {
	baseID, err := types.ParseBaseIDFromFilename(path)
	if err != nil {
		slog.Warn("uploader: frame filename does not match convention, dropped", "path", path, "error", err)
		return
	}

	if u.ledger.IsSubmitted(baseID) {
		return
	}

	u.mu.Lock()
	u.queues[baseID] = append(u.queues[baseID], path)
	var batch []string
	if len(u.queues[baseID]) >= u.batchSize {
		batch = u.queues[baseID][:u.batchSize]
		u.queues[baseID] = nil
		u.ledger.MarkSubmitted(baseID)
	}
	u.mu.Unlock()

	if batch == nil {
		return
	}

	go u.submit(ctx, baseID, batch)
}

func (u *Uploader) submit(ctx context.Context, baseID string, paths []string) {
	frames := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("uploader: failed to read queued frame, batch incomplete", "path", p, "error", err)
			continue
		}
		frames = append(frames, data)
	}
	if len(frames) == 0 {
		metrics.BatchesUploaded.WithLabelValues("error").Inc()
		slog.Warn("uploader: batch had no readable frames, nothing submitted", "post_id", baseID)
		return
	}

	// Connection failures are logged and do not alter the ledger: within a
	// run, a failed submission is not retried (spec §4.6, §7).
	if err := u.client.Analyze(ctx, baseID, frames); err != nil {
		metrics.BatchesUploaded.WithLabelValues("error").Inc()
		slog.Error("uploader: batch submission failed, not retried this run", "post_id", baseID, "error", err)
		return
	}
	metrics.BatchesUploaded.WithLabelValues("ok").Inc()
	slog.Info("uploader: batch submitted", "post_id", baseID, "frames", len(frames))
}
