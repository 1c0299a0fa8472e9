// Package agent wires every postlens component into one orchestrator,
// the daemon's single Run/Shutdown entry point for cmd/postlensd. It is
// grounded on the teacher's Orion orchestrator
// (References/orion-prototipe/internal/core/orion.go): the same
// mu/wg/isRunning lifecycle bookkeeping, the same ordered Shutdown, the
// same "start each component in its own goroutine, wait on ctx.Done()"
// Run shape, generalized from Orion's stream/frameBus/workers/emitter
// wiring to postlens's sensor/session/uploader/overlay/control/telemetry
// wiring.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postlens/agent/internal/capturer"
	"github.com/postlens/agent/internal/classifier"
	"github.com/postlens/agent/internal/config"
	"github.com/postlens/agent/internal/control"
	"github.com/postlens/agent/internal/cropcoordinator"
	"github.com/postlens/agent/internal/education"
	"github.com/postlens/agent/internal/healthsrv"
	"github.com/postlens/agent/internal/hotkeys"
	"github.com/postlens/agent/internal/overlay"
	"github.com/postlens/agent/internal/resultclient"
	"github.com/postlens/agent/internal/sensorintake"
	"github.com/postlens/agent/internal/session"
	"github.com/postlens/agent/internal/telemetry"
	"github.com/postlens/agent/internal/types"
	"github.com/postlens/agent/internal/uploader"
)

// Agent is the top-level orchestrator: one instance per process.
type Agent struct {
	cfg *config.Config

	sensor       *sensorintake.Server
	sessionMgr   *session.Manager
	uploaderTask *uploader.Uploader
	classifierC  *classifier.Client
	resultC      *resultclient.Client
	educator     *education.Fetcher
	overlaySrf   *overlay.Surface
	controlSrf   *control.Surface
	hotkeysH     *hotkeys.Handler
	telemetryP   *telemetry.Publisher
	healthS      *healthsrv.Server

	sitePolicy config.SitePolicy

	sensorEvents chan sensorintake.Event
	signals      chan cropcoordinator.Signal
	sessionCmds  chan session.Command
	overlayCmds  chan types.OverlayCommand
	hotkeyCmds   chan hotkeys.Command

	mu        sync.Mutex
	wg        sync.WaitGroup
	started   time.Time
	isRunning bool
}

// New builds an Agent from cfg, wiring every component's concrete
// dependencies.
func New(cfg *config.Config) *Agent {
	sensorEvents := make(chan sensorintake.Event, 16)
	signals := make(chan cropcoordinator.Signal, 16)
	sessionCmds := make(chan session.Command, 4)
	overlayCmds := make(chan types.OverlayCommand, 16)
	hotkeyCmds := make(chan hotkeys.Command, 4)

	sitePolicy, err := config.LoadSitePolicy(cfg.PolicyPath)
	if err != nil {
		slog.Warn("agent: failed to load site policy, allowing every site", "error", err)
		sitePolicy = config.DefaultSitePolicy()
	}

	classifierC := classifier.New(cfg.Classifier.BaseURL, cfg.Classifier.Timeout)
	resultC := resultclient.New(cfg.Classifier.BaseURL)
	educator := education.New(classifierC)
	telemetryP := telemetry.New(cfg.MQTT)

	sessionMgr := session.New(
		cfg.Capture,
		capturer.New(capturer.NewScreenSource()),
		func(ctx context.Context, baseID string) (session.Subscription, error) {
			return resultC.Subscribe(ctx, baseID)
		},
		session.NewDiskFrameSink(cfg.Frames.Directory),
		overlayCmds,
		session.WithNotifier(telemetryP.Publish),
	)

	uploaderTask := uploader.New(cfg.Frames.Directory, cfg.Capture.BatchSize, cfg.Capture.DebounceInterval, classifierC)

	overlaySrf := overlay.New(overlayCmds, educator)
	controlSrf := control.New(cfg.Frames.Directory, cfg.Control.PollInterval, classifierC, educator, sessionCmds)

	hotkeysH := hotkeys.New(hotkeyCmds)

	healthS := healthsrv.New(cfg.Health.ListenAddr, healthsrv.Checker{
		ClassifierHealthy:  func(ctx context.Context) bool { return classifierC.Health(ctx) == nil },
		TelemetryConnected: telemetryP.Connected,
	})

	return &Agent{
		cfg:          cfg,
		sitePolicy:   sitePolicy,
		sensor:       sensorintake.New(cfg.Sensor.ListenAddr, sensorEvents),
		sessionMgr:   sessionMgr,
		uploaderTask: uploaderTask,
		classifierC:  classifierC,
		resultC:      resultC,
		educator:     educator,
		overlaySrf:   overlaySrf,
		controlSrf:   controlSrf,
		hotkeysH:     hotkeysH,
		telemetryP:   telemetryP,
		healthS:      healthS,
		sensorEvents: sensorEvents,
		signals:      signals,
		sessionCmds:  sessionCmds,
		overlayCmds:  overlayCmds,
		hotkeyCmds:   hotkeyCmds,
	}
}

// Run starts every component and blocks until ctx is cancelled. Component
// failures, including the sensor and health listeners failing to start,
// are logged and absorbed — nothing here is fatal to the process (spec §7).
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.isRunning {
		a.mu.Unlock()
		return fmt.Errorf("agent: already running")
	}
	a.isRunning = true
	a.started = time.Now()
	a.mu.Unlock()

	if err := a.telemetryP.Connect(ctx, a.cfg.InstanceID); err != nil {
		slog.Warn("agent: telemetry disabled for this run", "error", err)
	}

	runTask := func(name string, fn func() error) {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := fn(); err != nil {
				slog.Error("agent: component exited with error", "component", name, "error", err)
			}
		}()
	}

	runTask("sensor-intake", func() error { return a.sensor.ListenAndServe(ctx) })
	runTask("uploader", func() error { return a.uploaderTask.Run(ctx) })
	runTask("health-server", func() error { return a.healthS.ListenAndServe(ctx) })
	runTask("hotkeys", func() error { return a.hotkeysH.Run(ctx) })

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.translateLoop(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sessionMgr.Run(ctx, a.signals, a.sessionCmds)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.forwardHotkeys(ctx)
	}()

	// overlay.Surface and control.Surface each call webview.WebView.Run,
	// which blocks the calling goroutine in the platform's native event
	// loop. Running two independent native windows from one process this
	// way is the documented simplification recorded in DESIGN.md: a
	// production build would pin each to its own OS thread explicitly.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.overlaySrf.Run(ctx); err != nil {
			slog.Error("agent: overlay surface exited with error", "error", err)
		}
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.controlSrf.Run(ctx); err != nil {
			slog.Error("agent: control surface exited with error", "error", err)
		}
	}()

	slog.Info("postlens agent running", "instance_id", a.cfg.InstanceID)
	<-ctx.Done()

	a.mu.Lock()
	a.isRunning = false
	a.mu.Unlock()
	return nil
}

// translateLoop applies the crop coordinator's policy to every sensor
// event, forwarding the result to the session manager (spec §4.2).
func (a *Agent) translateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.sensorEvents:
			if !ok {
				return
			}
			sig := cropcoordinator.Translate(ev, time.Now(), a.sitePolicy)
			select {
			case a.signals <- sig:
			case <-ctx.Done():
				return
			}
		}
	}
}

// forwardHotkeys routes the debug-box toggle into the overlay's command
// channel and writes the session manager's most recent capture buffer to
// the debug directory on CommandDebugSave (spec §4.10).
func (a *Agent) forwardHotkeys(ctx context.Context) {
	debugOn := false
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-a.hotkeyCmds:
			if !ok {
				return
			}
			switch cmd.Kind {
			case hotkeys.CommandToggleDebugBox:
				debugOn = !debugOn
				select {
				case a.overlayCmds <- types.SetDebugCommand(debugOn):
				case <-ctx.Done():
					return
				}
			case hotkeys.CommandDebugSave:
				path, err := a.sessionMgr.SaveDebugFrame(a.cfg.Debug.Directory)
				if err != nil {
					slog.Warn("hotkeys: debug save failed", "error", err)
				} else {
					slog.Info("hotkeys: debug frame saved", "path", path)
				}
			}
		}
	}
}

// Shutdown waits for every component started by Run to finish, bounded
// by ctx, then disconnects telemetry last — mirroring the teacher's
// Shutdown ordering (stop producers, wait for goroutines, disconnect MQTT
// last). Cancelling the context passed to Run is what actually signals
// the components to stop; Shutdown only waits and cleans up after.
func (a *Agent) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("agent: shutdown timed out waiting for components to stop")
	}

	a.telemetryP.Disconnect()
}
