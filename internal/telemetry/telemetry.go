// Package telemetry publishes session lifecycle transitions and verdicts
// to MQTT for external dashboards (SPEC_FULL §3, §4). It is grounded on
// the teacher's internal/emitter/mqtt.go, repurposed from publishing
// camera inferences to publishing session.Event values, and adapted to be
// a no-op when no broker is configured (the teacher always has a broker).
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/postlens/agent/internal/config"
	"github.com/postlens/agent/internal/session"
	"github.com/postlens/agent/internal/types"
)

// Publisher publishes session.Event values to an MQTT broker. The zero
// value configured with an empty Broker is a safe no-op.
type Publisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
}

// New builds a Publisher. If cfg.Broker is empty, every method is a no-op.
func New(cfg config.MQTTConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

func (p *Publisher) enabled() bool { return p.cfg.Broker != "" }

// Connect establishes the MQTT connection with auto-reconnect. A no-op
// when telemetry is disabled.
func (p *Publisher) Connect(ctx context.Context, instanceID string) error {
	if !p.enabled() {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", p.cfg.Broker))
	opts.SetClientID(instanceID + p.cfg.ClientIDSuffix)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		slog.Info("telemetry: mqtt connection established", "broker", p.cfg.Broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect", "error", err)
	}

	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connection failed: %w", err)
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// eventPayload is the wire shape published for every session.Event.
type eventPayload struct {
	Kind    string                  `json:"kind"`
	BaseID  string                  `json:"post_id"`
	Verdict *types.DetectionVerdict `json:"verdict,omitempty"`
}

func buildPayload(ev session.Event) ([]byte, error) {
	return json.Marshal(eventPayload{
		Kind:    ev.Kind.String(),
		BaseID:  ev.BaseID,
		Verdict: ev.Verdict,
	})
}

// Publish sends one session event. Failures are logged and swallowed:
// telemetry is additive instrumentation, never load-bearing for the state
// machine (SPEC_FULL §4). Pass Publish itself as a session.WithNotifier
// callback.
func (p *Publisher) Publish(ev session.Event) {
	if !p.enabled() {
		return
	}
	if !p.isConnected() {
		slog.Warn("telemetry: dropped event, not connected", "kind", ev.Kind.String(), "post_id", ev.BaseID)
		return
	}

	payload, err := buildPayload(ev)
	if err != nil {
		slog.Warn("telemetry: failed to marshal event", "error", err)
		return
	}

	topic := fmt.Sprintf("%s/%s", p.cfg.Topic, ev.BaseID)
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Warn("telemetry: publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		slog.Warn("telemetry: publish failed", "topic", topic, "error", err)
	}
}

// Disconnect closes the MQTT connection. A no-op if telemetry is disabled
// or was never connected.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

func (p *Publisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Connected reports whether the MQTT connection is currently up. Always
// true when telemetry is disabled, matching healthsrv's "absent
// dependency counts as healthy" convention.
func (p *Publisher) Connected() bool {
	if !p.enabled() {
		return true
	}
	return p.isConnected()
}
