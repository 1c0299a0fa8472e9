package telemetry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/postlens/agent/internal/config"
	"github.com/postlens/agent/internal/session"
	"github.com/postlens/agent/internal/types"
)

func TestDisabledPublisherIsANoOp(t *testing.T) {
	p := New(config.MQTTConfig{}) // empty Broker: disabled

	if err := p.Connect(context.Background(), "agent-1"); err != nil {
		t.Fatalf("Connect on a disabled publisher should never fail: %v", err)
	}

	p.Publish(session.Event{Kind: session.EventArmed, BaseID: "post_1"})
	p.Disconnect() // must not panic on a nil client
}

func TestBuildPayload_IncludesVerdictOnlyWhenPresent(t *testing.T) {
	ev := session.Event{Kind: session.EventArmed, BaseID: "post_1"}
	data, err := buildPayload(ev)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := decoded["verdict"]; present {
		t.Error("expected no verdict field when Verdict is nil")
	}

	verdict := types.NewVerdict("post_1", true, 0.9, types.SeverityHigh, nil)
	ev2 := session.Event{Kind: session.EventResolved, BaseID: "post_1", Verdict: &verdict}
	data2, err := buildPayload(ev2)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	var decoded2 map[string]interface{}
	if err := json.Unmarshal(data2, &decoded2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := decoded2["verdict"]; !present {
		t.Error("expected a verdict field when Verdict is set")
	}
}
