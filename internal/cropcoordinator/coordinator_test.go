package cropcoordinator

import (
	"testing"
	"time"

	"github.com/postlens/agent/internal/config"
	"github.com/postlens/agent/internal/sensorintake"
	"github.com/postlens/agent/internal/types"
)

func TestTranslate_PostCleared(t *testing.T) {
	ev := sensorintake.Event{Kind: sensorintake.EventLocation, Location: types.LocationMessage{DPR: 1, Post: nil}}
	sig := Translate(ev, time.Now(), config.DefaultSitePolicy())
	if sig.Kind != SignalActivePostCleared {
		t.Fatalf("got %v, want SignalActivePostCleared", sig.Kind)
	}
}

func TestTranslate_Disconnected(t *testing.T) {
	sig := Translate(sensorintake.Event{Kind: sensorintake.EventDisconnected}, time.Now(), config.DefaultSitePolicy())
	if sig.Kind != SignalActivePostCleared {
		t.Fatalf("got %v, want SignalActivePostCleared", sig.Kind)
	}
}

func TestTranslate_PostObserved_DoesNotAddWindowOffset(t *testing.T) {
	ev := sensorintake.Event{
		Kind: sensorintake.EventLocation,
		Location: types.LocationMessage{
			DPR:           2,
			WindowScreenX: 500,
			WindowScreenY: 300,
			Post:          &types.PostLocation{ID: "post_1_1000", X: 10, Y: 20, W: 100, H: 200, Visibility: 1},
		},
	}

	sig := Translate(ev, time.Now(), config.DefaultSitePolicy())
	if sig.Kind != SignalActivePostObserved {
		t.Fatalf("got %v, want SignalActivePostObserved", sig.Kind)
	}
	if sig.Request.Rect.X != 10 || sig.Request.Rect.Y != 20 {
		t.Errorf("rect = %+v, window offset must not be added", sig.Request.Rect)
	}
	if sig.Request.FullPostID != "post_1_1000" {
		t.Errorf("full post id = %q", sig.Request.FullPostID)
	}
	if sig.Request.TraceID == "" {
		t.Error("trace id must be populated for an observed post")
	}
}

func TestTranslate_TraceIDUniquePerCall(t *testing.T) {
	ev := sensorintake.Event{
		Kind: sensorintake.EventLocation,
		Location: types.LocationMessage{
			DPR:  1,
			Post: &types.PostLocation{ID: "post_5_5000", X: 0, Y: 0, W: 10, H: 10, Visibility: 1},
		},
	}
	first := Translate(ev, time.Now(), config.DefaultSitePolicy())
	second := Translate(ev, time.Now(), config.DefaultSitePolicy())
	if first.Request.TraceID == second.Request.TraceID {
		t.Error("each translated observation should get its own trace id")
	}
}

func TestTranslate_NegativeCoordinatesPermitted(t *testing.T) {
	ev := sensorintake.Event{
		Kind: sensorintake.EventLocation,
		Location: types.LocationMessage{
			DPR:  1,
			Post: &types.PostLocation{ID: "post_2_2000", X: -50, Y: -10, W: 100, H: 100, Visibility: 0.5},
		},
	}
	sig := Translate(ev, time.Now(), config.DefaultSitePolicy())
	if sig.Request.Rect.X != -50 {
		t.Errorf("negative X should be preserved, got %v", sig.Request.Rect.X)
	}
}

func TestTranslate_DisallowedSiteTreatedAsCleared(t *testing.T) {
	ev := sensorintake.Event{
		Kind: sensorintake.EventLocation,
		Location: types.LocationMessage{
			Site: "blocked.example",
			DPR:  1,
			Post: &types.PostLocation{ID: "post_7_7000", X: 0, Y: 0, W: 10, H: 10, Visibility: 1},
		},
	}
	policy := config.SitePolicy{AllowedSites: []string{"allowed.example"}}

	sig := Translate(ev, time.Now(), policy)
	if sig.Kind != SignalActivePostCleared {
		t.Fatalf("got %v, want SignalActivePostCleared for a disallowed site", sig.Kind)
	}
}

func TestTranslate_AllowedSitePassesThrough(t *testing.T) {
	ev := sensorintake.Event{
		Kind: sensorintake.EventLocation,
		Location: types.LocationMessage{
			Site: "allowed.example",
			DPR:  1,
			Post: &types.PostLocation{ID: "post_8_8000", X: 0, Y: 0, W: 10, H: 10, Visibility: 1},
		},
	}
	policy := config.SitePolicy{AllowedSites: []string{"allowed.example"}}

	sig := Translate(ev, time.Now(), policy)
	if sig.Kind != SignalActivePostObserved {
		t.Fatalf("got %v, want SignalActivePostObserved for an allowed site", sig.Kind)
	}
}
