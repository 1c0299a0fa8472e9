package healthsrv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadiness_DegradedWhenClassifierDown(t *testing.T) {
	s := New("127.0.0.1:0", Checker{
		ClassifierHealthy: func(ctx context.Context) bool { return false },
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	s.readiness(rec, req)

	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.ClassifierUp {
		t.Error("expected ClassifierUp=false")
	}
}

func TestReadiness_HealthyWhenNoCheckersConfigured(t *testing.T) {
	s := New("127.0.0.1:0", Checker{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	s.readiness(rec, req)

	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("status = %q, want healthy", status.Status)
	}
}

func TestLiveness_AlwaysOK(t *testing.T) {
	s := New("127.0.0.1:0", Checker{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.liveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", rec.Code)
	}
}
