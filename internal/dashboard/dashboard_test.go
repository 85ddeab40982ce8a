package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
)

func TestHandleStatsWithoutCoordinator(t *testing.T) {
	reg := registry.New(8, nil)
	reg.Register(model.ConnectionInfo{ConnectionID: "c1", ChannelID: "room-1", ConnectedAt: time.Now()}, make(chan struct{}))

	h := NewHandler(reg, "inst-1", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["instance_id"] != "inst-1" {
		t.Errorf("instance_id = %v, want inst-1", body["instance_id"])
	}
	if _, ok := body["instances"]; ok {
		t.Errorf("expected no instances key without a coordinator, got %v", body["instances"])
	}
	channels, ok := body["channels"].(map[string]any)
	if !ok || channels["room-1"] != float64(1) {
		t.Errorf("channels = %v, want room-1: 1", body["channels"])
	}
}

func TestHandleStatsWithCoordinator(t *testing.T) {
	reg := registry.New(8, nil)
	called := false
	snapshot := func() (any, any, error) {
		called = true
		return []string{"inst-1"}, []string{"room-1"}, nil
	}

	h := NewHandler(reg, "inst-1", snapshot, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected coordinator snapshot to be invoked")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["instances"]; !ok {
		t.Error("expected instances key when a coordinator is configured")
	}
}

func TestHandleIndexServesHTML(t *testing.T) {
	reg := registry.New(8, nil)
	h := NewHandler(reg, "inst-1", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}
