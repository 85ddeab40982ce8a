package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeProber struct {
	available bool
}

func (f fakeProber) IsAvailable(ctx context.Context) bool { return f.available }

func TestHealthAlwaysOK(t *testing.T) {
	h := NewHandler(fakeProber{available: false})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("body = %q, want OK", rec.Body.String())
	}
}

func TestReadyBeforeSourceStarted(t *testing.T) {
	h := NewHandler(fakeProber{available: true})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before any source has started", rec.Code)
	}
}

func TestReadyAfterSourceStartedAndStorageAvailable(t *testing.T) {
	h := NewHandler(fakeProber{available: true})
	h.MarkSourceStarted()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyStorageUnavailable(t *testing.T) {
	h := NewHandler(fakeProber{available: false})
	h.MarkSourceStarted()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when storage is unavailable", rec.Code)
	}
}
