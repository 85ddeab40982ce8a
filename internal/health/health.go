// Package health implements the two liveness/readiness endpoints described
// in spec.md §6: GET /health always answers 200 once the process is up;
// GET /ready answers 200 only once storage is reachable and at least one
// source has started.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Prober reports storage liveness for GET /ready.
type Prober interface {
	IsAvailable(ctx context.Context) bool
}

// Handler serves /health and /ready.
type Handler struct {
	storage       Prober
	sourceStarted atomic.Bool
}

// NewHandler constructs a health handler backed by storage's liveness probe.
func NewHandler(storage Prober) *Handler {
	return &Handler{storage: storage}
}

// MarkSourceStarted records that at least one source's Start loop has begun
// running, satisfying the second half of the /ready condition. Safe to call
// from multiple source goroutines concurrently; idempotent.
func (h *Handler) MarkSourceStarted() {
	h.sourceStarted.Store(true)
}

// Ready reports the same condition GET /ready answers: storage available
// and at least one source started. Shared with the gRPC health service
// (internal/server.RefreshServingStatus) so both listeners agree.
func (h *Handler) Ready(ctx context.Context) bool {
	return h.sourceStarted.Load() && h.storage.IsAvailable(ctx)
}

// Mux builds the health handler's http.ServeMux.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if !h.Ready(r.Context()) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
