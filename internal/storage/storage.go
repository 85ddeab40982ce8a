// Package storage defines the persistence contract (C2) used by the router
// to assign stream IDs and persist events, and by the SSE endpoint to
// replay missed events on reconnect.
package storage

import (
	"context"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// Storage is the contract every backend (in-memory ring buffer, Redis
// Streams, Postgres) must satisfy. Implementations are selected once at
// startup; there is no runtime switching (§9 "Polymorphic... traits").
type Storage interface {
	// GenerateID returns a new stream ID. Implementations must guarantee
	// per-channel monotonicity when called in the order events will be
	// dispatched. The router is the sole caller during live ingest and
	// calls it under a per-channel serialization point (§4.2, §4.5).
	GenerateID(ctx context.Context, channelID string) (string, error)

	// Store persists the event under the channel, associated with the
	// given stream ID. Fire-and-forget: failures are logged by the caller
	// but never block live dispatch (§4.2, §7 StorageWriteFail).
	Store(ctx context.Context, channelID, streamID string, event model.SseEvent) error

	// GetMessagesAfter returns events with stream_id > afterID, in issue
	// order. If afterID is "", returns nothing — there is no cold catch-up
	// (§4.2). Bounded by the backend's retention policy.
	GetMessagesAfter(ctx context.Context, channelID, afterID string) ([]model.SseEvent, error)

	// IsAvailable is a liveness probe, used by GET /ready (§6).
	IsAvailable(ctx context.Context) bool

	// Name identifies the backend for observability.
	Name() string
}
