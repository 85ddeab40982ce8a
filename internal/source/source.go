// Package source defines the inbound message contract (C3) and the
// concrete adapters that feed the router: NATS and Redis pub/sub, GCP
// Pub/Sub, and a direct-push adapter fed by the push API's HTTP handlers.
package source

import (
	"context"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// Handler is invoked once per inbound message, and returns the stream_id
// the router assigned (empty for broadcasts, which are never stored).
// Implementations must not block the caller beyond what their own delivery
// semantics require; the router's Handle never blocks on a slow consumer,
// though it does wait on storage calls (§4.5).
// Most sources ignore the return value; the direct-push adapter's Publish
// forwards it so the push API can report stream_id synchronously (§6).
type Handler func(ctx context.Context, msg model.IncomingMessage) string

// Source is the contract every inbound transport adapter satisfies (§4.3).
// A gateway instance may run zero or more sources concurrently.
type Source interface {
	// Start begins consuming messages and invoking handler for each one. It
	// blocks until ctx is cancelled or an unrecoverable error occurs, and
	// must return promptly once ctx is done (§5 cancellation).
	Start(ctx context.Context, handler Handler) error

	// Name identifies the source for logging and diagnostics.
	Name() string
}
