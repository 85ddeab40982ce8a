package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// DirectPush is the in-process adapter fed by the push API's HTTP handlers
// (POST /push, §6). It implements Source so the coordinator can wire it
// into the same Start/handler lifecycle as every other transport, even
// though its "transport" is just a direct function call from an HTTP
// handler on this same process.
type DirectPush struct {
	mu      sync.RWMutex
	handler Handler
	ready   chan struct{}
	once    sync.Once
}

// NewDirectPush creates an unstarted direct-push adapter.
func NewDirectPush() *DirectPush {
	return &DirectPush{ready: make(chan struct{})}
}

// Name identifies this source for diagnostics.
func (d *DirectPush) Name() string {
	return "directpush"
}

// Start records handler for later use by Publish and blocks until ctx is
// cancelled (§4.3). There is no transport connection to establish.
func (d *DirectPush) Start(ctx context.Context, handler Handler) error {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
	d.once.Do(func() { close(d.ready) })

	<-ctx.Done()
	return nil
}

// Publish hands msg directly to the router's handler, as if it had arrived
// over any other transport, and returns the stream_id the router assigned
// ("" for broadcasts). Called by the push API's POST /push handler, which
// reports this value back to the caller (§6). It returns an error if Start
// has not yet been called (the gateway is still bootstrapping).
func (d *DirectPush) Publish(ctx context.Context, msg model.IncomingMessage) (string, error) {
	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()

	if h == nil {
		return "", fmt.Errorf("source: directpush not started")
	}
	return h(ctx, msg), nil
}
