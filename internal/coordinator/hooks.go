package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
)

// channelClaimer is the slice of Coordinator that RegistryHooks needs.
// Defined here (rather than depending on *Coordinator directly) so tests
// can exercise the claim/release/refresh bookkeeping against a fake
// without a real Redis connection.
type channelClaimer interface {
	ClaimChannel(ctx context.Context, channelID string) error
	ReleaseChannel(ctx context.Context, channelID string) error
}

// RegistryHooks implements registry.Hooks on top of a Coordinator,
// closing the loop the control-flow summary in spec.md §2 describes: "C4
// notifies C7 via on_connect". It claims the channel→instance mapping on
// the first local connection for a channel, keeps it refreshed via a
// per-channel background loop while any local connection remains, and
// releases it once the last one disconnects (§3 ChannelMapping lifecycle,
// §4.7).
type RegistryHooks struct {
	coordinator channelClaimer
	registry    *registry.Registry
	refresh     time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewRegistryHooks wires a Coordinator and the Registry it observes.
// refresh should be well under channelTTL so a claim never lapses while
// connections remain (the coordinator itself owns the TTL value).
func NewRegistryHooks(c channelClaimer, r *registry.Registry, refresh time.Duration, log *slog.Logger) *RegistryHooks {
	if log == nil {
		log = slog.Default()
	}
	return &RegistryHooks{
		coordinator: c,
		registry:    r,
		refresh:     refresh,
		log:         log,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// OnConnect claims the channel for this instance and starts (or leaves
// running) the channel's refresh loop. Broadcast-only listeners have no
// channel to claim. Non-blocking: the claim and loop startup run in their
// own goroutine, never on the SSE accept path (§9).
func (h *RegistryHooks) OnConnect(info model.ConnectionInfo) {
	if info.IsBroadcastOnly() {
		return
	}
	channelID := info.ChannelID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.coordinator.ClaimChannel(ctx, channelID); err != nil {
			h.log.Warn("coordinator: claim channel failed", "channel_id", channelID, "error", err)
		}
		h.ensureRefreshLoop(channelID)
	}()
}

// OnDisconnect releases the channel mapping only if this was the last
// local connection for it (§3 invariant 5, §4.7). Idempotent: Unregister
// only invokes this once per connection, and the count check makes
// concurrent disconnects on the same channel converge to a single release.
func (h *RegistryHooks) OnDisconnect(info model.ConnectionInfo) {
	if info.IsBroadcastOnly() {
		return
	}
	channelID := info.ChannelID
	go func() {
		if h.registry.ChannelConnectionCount(channelID) > 0 {
			return
		}
		h.stopRefreshLoop(channelID)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.coordinator.ReleaseChannel(ctx, channelID); err != nil {
			h.log.Warn("coordinator: release channel failed", "channel_id", channelID, "error", err)
		}
	}()
}

func (h *RegistryHooks) ensureRefreshLoop(channelID string) {
	h.mu.Lock()
	if _, running := h.cancels[channelID]; running {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancels[channelID] = cancel
	h.mu.Unlock()

	go h.runRefreshLoop(ctx, channelID)
}

func (h *RegistryHooks) stopRefreshLoop(channelID string) {
	h.mu.Lock()
	cancel, ok := h.cancels[channelID]
	if ok {
		delete(h.cancels, channelID)
	}
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

// runRefreshLoop periodically re-claims channelID while at least one local
// connection remains, and stops itself once none do, rather than waiting
// for a disconnect that may never come if connections churn without ever
// hitting zero in between.
func (h *RegistryHooks) runRefreshLoop(ctx context.Context, channelID string) {
	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.registry.ChannelConnectionCount(channelID) == 0 {
				h.stopRefreshLoop(channelID)
				return
			}
			claimCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := h.coordinator.ClaimChannel(claimCtx, channelID)
			cancel()
			if err != nil {
				h.log.Warn("coordinator: refresh channel claim failed", "channel_id", channelID, "error", err)
			}
		}
	}
}
