// Package router implements the message pipeline (C5): the single place
// where an IncomingMessage from any source becomes a stored, dispatched
// SseEvent. It is deliberately small and stateless beyond per-channel
// serialization, mirroring how the teacher keeps its message-fan-out logic
// as a thin function rather than its own actor.
package router

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
	"github.com/alfredjeanlab/ssegateway/internal/storage"
)

// lockShards bounds the number of per-channel serialization locks so the
// router doesn't allocate one mutex per distinct channel_id forever.
const lockShards = 64

// Router is the C5 message pipeline: generate_id -> construct -> store (if
// channeled) -> dispatch, for every IncomingMessage handed to it.
type Router struct {
	storage  storage.Storage
	registry *registry.Registry
	log      *slog.Logger

	locks [lockShards]sync.Mutex
}

// New wires a Router to its storage backend and connection registry.
func New(store storage.Storage, reg *registry.Registry, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{storage: store, registry: reg, log: log}
}

func (r *Router) lockFor(channelID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return &r.locks[h.Sum32()%lockShards]
}

// Handle runs the four-step pipeline for a single incoming message (§4.5).
// It is the callback every source.Source invokes for each message it
// receives. Handle never blocks on a slow consumer: dispatch into
// per-connection mailboxes is non-blocking by construction (registry.Dispatch).
// Handle returns the stream_id assigned to msg ("" for broadcasts, which
// are never stored and carry no stream_id). Most callers (the source loops)
// ignore the return value; the push API's direct-push path reports it back
// to the publisher (§6).
func (r *Router) Handle(ctx context.Context, msg model.IncomingMessage) string {
	if msg.IsBroadcast() {
		// Broadcasts are never persisted and carry no stream_id (§4.5,
		// §9 Open Question: store-with-no-channel-id is a distinct, invalid
		// request, but a router-level broadcast message is not storage at all).
		event := model.FromIncoming(msg, "")
		n := r.registry.DispatchBroadcast(event)
		r.log.Debug("broadcast dispatched", "connections", n)
		return ""
	}

	channelID := msg.Channel()

	// Per-channel serialization: generate_id and store must observe the
	// same order that dispatch delivers in, so two concurrent publishes to
	// the same channel cannot interleave their stream IDs (§3 invariant 3).
	lock := r.lockFor(channelID)
	lock.Lock()
	defer lock.Unlock()

	streamID, err := r.storage.GenerateID(ctx, channelID)
	if err != nil {
		r.log.Error("generate_id failed", "channel", channelID, "error", err)
		return ""
	}

	event := model.FromIncoming(msg, streamID)

	// Fire-and-forget: a storage write failure is logged but never blocks
	// live dispatch (§7 StorageWriteFail).
	if err := r.storage.Store(ctx, channelID, streamID, event); err != nil {
		r.log.Warn("store failed, continuing with live dispatch", "channel", channelID, "stream_id", streamID, "error", err)
	}

	n := r.registry.Dispatch(channelID, event)
	r.log.Debug("event dispatched", "channel", channelID, "stream_id", streamID, "connections", n)
	return streamID
}
