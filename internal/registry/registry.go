// Package registry implements the connection registry (C4): the dual-index
// table of live SSE connections, keyed both by connection_id and by
// channel_id, plus the background heartbeat and GC tasks that keep it
// honest. It is grounded on the teacher's presence.Tracker (reaper loop
// sweeping stale entries on a ticker) generalized from "agent presence" to
// "live SSE connection," and sharded by channel to avoid a single global
// lock on the hot dispatch path (§5).
package registry

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// shardCount is the number of channel-index shards. A small power of two
// spreads channels without meaningfully increasing memory overhead.
const shardCount = 32

type conn struct {
	info    model.ConnectionInfo
	mailbox *Mailbox
	done    <-chan struct{}
}

type shard struct {
	mu    sync.RWMutex
	byCh  map[string]map[string]*conn
}

func newShard() *shard {
	return &shard{byCh: make(map[string]map[string]*conn)}
}

func shardIndex(channelID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return int(h.Sum32() % shardCount)
}

// Hooks lets an external collaborator observe connection lifecycle events
// without the registry importing it. The multi-instance coordinator (C7)
// is the production implementation: OnConnect claims the channel→instance
// mapping, OnDisconnect releases it once the last local connection for
// that channel is gone (§9 "lifecycle callback closures over shared
// state"). Both methods must return promptly; a coordinator implementation
// spawns its own background goroutine for the external write rather than
// blocking Register/Unregister.
type Hooks interface {
	OnConnect(info model.ConnectionInfo)
	OnDisconnect(info model.ConnectionInfo)
}

type noopHooks struct{}

func (noopHooks) OnConnect(model.ConnectionInfo)    {}
func (noopHooks) OnDisconnect(model.ConnectionInfo) {}

// Stats is the output of StatsSnapshot (§4.4).
type Stats struct {
	TotalConnections  int
	BroadcastOnly     int
	ChannelCount      int
	SlowConsumerTotal uint64
}

// Registry is the sharded, dual-indexed connection registry.
type Registry struct {
	shards [shardCount]*shard

	idMu  sync.RWMutex
	byID  map[string]*conn

	bMu        sync.RWMutex
	broadcast  map[string]*conn

	mailboxCapacity int
	log             *slog.Logger
	hooks           Hooks
}

// New creates an empty registry. mailboxCapacity bounds every connection's
// mailbox (recommended 256, §5). Lifecycle hooks default to a no-op; wire
// in a real implementation (the coordinator's) with SetHooks.
func New(mailboxCapacity int, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		byID:            make(map[string]*conn),
		broadcast:       make(map[string]*conn),
		mailboxCapacity: mailboxCapacity,
		log:             log,
		hooks:           noopHooks{},
	}
	for i := range r.shards {
		r.shards[i] = newShard()
	}
	return r
}

// SetHooks installs the lifecycle observer invoked on every Register and
// Unregister. Must be called before the registry starts serving traffic;
// it is not safe to swap concurrently with registrations.
func (r *Registry) SetHooks(h Hooks) {
	if h == nil {
		h = noopHooks{}
	}
	r.hooks = h
}

// Register creates a mailbox for a new connection and adds it to both
// indices (§3 dual-index consistency invariant). done is closed when the
// underlying HTTP request context is cancelled; the GC task uses it as a
// safety net against connections that never call Unregister.
func (r *Registry) Register(info model.ConnectionInfo, done <-chan struct{}) *Mailbox {
	c := &conn{
		info:    info,
		mailbox: NewMailbox(r.mailboxCapacity),
		done:    done,
	}

	r.idMu.Lock()
	r.byID[info.ConnectionID] = c
	r.idMu.Unlock()

	if info.IsBroadcastOnly() {
		r.bMu.Lock()
		r.broadcast[info.ConnectionID] = c
		r.bMu.Unlock()
		r.hooks.OnConnect(info)
		return c.mailbox
	}

	s := r.shards[shardIndex(info.ChannelID)]
	s.mu.Lock()
	m, ok := s.byCh[info.ChannelID]
	if !ok {
		m = make(map[string]*conn)
		s.byCh[info.ChannelID] = m
	}
	m[info.ConnectionID] = c
	s.mu.Unlock()

	r.hooks.OnConnect(info)
	return c.mailbox
}

// Unregister removes a connection from both indices and closes its
// mailbox. Safe to call more than once.
func (r *Registry) Unregister(connectionID string) {
	r.idMu.Lock()
	c, ok := r.byID[connectionID]
	if ok {
		delete(r.byID, connectionID)
	}
	r.idMu.Unlock()
	if !ok {
		return
	}

	c.mailbox.Close()

	if c.info.IsBroadcastOnly() {
		r.bMu.Lock()
		delete(r.broadcast, connectionID)
		r.bMu.Unlock()
		r.hooks.OnDisconnect(c.info)
		return
	}

	s := r.shards[shardIndex(c.info.ChannelID)]
	s.mu.Lock()
	if m, ok := s.byCh[c.info.ChannelID]; ok {
		delete(m, connectionID)
		if len(m) == 0 {
			delete(s.byCh, c.info.ChannelID)
		}
	}
	s.mu.Unlock()

	r.hooks.OnDisconnect(c.info)
}

// Dispatch delivers event to every connection subscribed to channelID.
// Non-blocking: delivery to a full mailbox drops the oldest buffered event
// rather than stalling (§5). Returns the number of connections reached.
func (r *Registry) Dispatch(channelID string, event model.SseEvent) int {
	s := r.shards[shardIndex(channelID)]
	s.mu.RLock()
	m := s.byCh[channelID]
	conns := make([]*conn, 0, len(m))
	for _, c := range m {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.mailbox.Push(event)
	}
	return len(conns)
}

// DispatchBroadcast delivers event to every live connection on the
// instance, regardless of channel subscription (§3 invariant 6). Returns
// the number of connections reached.
func (r *Registry) DispatchBroadcast(event model.SseEvent) int {
	r.idMu.RLock()
	conns := make([]*conn, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.idMu.RUnlock()

	for _, c := range conns {
		c.mailbox.Push(event)
	}
	return len(conns)
}

// ChannelConnectionCount returns the number of connections currently
// subscribed to channelID.
func (r *Registry) ChannelConnectionCount(channelID string) int {
	s := r.shards[shardIndex(channelID)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCh[channelID])
}

// ChannelCounts returns the current connection count for every channel that
// has at least one subscriber, for the dashboard's channel listing.
func (r *Registry) ChannelCounts() map[string]int {
	out := make(map[string]int)
	for _, s := range r.shards {
		s.mu.RLock()
		for ch, m := range s.byCh {
			out[ch] = len(m)
		}
		s.mu.RUnlock()
	}
	return out
}

// ListConnections returns a snapshot of every live connection's metadata.
func (r *Registry) ListConnections() []model.ConnectionInfo {
	r.idMu.RLock()
	defer r.idMu.RUnlock()

	out := make([]model.ConnectionInfo, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.info)
	}
	return out
}

// StatsSnapshot reports aggregate counters used by the dashboard's
// /api/stats endpoint (§4.4, §6).
func (r *Registry) StatsSnapshot() Stats {
	r.idMu.RLock()
	defer r.idMu.RUnlock()

	stats := Stats{TotalConnections: len(r.byID)}
	channels := make(map[string]struct{})
	for _, c := range r.byID {
		if c.info.IsBroadcastOnly() {
			stats.BroadcastOnly++
		} else {
			channels[c.info.ChannelID] = struct{}{}
		}
		stats.SlowConsumerTotal += c.mailbox.SlowConsumerCount
	}
	stats.ChannelCount = len(channels)
	return stats
}

// RunHeartbeat periodically pushes a synthetic heartbeat event to every
// live mailbox, keeping idle SSE connections alive through proxies that
// close silent connections (§4.4). Runs until ctx is cancelled.
func (r *Registry) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := r.DispatchBroadcast(model.NewHeartbeat())
			r.log.Debug("heartbeat dispatched", "connections", n)
		}
	}
}

// RunGC periodically sweeps for connections whose request context has been
// cancelled but that were never explicitly unregistered, and removes them.
// This is a safety net: the SSE endpoint is expected to call Unregister in
// its own deferred cleanup; RunGC only catches stragglers (§4.4, grounded
// on the teacher's presence reaper loop).
func (r *Registry) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	r.idMu.RLock()
	stale := make([]string, 0)
	for id, c := range r.byID {
		select {
		case <-c.done:
			stale = append(stale, id)
		default:
		}
	}
	r.idMu.RUnlock()

	for _, id := range stale {
		r.Unregister(id)
	}
	if len(stale) > 0 {
		r.log.Debug("gc reaped stale connections", "count", len(stale))
	}
}
