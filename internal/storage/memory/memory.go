// Package memory implements storage.Storage as an in-process per-channel
// ring buffer. It is the default backend when STORAGE_BACKEND is unset,
// grounded on the teacher's sseHub ring buffer (internal/server/sse.go in
// the retrieval pack's alfredjeanlab/beads): same fixed-size array, same
// wrap-around write position, same "walk from oldest to newest" replay scan,
// generalized from one global ring to one ring per channel so that
// Last-Event-ID cursors never cross channels.
package memory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// RingSize is the number of recent events retained per channel for
// Last-Event-ID reconnection support.
const RingSize = 256

// Storage is a non-durable, process-local storage.Storage implementation.
type Storage struct {
	mu      sync.RWMutex
	rings   map[string]*ring
	counter atomic.Uint64
}

// New creates an empty in-memory storage backend.
func New() *Storage {
	return &Storage{rings: make(map[string]*ring)}
}

type ring struct {
	mu     sync.RWMutex
	buf    [RingSize]entry
	pos    int
	length int
}

type entry struct {
	streamID uint64
	event    model.SseEvent
}

func (s *Storage) ringFor(channelID string) *ring {
	s.mu.RLock()
	r, ok := s.rings[channelID]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rings[channelID]; ok {
		return r
	}
	r = &ring{}
	s.rings[channelID] = r
	return r
}

// GenerateID returns a new process-wide monotonically increasing stream ID.
// A single global counter (rather than one per channel) is simpler and
// still satisfies per-channel monotonicity, since any total order restricted
// to a subset is still strictly increasing.
func (s *Storage) GenerateID(ctx context.Context, channelID string) (string, error) {
	id := s.counter.Add(1)
	return strconv.FormatUint(id, 10), nil
}

// Store appends the event to the channel's ring buffer, evicting the oldest
// entry on overflow.
func (s *Storage) Store(ctx context.Context, channelID, streamID string, event model.SseEvent) error {
	id, err := strconv.ParseUint(streamID, 10, 64)
	if err != nil {
		return err
	}

	r := s.ringFor(channelID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.pos] = entry{streamID: id, event: event}
	r.pos = (r.pos + 1) % RingSize
	if r.length < RingSize {
		r.length++
	}
	return nil
}

// GetMessagesAfter returns buffered events with stream_id > afterID, oldest
// first. An empty afterID yields no results (no cold catch-up, per §4.2).
func (s *Storage) GetMessagesAfter(ctx context.Context, channelID, afterID string) ([]model.SseEvent, error) {
	if afterID == "" {
		return nil, nil
	}
	after, err := strconv.ParseUint(afterID, 10, 64)
	if err != nil {
		// An unparseable cursor is treated as "unknown cursor": no replay.
		return nil, nil
	}

	s.mu.RLock()
	r, ok := s.rings[channelID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.length == 0 {
		return nil, nil
	}

	start := r.pos - r.length
	if start < 0 {
		start += RingSize
	}

	var result []model.SseEvent
	for i := 0; i < r.length; i++ {
		idx := (start + i) % RingSize
		e := r.buf[idx]
		if e.streamID > after {
			result = append(result, e.event)
		}
	}
	return result, nil
}

// IsAvailable always reports true: the in-memory backend has no external
// dependency to fail.
func (s *Storage) IsAvailable(ctx context.Context) bool {
	return true
}

// Name identifies this backend for observability.
func (s *Storage) Name() string {
	return "memory"
}
