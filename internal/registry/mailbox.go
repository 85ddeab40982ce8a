package registry

import (
	"sync"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// Mailbox is the bounded per-connection delivery queue (§3). It has exactly
// one producer-side owner (the registry's dispatch path) and exactly one
// consumer (the SSE endpoint's streaming loop for that connection).
// Dispatch never blocks: once the mailbox is full, the oldest buffered
// event is dropped to make room for the new one and SlowConsumerCount is
// incremented (§5 backpressure policy, §7 MailboxOverflow).
type Mailbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []model.SseEvent
	capacity int
	closed   bool

	// SlowConsumerCount counts events dropped due to overflow, exposed via
	// stats_snapshot (§4.4).
	SlowConsumerCount uint64
}

// NewMailbox creates a mailbox with the given capacity. capacity <= 0 is
// treated as 1 so the mailbox always holds at least the newest event.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = 1
	}
	m := &Mailbox{buf: make([]model.SseEvent, 0, capacity), capacity: capacity}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Push enqueues an event without blocking. If the mailbox is at capacity,
// the oldest entry is dropped and SlowConsumerCount is incremented. Push on
// a closed mailbox is a no-op: the connection is going away regardless.
func (m *Mailbox) Push(e model.SseEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if len(m.buf) >= m.capacity {
		m.buf = m.buf[1:]
		m.SlowConsumerCount++
	}
	m.buf = append(m.buf, e)
	m.cond.Signal()
}

// Pop blocks until an event is available or the mailbox is closed. The
// second return value is false once the mailbox is closed and drained.
func (m *Mailbox) Pop() (model.SseEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.buf) == 0 {
		return model.SseEvent{}, false
	}
	e := m.buf[0]
	m.buf = m.buf[1:]
	return e, true
}

// Close marks the mailbox closed and wakes any blocked consumer. Called
// exactly once by the registry on unregister (§3 single-owner lifecycle).
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cond.Broadcast()
}

// Len reports the number of currently buffered events, for diagnostics.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}
