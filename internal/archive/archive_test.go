package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

type fakeStorage struct {
	mu     sync.Mutex
	events map[string][]model.SseEvent
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{events: make(map[string][]model.SseEvent)}
}

func (f *fakeStorage) GenerateID(ctx context.Context, channelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strconv.Itoa(len(f.events[channelID]) + 1), nil
}

func (f *fakeStorage) Store(ctx context.Context, channelID, streamID string, event model.SseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[channelID] = append(f.events[channelID], event)
	return nil
}

func (f *fakeStorage) GetMessagesAfter(ctx context.Context, channelID, afterID string) ([]model.SseEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	after, _ := strconv.Atoi(afterID)
	var out []model.SseEvent
	for _, e := range f.events[channelID] {
		id, _ := strconv.Atoi(e.StreamID)
		if id > after {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStorage) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeStorage) Name() string                        { return "fake" }

type fakeLister struct {
	conns []model.ConnectionInfo
}

func (f *fakeLister) ListConnections() []model.ConnectionInfo { return f.conns }

type fakeDestination struct {
	mu      sync.Mutex
	written map[string][]byte
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{written: make(map[string][]byte)}
}

func (d *fakeDestination) Write(ctx context.Context, key string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written[key] = data
	return nil
}

func (d *fakeDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.written)
}

func (d *fakeDestination) any() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range d.written {
		return v
	}
	return nil
}

func TestSnapshotOnceSkipsEmptyChannels(t *testing.T) {
	store := newFakeStorage()
	lister := &fakeLister{conns: []model.ConnectionInfo{{ChannelID: "a"}}}
	dest := newFakeDestination()

	s := NewScheduler(store, lister, []Destination{dest}, time.Hour, "archive", nil)
	s.snapshotOnce(context.Background())

	if got := dest.count(); got != 0 {
		t.Fatalf("expected no writes for an empty channel, got %d", got)
	}
}

func TestSnapshotOnceArchivesNewEvents(t *testing.T) {
	store := newFakeStorage()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id, _ := store.GenerateID(ctx, "a")
		store.Store(ctx, "a", id, model.SseEvent{EventType: "n", Data: fmt.Sprintf("msg-%d", i), StreamID: id})
	}

	lister := &fakeLister{conns: []model.ConnectionInfo{{ChannelID: "a"}}}
	dest := newFakeDestination()

	s := NewScheduler(store, lister, []Destination{dest}, time.Hour, "archive", nil)
	s.snapshotOnce(ctx)

	if got := dest.count(); got != 1 {
		t.Fatalf("expected one archived object, got %d", got)
	}

	data := dest.any()
	var lines int
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var e model.SseEvent
		if err := dec.Decode(&e); err != nil {
			break
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("expected 3 NDJSON lines, got %d", lines)
	}

	// A second pass with nothing new should not write again.
	s.snapshotOnce(ctx)
	if got := dest.count(); got != 1 {
		t.Fatalf("expected still one archived object after a dry pass, got %d", got)
	}
}

func TestSnapshotOnceSkipsBroadcastOnlyConnections(t *testing.T) {
	store := newFakeStorage()
	lister := &fakeLister{conns: []model.ConnectionInfo{{ChannelID: ""}}}
	dest := newFakeDestination()

	s := NewScheduler(store, lister, []Destination{dest}, time.Hour, "archive", nil)
	channels := s.activeChannels()
	if len(channels) != 0 {
		t.Fatalf("expected broadcast-only connections to contribute no channel, got %v", channels)
	}
}
