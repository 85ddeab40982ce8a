package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
)

type fakeStorage struct {
	available bool
	events    []model.SseEvent
}

func (f *fakeStorage) GenerateID(ctx context.Context, channelID string) (string, error) {
	return "1", nil
}
func (f *fakeStorage) Store(ctx context.Context, channelID, streamID string, event model.SseEvent) error {
	return nil
}
func (f *fakeStorage) GetMessagesAfter(ctx context.Context, channelID, afterID string) ([]model.SseEvent, error) {
	return f.events, nil
}
func (f *fakeStorage) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeStorage) Name() string                         { return "fake" }

func TestHandler_ForbiddenWhenAuthDenies(t *testing.T) {
	reg := registry.New(8, nil)
	h := NewHandler(reg, &fakeStorage{available: true}, "inst-1", func(r *http.Request, channelID string) bool {
		return false
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/sse/connect?channel_id=room-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandler_ReplaysMissedEventsOnLastEventID(t *testing.T) {
	reg := registry.New(8, nil)
	store := &fakeStorage{
		available: true,
		events: []model.SseEvent{
			{EventType: "message", Data: "catch-up", StreamID: "2"},
		},
	}
	h := NewHandler(reg, store, "inst-1", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/sse/connect?channel_id=room-1", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "data: catch-up") {
		t.Errorf("body = %q, want replayed event present", body)
	}
	if !strings.Contains(body, "id: 2") {
		t.Errorf("body = %q, want stream id frame", body)
	}
}

func TestHandler_SkipsReplayWhenStorageUnavailable(t *testing.T) {
	reg := registry.New(8, nil)
	store := &fakeStorage{available: false}
	h := NewHandler(reg, store, "inst-1", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/sse/connect?channel_id=room-1", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (serve live, skip replay)", rec.Code)
	}
}

func TestHandler_StreamsLiveDispatchedEvents(t *testing.T) {
	reg := registry.New(8, nil)
	store := &fakeStorage{available: true}
	h := NewHandler(reg, store, "inst-1", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/sse/connect?channel_id=room-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for registration, then dispatch directly through the registry.
	deadline := time.After(time.Second)
	for reg.ChannelConnectionCount("room-1") == 0 {
		select {
		case <-deadline:
			t.Fatal("connection never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	reg.Dispatch("room-1", model.SseEvent{EventType: "message", Data: "live", StreamID: "3"})
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after cancel")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "data: live") {
		t.Errorf("body = %q, want live-dispatched event", body)
	}
}
