package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
	"github.com/alfredjeanlab/ssegateway/internal/source"
)

type fakeStorage struct {
	counter int
	fail    bool
}

func (f *fakeStorage) GenerateID(ctx context.Context, channelID string) (string, error) {
	if f.fail {
		return "", context.DeadlineExceeded
	}
	f.counter++
	return "1", nil
}
func (f *fakeStorage) Store(ctx context.Context, channelID, streamID string, event model.SseEvent) error {
	return nil
}
func (f *fakeStorage) GetMessagesAfter(ctx context.Context, channelID, afterID string) ([]model.SseEvent, error) {
	return nil, nil
}
func (f *fakeStorage) IsAvailable(ctx context.Context) bool { return !f.fail }
func (f *fakeStorage) Name() string                         { return "fake" }

func newTestAPI(t *testing.T) *PushAPI {
	t.Helper()
	reg := registry.New(8, nil)
	dp := source.NewDirectPush()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dp.Start(ctx, func(ctx context.Context, msg model.IncomingMessage) string { return "1" })

	// Publish fails until Start has recorded the handler; wait for that.
	deadline := time.Now().Add(time.Second)
	for {
		if _, err := dp.Publish(ctx, model.Broadcast("probe", "")); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("direct push source never started")
		}
		time.Sleep(time.Millisecond)
	}

	return &PushAPI{
		Registry:   reg,
		Storage:    &fakeStorage{},
		DirectPush: dp,
	}
}

func TestPushAPI_BroadcastPushSucceeds(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /push", api.handlePush)

	body := `{"event_type":"announce","data":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestPushAPI_StoreRequiresChannelID(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /store", api.handleStore)

	body := `{"event_type":"message","data":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing channel_id", rec.Code)
	}
}

func TestPushAPI_StoreWithChannelIDSucceeds(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /store", api.handleStore)

	body := `{"channel_id":"room-1","event_type":"message","data":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	if resp["stream_id"] == "" || resp["stream_id"] == nil {
		t.Error("expected a stream_id in response")
	}
}

func TestPushAPI_MalformedBodyRejected(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /push", api.handlePush)

	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed body", rec.Code)
	}
}

func TestPushAPI_ChannelEndpointReportsOnline(t *testing.T) {
	api := newTestAPI(t)
	done := make(chan struct{})
	api.Registry.Register(model.ConnectionInfo{ConnectionID: "c1", ChannelID: "room-1"}, done)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /channel/{id}", api.handleChannel)

	req := httptest.NewRequest(http.MethodGet, "/channel/room-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if online, _ := resp["online"].(bool); !online {
		t.Errorf("online = %v, want true", resp["online"])
	}
}

func TestPushAPI_InstancesRequiresCoordinator(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /instances", api.handleInstances)

	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a coordinator configured", rec.Code)
	}
}

func TestPushAPI_PushReportsStreamID(t *testing.T) {
	api := newTestAPI(t)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /push", api.handlePush)

	body := `{"channel_id":"room-1","event_type":"n","data":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	if resp["stream_id"] == nil {
		t.Error("expected stream_id for a channeled push")
	}
}
