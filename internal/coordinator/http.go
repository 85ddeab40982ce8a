package coordinator

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
	"github.com/alfredjeanlab/ssegateway/internal/source"
	"github.com/alfredjeanlab/ssegateway/internal/storage"
)

// pushRequest is the JSON body for POST /push and POST /store (§6).
type pushRequest struct {
	ChannelID  string `json:"channel_id"`
	EventType  string `json:"event_type"`
	Data       string `json:"data"`
	BusinessID string `json:"business_id"`
}

// PushAPI serves the push API route table on PUSH_PORT (§6): POST /push,
// POST /store, GET /channel/{id}, GET /instances, GET /channels. Grounded
// on the teacher's http.go: one mux per concern, writeJSON/writeError
// response helpers, handlers kept as plain functions over a shared struct
// rather than a framework router.
type PushAPI struct {
	// Coordinator may be nil when no coordination backend is configured
	// (single-instance deployment): /channel, /instances, /channels then
	// degrade to local-only answers or 503 rather than panicking (§7
	// CoordinatorUnavailable).
	Coordinator *Coordinator
	Registry    *registry.Registry
	Storage     storage.Storage
	DirectPush  *source.DirectPush

	log *slog.Logger
}

// NewPushAPI wires the push API to its collaborators. coord may be nil.
func NewPushAPI(coord *Coordinator, reg *registry.Registry, store storage.Storage, dp *source.DirectPush, log *slog.Logger) *PushAPI {
	if log == nil {
		log = slog.Default()
	}
	return &PushAPI{
		Coordinator: coord,
		Registry:    reg,
		Storage:     store,
		DirectPush:  dp,
		log:         log,
	}
}

// Mux builds the push API's http.ServeMux (§6 route table).
func (p *PushAPI) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /push", p.handlePush)
	mux.HandleFunc("POST /store", p.handleStore)
	mux.HandleFunc("GET /channel/{id}", p.handleChannel)
	mux.HandleFunc("GET /instances", p.handleInstances)
	mux.HandleFunc("GET /channels", p.handleChannels)
	return mux
}

// handlePush queues msg into this instance's router (§6 "/push … Queue
// IncomingMessage into the router"). It never forwards to another
// instance: cross-instance routing is the publisher's responsibility via
// GET /channel/{id} (§1 Non-goals, §9 "direct push" Open Question) — a
// publisher that wants the connected instance looks it up first and POSTs
// /push there directly. An absent channel_id means broadcast.
func (p *PushAPI) handlePush(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePushRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	// online is measured before queueing, per §6's response contract.
	online := req.ChannelID == "" || p.Registry.ChannelConnectionCount(req.ChannelID) > 0

	var msg model.IncomingMessage
	if req.ChannelID == "" {
		msg = model.Broadcast(req.EventType, req.Data)
	} else {
		msg = model.ForChannel(req.ChannelID, req.EventType, req.Data)
	}
	if req.BusinessID != "" {
		msg = msg.WithBusinessID(req.BusinessID)
	}

	streamID, err := p.DirectPush.Publish(ctx, msg)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": err.Error()})
		return
	}

	resp := map[string]any{"success": true, "online": online}
	if streamID != "" {
		resp["stream_id"] = streamID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStore persists an event to a channel's history without requiring a
// live connection to dispatch to. channel_id is mandatory here: unlike
// /push, there is no broadcast analog for storage (§9 Open Question).
func (p *PushAPI) handleStore(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePushRequest(w, r)
	if !ok {
		return
	}
	if req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, "channel_id is required for /store")
		return
	}

	ctx := r.Context()
	streamID, err := p.Storage.GenerateID(ctx, req.ChannelID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	msg := model.ForChannel(req.ChannelID, req.EventType, req.Data)
	if req.BusinessID != "" {
		msg = msg.WithBusinessID(req.BusinessID)
	}
	event := model.FromIncoming(msg, streamID)

	if err := p.Storage.Store(ctx, req.ChannelID, streamID, event); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stream_id": streamID})
}

// handleChannel reports the cluster-wide online state and owning instance
// for one channel (§6 "online here is the cluster-wide view, not local").
// Without a coordinator (single-instance deployment) it falls back to the
// local connection count, since this instance is by definition the whole
// cluster.
func (p *PushAPI) handleChannel(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("id")
	ctx := r.Context()

	resp := map[string]any{"channel_id": channelID}

	if p.Coordinator == nil {
		resp["online"] = p.Registry.ChannelConnectionCount(channelID) > 0
		writeJSON(w, http.StatusOK, resp)
		return
	}

	owner, err := p.Coordinator.ChannelOwner(ctx, channelID)
	if err != nil {
		resp["online"] = false
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp["online"] = true
	resp["instance_id"] = owner

	if records, err := p.Coordinator.ListInstances(ctx); err == nil {
		for _, rec := range records {
			if rec.InstanceID == owner {
				resp["instance_address"] = rec.Addr
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInstances lists every known gateway instance.
func (p *PushAPI) handleInstances(w http.ResponseWriter, r *http.Request) {
	if p.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "no coordination backend configured")
		return
	}
	records, err := p.Coordinator.ListInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleChannels lists every channel currently mapped to an owning
// instance.
func (p *PushAPI) handleChannels(w http.ResponseWriter, r *http.Request) {
	if p.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "no coordination backend configured")
		return
	}
	mappings, err := p.Coordinator.ListChannels(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

func decodePushRequest(w http.ResponseWriter, r *http.Request) (pushRequest, bool) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return pushRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
