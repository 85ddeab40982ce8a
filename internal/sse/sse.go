// Package sse implements the SSE endpoint (C6): GET /sse/connect, the
// Last-Event-ID replay path, and the wire framing for dispatched events.
// Grounded on the teacher's handleEventStream/writeSSEEvent (internal/server/sse.go):
// same header sequence, same "id:\nevent:\ndata:\n\n" framing, same
// flush-after-every-event loop, generalized from a single global hub to the
// registry's per-connection mailbox plus the storage replay contract.
package sse

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/ssegateway/internal/idgen"
	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/registry"
	"github.com/alfredjeanlab/ssegateway/internal/storage"
)

// AuthFunc is the auth callback contract (§4.6). It receives the inbound
// request and the channel the client is attempting to subscribe to ("" for
// a broadcast-only connection) and reports whether the connection should
// be admitted. A nil AuthFunc admits every connection.
type AuthFunc func(r *http.Request, channelID string) bool

// Handler serves GET /sse/connect.
type Handler struct {
	Registry        *registry.Registry
	Storage         storage.Storage
	Auth            AuthFunc
	InstanceID      string
	Log             *slog.Logger
}

// NewHandler constructs an SSE endpoint handler. auth may be nil to admit
// every connection (§4.6 default).
func NewHandler(reg *registry.Registry, store storage.Storage, instanceID string, auth AuthFunc, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Registry: reg, Storage: store, Auth: auth, InstanceID: instanceID, Log: log}
}

// ServeHTTP implements the seven-step SSE connection protocol (§4.6):
// parse channel_id, authorize, emit headers, register, replay missed
// events if Last-Event-ID is present, stream live events, unregister on
// disconnect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")

	if h.Auth != nil && !h.Auth(r, channelID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	connID, err := idgen.Generate()
	if err != nil {
		h.Log.Error("sse: failed to generate connection id", "error", err)
		return
	}

	ctx := r.Context()
	info := model.ConnectionInfo{
		ConnectionID: connID,
		ChannelID:    channelID,
		InstanceID:   h.InstanceID,
	}
	mailbox := h.Registry.Register(info, ctx.Done())
	defer h.Registry.Unregister(connID)

	// A client disconnect cancels ctx; unregistering then closes the
	// mailbox, which wakes the blocked Pop below so the loop exits.
	go func() {
		<-ctx.Done()
		h.Registry.Unregister(connID)
	}()

	h.Log.Debug("sse: connection established", "connection_id", connID, "channel_id", channelID)

	if channelID != "" {
		if lastID := lastEventID(r); lastID != "" {
			h.replay(ctx, w, flusher, channelID, lastID)
		}
	}

	for {
		event, ok := mailbox.Pop()
		if !ok {
			return
		}
		if err := writeEvent(w, event); err != nil {
			h.Log.Debug("sse: write failed, client likely disconnected", "connection_id", connID, "error", err)
			return
		}
		flusher.Flush()
	}
}

// lastEventID reads the resume cursor from the Last-Event-ID header, or
// from a last_event_id query parameter as a fallback for clients that
// can't set custom headers on an EventSource reconnect.
func lastEventID(r *http.Request) string {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("last_event_id")
}

func (h *Handler) replay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, channelID, afterID string) {
	if !h.Storage.IsAvailable(ctx) {
		// Open Question resolved: serve live, skip replay, rather than
		// rejecting the connection (§9).
		h.Log.Warn("sse: storage unavailable, skipping replay", "channel_id", channelID)
		return
	}

	events, err := h.Storage.GetMessagesAfter(ctx, channelID, afterID)
	if err != nil {
		h.Log.Warn("sse: replay lookup failed, continuing live-only", "channel_id", channelID, "error", err)
		return
	}

	for _, event := range events {
		if err := writeEvent(w, event); err != nil {
			return
		}
	}
	if len(events) > 0 {
		flusher.Flush()
	}
}

// writeEvent frames a single SseEvent per the SSE wire format (§6):
//
//	id: <stream_id>
//	event: <event_type>
//	data: <data, one "data:" line per newline in the payload>
//	retry: <retry>
//
//	(blank line terminator)
func writeEvent(w http.ResponseWriter, event model.SseEvent) error {
	var b strings.Builder

	if event.HasStreamID() {
		fmt.Fprintf(&b, "id: %s\n", event.StreamID)
	}
	if event.EventType != "" {
		fmt.Fprintf(&b, "event: %s\n", event.EventType)
	}
	for _, line := range strings.Split(event.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	if event.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", event.Retry)
	}
	b.WriteString("\n")

	_, err := w.Write([]byte(b.String()))
	return err
}
