// Package model defines the canonical message types that flow through the
// gateway: the shape a source hands to the router (IncomingMessage), the
// shape storage and SSE clients see (SseEvent), and the metadata the
// connection registry keeps for each live client (ConnectionInfo).
package model

import "time"

// IncomingMessage is a message entering the system from any source (§3).
// channel_id absent (empty string with ChannelID set false, modeled here as
// a pointer) means broadcast to every connection on the instance.
type IncomingMessage struct {
	ChannelID  *string // nil means broadcast
	EventType  string  // SSE event name; defaults to "message" if empty
	Data       string  // opaque UTF-8 payload
	BusinessID string  // optional client-supplied dedup key, not the stream ID
}

// ForChannel builds an IncomingMessage targeted at a specific channel.
func ForChannel(channelID, eventType, data string) IncomingMessage {
	ch := channelID
	return IncomingMessage{ChannelID: &ch, EventType: normalizeEventType(eventType), Data: data}
}

// Broadcast builds an IncomingMessage with no channel_id, delivered to every
// live connection on the instance regardless of subscription (§3 invariant 6).
func Broadcast(eventType, data string) IncomingMessage {
	return IncomingMessage{ChannelID: nil, EventType: normalizeEventType(eventType), Data: data}
}

// WithBusinessID returns a copy of m tagged with a client-supplied dedup key.
func (m IncomingMessage) WithBusinessID(id string) IncomingMessage {
	m.BusinessID = id
	return m
}

// IsBroadcast reports whether this message has no channel_id.
func (m IncomingMessage) IsBroadcast() bool {
	return m.ChannelID == nil
}

// Channel returns the channel_id, or "" for a broadcast.
func (m IncomingMessage) Channel() string {
	if m.ChannelID == nil {
		return ""
	}
	return *m.ChannelID
}

func normalizeEventType(t string) string {
	if t == "" {
		return "message"
	}
	return t
}

// SseEvent is the canonical stored/dispatched form of a message (§3).
// StreamID is empty for events that were never persisted (broadcasts,
// heartbeats); present for anything that went through the router's
// generate_id/store path and is eligible for Last-Event-ID replay.
type SseEvent struct {
	EventType  string
	Data       string
	BusinessID string
	StreamID   string // resume cursor; "" means absent
	Retry      int    // reconnect-delay hint in milliseconds; 0 means absent
}

// HasStreamID reports whether this event carries a stream ID (for the SSE
// "id:" line and for replay eligibility).
func (e SseEvent) HasStreamID() bool {
	return e.StreamID != ""
}

// NewHeartbeat builds the synthetic heartbeat event emitted by the
// connection registry's background heartbeat task (§4.4). Heartbeats carry
// no stream_id and are never persisted.
func NewHeartbeat() SseEvent {
	return SseEvent{EventType: "heartbeat", Data: ""}
}

// FromIncoming constructs the stored/dispatched form of a message once the
// router has assigned it a stream ID (empty for broadcasts, which are never
// stored per §4.5).
func FromIncoming(msg IncomingMessage, streamID string) SseEvent {
	return SseEvent{
		EventType:  msg.EventType,
		Data:       msg.Data,
		BusinessID: msg.BusinessID,
		StreamID:   streamID,
	}
}

// ConnectionInfo is the metadata the registry keeps for one live SSE client (§3).
type ConnectionInfo struct {
	ConnectionID string
	ChannelID    string // "" denotes a broadcast-only listener
	InstanceID   string
	ConnectedAt  time.Time
}

// IsBroadcastOnly reports whether this connection subscribed to no specific
// channel and therefore only receives broadcast messages.
func (c ConnectionInfo) IsBroadcastOnly() bool {
	return c.ChannelID == ""
}
