package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// natsWireMessage is the JSON envelope published to the subject this
// source subscribes to. channel_id absent or empty means broadcast,
// mirroring IncomingMessage (§3).
type natsWireMessage struct {
	ChannelID  string `json:"channel_id"`
	EventType  string `json:"event_type"`
	Data       string `json:"data"`
	BusinessID string `json:"business_id"`
}

// NATSSource subscribes to a single NATS subject (wildcards allowed) and
// forwards every message to the router. Grounded on the teacher's
// NATSSubscriber (internal/events/nats.go): same connect-with-options,
// same subscribe-and-loop-until-context-cancelled shape, generalized from
// a fixed internal event schema to the gateway's IncomingMessage envelope.
type NATSSource struct {
	url     string
	subject string
	log     *slog.Logger

	conn *nats.Conn
}

// NewNATSSource creates a source that will connect to url and subscribe to
// subject once Start is called.
func NewNATSSource(url, subject string, log *slog.Logger) *NATSSource {
	if log == nil {
		log = slog.Default()
	}
	return &NATSSource{url: url, subject: subject, log: log}
}

// Name identifies this source for diagnostics.
func (s *NATSSource) Name() string {
	return fmt.Sprintf("nats(%s)", s.subject)
}

// Start connects to NATS, subscribes to the configured subject, and
// forwards decoded messages to handler until ctx is cancelled (§4.3).
func (s *NATSSource) Start(ctx context.Context, handler Handler) error {
	conn, err := nats.Connect(s.url,
		nats.Name("ssegateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			s.log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("source: nats connect: %w", err)
	}
	s.conn = conn
	defer conn.Close()

	sub, err := conn.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("source: nats subscribe %q: %w", s.subject, err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

func (s *NATSSource) handleMessage(ctx context.Context, msg *nats.Msg, handler Handler) {
	var wire natsWireMessage
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		s.log.Warn("nats: malformed message, dropping", "subject", msg.Subject, "error", err)
		return
	}

	var incoming model.IncomingMessage
	if wire.ChannelID == "" {
		incoming = model.Broadcast(wire.EventType, wire.Data)
	} else {
		incoming = model.ForChannel(wire.ChannelID, wire.EventType, wire.Data)
	}
	if wire.BusinessID != "" {
		incoming = incoming.WithBusinessID(wire.BusinessID)
	}
	handler(ctx, incoming)
}
