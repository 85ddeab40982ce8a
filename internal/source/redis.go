package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// redisWireMessage mirrors natsWireMessage; both transports share the same
// JSON envelope so operators can pick a broker without changing publishers.
type redisWireMessage struct {
	ChannelID  string `json:"channel_id"`
	EventType  string `json:"event_type"`
	Data       string `json:"data"`
	BusinessID string `json:"business_id"`
}

// RedisSource subscribes to a Redis pub/sub channel and forwards every
// message to the router. Grounded on VitalConnect3's subscribeLoop:
// construct a *redis.PubSub, range over its Channel(), forward until the
// context is cancelled.
type RedisSource struct {
	client      *redis.Client
	channelName string
	log         *slog.Logger

	ownsClient bool
}

// NewRedisSource creates a source against an existing client (e.g. one
// shared with the coordinator), subscribing to channelName once Start is
// called.
func NewRedisSource(client *redis.Client, channelName string, log *slog.Logger) *RedisSource {
	if log == nil {
		log = slog.Default()
	}
	return &RedisSource{client: client, channelName: channelName, log: log}
}

// NewRedisSourceFromURL creates a source that owns its own Redis client,
// built from a redis:// URL, and closes it when Start returns.
func NewRedisSourceFromURL(url, channelName string, log *slog.Logger) (*RedisSource, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("source: parse redis url: %w", err)
	}
	s := NewRedisSource(redis.NewClient(opts), channelName, log)
	s.ownsClient = true
	return s, nil
}

// Name identifies this source for diagnostics.
func (s *RedisSource) Name() string {
	return fmt.Sprintf("redis(%s)", s.channelName)
}

// Start subscribes to the configured channel and forwards decoded messages
// to handler until ctx is cancelled (§4.3).
func (s *RedisSource) Start(ctx context.Context, handler Handler) error {
	if s.ownsClient {
		defer s.client.Close()
	}

	pubsub := s.client.Subscribe(ctx, s.channelName)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("source: redis subscribe %q: %w", s.channelName, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg, handler)
		}
	}
}

func (s *RedisSource) handleMessage(ctx context.Context, msg *redis.Message, handler Handler) {
	var wire redisWireMessage
	if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
		s.log.Warn("redis: malformed message, dropping", "channel", msg.Channel, "error", err)
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
