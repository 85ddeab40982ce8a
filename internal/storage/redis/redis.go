// Package redis implements storage.Storage on top of Redis Streams,
// keyed as sse:stream:{channel_id} (§6 persisted-state key table).
// Grounded on VitalConnect3's use of redis/go-redis/v9 for keyed state,
// generalized from plain GET/SET to the Streams API so replay naturally
// returns entries in issue order without a separate sorted-set index.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

// MaxLen bounds each channel's stream via approximate trimming so replay
// history doesn't grow unbounded.
const MaxLen = 1000

// StreamTTL is the expiry set on a channel's stream key on every Store, so
// history of a channel that stops receiving events is eventually dropped.
const StreamTTL = time.Hour

func streamKey(channelID string) string {
	return fmt.Sprintf("sse:stream:%s", channelID)
}

func counterKey(channelID string) string {
	return fmt.Sprintf("sse:stream:%s:seq", channelID)
}

// Storage is a storage.Storage backend over Redis Streams.
type Storage struct {
	client *redis.Client
}

// New wraps an existing Redis client. The caller owns the client's
// lifecycle (shared with the coordinator when both use the same Redis).
func New(client *redis.Client) *Storage {
	return &Storage{client: client}
}

// NewFromURL builds and owns a Redis client parsed from a redis:// URL.
func NewFromURL(url string) (*Storage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("storage/redis: parse url: %w", err)
	}
	return New(redis.NewClient(opts)), nil
}

// GenerateID returns a strictly increasing per-channel sequence number via
// INCR, satisfying the per-channel monotonicity invariant (§3) even though
// the underlying stream entry ID additionally carries a "-0" suffix.
func (s *Storage) GenerateID(ctx context.Context, channelID string) (string, error) {
	n, err := s.client.Incr(ctx, counterKey(channelID)).Result()
	if err != nil {
		return "", fmt.Errorf("storage/redis: generate_id: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}

// Store appends the event to the channel's stream at the entry ID derived
// from streamID, then trims the stream to MaxLen (approximate trim, cheap)
// and refreshes the stream key's StreamTTL expiry.
func (s *Storage) Store(ctx context.Context, channelID, streamID string, event model.SseEvent) error {
	key := streamKey(channelID)
	_, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		ID:     streamID + "-0",
		Values: map[string]any{
			"event_type":  event.EventType,
			"data":        event.Data,
			"business_id": event.BusinessID,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("storage/redis: store: %w", err)
	}
	s.client.XTrimMaxLenApprox(ctx, key, MaxLen, 0)
	s.client.Expire(ctx, key, StreamTTL)
	return nil
}

// GetMessagesAfter returns stream entries with an ID greater than afterID,
// oldest first.
func (s *Storage) GetMessagesAfter(ctx context.Context, channelID, afterID string) ([]model.SseEvent, error) {
	if afterID == "" {
		return nil, nil
	}

	start := fmt.Sprintf("(%s-0", afterID)
	entries, err := s.client.XRange(ctx, streamKey(channelID), start, "+").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("storage/redis: get_messages_after: %w", err)
	}

	events := make([]model.SseEvent, 0, len(entries))
	for _, entry := range entries {
		streamID, _, _ := strings.Cut(entry.ID, "-")
		events = append(events, model.SseEvent{
			EventType:  stringField(entry.Values, "event_type"),
			Data:       stringField(entry.Values, "data"),
			BusinessID: stringField(entry.Values, "business_id"),
			StreamID:   streamID,
		})
	}
	return events, nil
}

func stringField(values map[string]any, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IsAvailable pings Redis (§6 GET /ready).
func (s *Storage) IsAvailable(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Name identifies this backend for observability.
func (s *Storage) Name() string {
	return "redis"
}
