// Package coordinator implements the multi-instance coordinator (C7): the
// Redis-backed instance registry and channel-ownership map that let a push
// arriving at any instance find its way to the one instance holding the
// live SSE connection, plus the push API's route handlers. Grounded on the
// teacher's http.go route-table style (mux.HandleFunc + writeJSON/writeError
// helpers) and VitalConnect3's use of go-redis for keyed state with TTLs.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// instancesKey is the Redis set of all known instance IDs (§6).
const instancesKey = "gateway:instances"

func instanceKey(id string) string {
	return fmt.Sprintf("gateway:instance:%s", id)
}

func channelKey(channelID string) string {
	return fmt.Sprintf("channel:%s:instance", channelID)
}

// ErrChannelNotFound is returned by ChannelOwner when no instance currently
// holds a live connection for the channel.
var ErrChannelNotFound = errors.New("coordinator: channel not found")

// InstanceRecord describes one known gateway instance (§3).
type InstanceRecord struct {
	InstanceID string
	Addr       string // host:port of that instance's push API
}

// ChannelMapping describes which instance currently owns a channel (§3).
type ChannelMapping struct {
	ChannelID  string
	InstanceID string
}

// Coordinator is the Redis-backed implementation of C7.
type Coordinator struct {
	client     *redis.Client
	instanceID string
	selfAddr   string
	channelTTL time.Duration
	log        *slog.Logger
}

// New creates a coordinator. selfAddr is this instance's own push API
// address (host:port), published to other instances so they can forward
// pushes here. channelTTL matches CHANNEL_TTL (§6 env vars).
func New(client *redis.Client, instanceID, selfAddr string, channelTTL time.Duration, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{client: client, instanceID: instanceID, selfAddr: selfAddr, channelTTL: channelTTL, log: log}
}

// instanceTTL is kept well above the heartbeat interval so a single missed
// beat doesn't evict a healthy instance (grounded on the teacher's presence
// tracker's 3x-heartbeat staleness window).
func instanceTTL(heartbeatInterval time.Duration) time.Duration {
	return 3 * heartbeatInterval
}

// RegisterInstance adds this instance to the shared registry and sets its
// initial TTL. Call once at startup before serving traffic.
func (c *Coordinator) RegisterInstance(ctx context.Context, heartbeatInterval time.Duration) error {
	if err := c.client.SAdd(ctx, instancesKey, c.instanceID).Err(); err != nil {
		return fmt.Errorf("coordinator: register instance: %w", err)
	}
	return c.client.Set(ctx, instanceKey(c.instanceID), c.selfAddr, instanceTTL(heartbeatInterval)).Err()
}

// Heartbeat refreshes this instance's TTL so it isn't pruned as stale.
func (c *Coordinator) Heartbeat(ctx context.Context, heartbeatInterval time.Duration) error {
	return c.client.Set(ctx, instanceKey(c.instanceID), c.selfAddr, instanceTTL(heartbeatInterval)).Err()
}

// DeregisterInstance removes this instance from the shared registry on
// graceful shutdown (§3 InstanceRecord lifecycle), rather than waiting for
// its TTL to lapse.
func (c *Coordinator) DeregisterInstance(ctx context.Context) error {
	if err := c.client.Del(ctx, instanceKey(c.instanceID)).Err(); err != nil {
		return fmt.Errorf("coordinator: deregister instance: %w", err)
	}
	return c.client.SRem(ctx, instancesKey, c.instanceID).Err()
}

// RunHeartbeat periodically refreshes this instance's registry entry until
// ctx is cancelled (§4.7).
func (c *Coordinator) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Heartbeat(ctx, interval); err != nil {
				c.log.Warn("coordinator: heartbeat failed", "error", err)
			}
		}
	}
}

// ListInstances returns every instance currently believed live, pruning
// membership entries whose TTL'd key has already expired.
func (c *Coordinator) ListInstances(ctx context.Context) ([]InstanceRecord, error) {
	ids, err := c.client.SMembers(ctx, instancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("coordinator: list instances: %w", err)
	}

	records := make([]InstanceRecord, 0, len(ids))
	for _, id := range ids {
		addr, err := c.client.Get(ctx, instanceKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			c.client.SRem(ctx, instancesKey, id)
			continue
		}
		if err != nil {
			c.log.Warn("coordinator: list instances lookup failed", "instance_id", id, "error", err)
			continue
		}
		records = append(records, InstanceRecord{InstanceID: id, Addr: addr})
	}
	return records, nil
}

// ClaimChannel records this instance as the owner of channelID, refreshing
// the TTL. Called whenever a connection for a channel registers on this
// instance, and on every tick of RegistryHooks' per-channel refresh loop
// while connections remain (§3 ChannelMapping lifecycle).
func (c *Coordinator) ClaimChannel(ctx context.Context, channelID string) error {
	return c.client.Set(ctx, channelKey(channelID), c.instanceID, c.channelTTL).Err()
}

// ReleaseChannel removes the channel mapping. Called when the last
// connection for a channel on this instance unregisters.
func (c *Coordinator) ReleaseChannel(ctx context.Context, channelID string) error {
	return c.client.Del(ctx, channelKey(channelID)).Err()
}

// ChannelOwner returns the instance_id currently owning channelID, or
// ErrChannelNotFound if no instance holds a live connection for it.
func (c *Coordinator) ChannelOwner(ctx context.Context, channelID string) (string, error) {
	owner, err := c.client.Get(ctx, channelKey(channelID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrChannelNotFound
	}
	if err != nil {
		return "", fmt.Errorf("coordinator: channel owner lookup: %w", err)
	}
	return owner, nil
}

// ListChannels returns every channel mapping currently known to Redis.
func (c *Coordinator) ListChannels(ctx context.Context) ([]ChannelMapping, error) {
	var mappings []ChannelMapping
	iter := c.client.Scan(ctx, 0, "channel:*:instance", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		owner, err := c.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		channelID := key
		const prefix, suffix = "channel:", ":instance"
		if len(key) > len(prefix)+len(suffix) {
			channelID = key[len(prefix) : len(key)-len(suffix)]
		}
		mappings = append(mappings, ChannelMapping{ChannelID: channelID, InstanceID: owner})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("coordinator: list channels: %w", err)
	}
	return mappings, nil
}

// InstanceID returns this coordinator's own instance_id.
func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// IsAvailable reports whether Redis is currently reachable. GET /ready
// does not consult it; readiness depends only on storage and sources.
func (c *Coordinator) IsAvailable(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}
