// Package config loads gateway configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Config holds every environment-tunable setting recognized by the gateway,
// matching the Environment variables table in §6 of the specification.
type Config struct {
	Port        string // PORT (default "8080")
	PushPort    string // PUSH_PORT (default "9000")
	GRPCAddr    string // GRPC_ADDR (default ":9090"), the introspection gRPC health/reflection listener
	InstanceID  string // INSTANCE_ID (default hostname or random UUID)
	GatewayAddr string // GATEWAY_ADDR (this instance's reachable push-API address)

	RedisURL string // REDIS_URL (coordination/storage backend)

	ChannelTTL time.Duration // CHANNEL_TTL seconds (default 60s)

	EnableDashboard bool // ENABLE_DASHBOARD (default true)

	HeartbeatInterval time.Duration // default 30s
	CleanupInterval   time.Duration // default 30s
	MailboxCapacity   int           // default 256

	AuthToken string // GATEWAY_AUTH_TOKEN (optional, empty = auth disabled)

	StorageBackend string // STORAGE_BACKEND: "memory" (default), "redis", "postgres"
	DatabaseURL    string // DATABASE_URL, required when STORAGE_BACKEND=postgres

	NATSURL     string // NATS_URL, enables the NATS source when set
	NATSSubject string // NATS_SUBJECT (default "sse.events")

	RedisPubSubChannel string // REDIS_PUBSUB_CHANNEL (default "sse:events"); the Redis source subscribes here whenever REDIS_URL is set, whatever STORAGE_BACKEND is

	GCPProjectID    string // GCP_PUBSUB_PROJECT_ID, enables the GCP Pub/Sub source when set together with GCPSubscription
	GCPSubscription string // GCP_PUBSUB_SUBSCRIPTION

	ArchiveS3Bucket   string        // ARCHIVE_S3_BUCKET (enables S3 event archival when set)
	ArchiveS3Endpoint string        // ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Prefix   string        // ARCHIVE_S3_PREFIX (default "sse-gateway")
	ArchiveInterval   time.Duration // ARCHIVE_INTERVAL (default 5m; 0 = disabled)
}

// Load reads Config from the process environment, applying the defaults
// documented in §6 of the specification.
func Load() (*Config, error) {
	c := &Config{
		Port:              envOrDefault("PORT", "8080"),
		PushPort:          envOrDefault("PUSH_PORT", "9000"),
		GRPCAddr:          envOrDefault("GRPC_ADDR", ":9090"),
		InstanceID:        envOrDefault("INSTANCE_ID", defaultInstanceID()),
		GatewayAddr:       os.Getenv("GATEWAY_ADDR"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AuthToken:         os.Getenv("GATEWAY_AUTH_TOKEN"),
		StorageBackend:    envOrDefault("STORAGE_BACKEND", "memory"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubject:        envOrDefault("NATS_SUBJECT", "sse.events"),
		RedisPubSubChannel: envOrDefault("REDIS_PUBSUB_CHANNEL", "sse:events"),
		GCPProjectID:       os.Getenv("GCP_PUBSUB_PROJECT_ID"),
		GCPSubscription:    os.Getenv("GCP_PUBSUB_SUBSCRIPTION"),
		ArchiveS3Bucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Prefix:   envOrDefault("ARCHIVE_S3_PREFIX", "sse-gateway"),
	}

	enableDashboard, err := parseBoolDefault("ENABLE_DASHBOARD", true)
	if err != nil {
		return nil, err
	}
	c.EnableDashboard = enableDashboard

	channelTTL, err := parseDurationSecondsDefault("CHANNEL_TTL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	c.ChannelTTL = channelTTL

	heartbeat, err := parseDurationSecondsDefault("HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	c.HeartbeatInterval = heartbeat

	cleanup, err := parseDurationSecondsDefault("CLEANUP_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	c.CleanupInterval = cleanup

	archiveInterval, err := parseDurationDefault("ARCHIVE_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	c.ArchiveInterval = archiveInterval

	mailboxCap := 256
	if v := os.Getenv("MAILBOX_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAILBOX_CAPACITY: %w", err)
		}
		mailboxCap = n
	}
	c.MailboxCapacity = mailboxCap

	if c.StorageBackend == "postgres" && c.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
	}
	if c.StorageBackend == "redis" && c.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND=redis")
	}

	return c, nil
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolDefault(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseDurationSecondsDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func parseDurationDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
