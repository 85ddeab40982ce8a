// Package postgres implements storage.Storage backed by PostgreSQL,
// grounded on the teacher's internal/store/postgres package: database/sql
// over lib/pq, golang-migrate/v4 driving embedded migrations, a shared
// executor interface so the same query functions serve both *sql.DB and
// *sql.Tx. Unlike the teacher's store, there is no RunInTransaction here —
// GenerateID's per-channel monotonicity is enforced with a single atomic
// INSERT ... ON CONFLICT DO UPDATE ... RETURNING rather than a
// client-managed transaction.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time check that Storage implements storage.Storage.
var _ storage.Storage = (*Storage)(nil)

// executor is satisfied by both *sql.DB and *sql.Tx, though this backend
// only ever uses the *sql.DB form.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage implements storage.Storage on top of a PostgreSQL database: a
// BIGINT sequence per channel_id and an append-only sse_events table for
// replay (§6, §9 "optional Postgres backend").
type Storage struct {
	db *sql.DB
}

// New opens a connection to databaseURL, configures the pool, and applies
// any pending migrations before returning.
func New(databaseURL string) (*Storage, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage/postgres: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage/postgres: migrate: %w", err)
	}

	return &Storage{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// GenerateID atomically increments and returns the channel's sequence via
// an upsert-then-return, so concurrent callers across instances still
// observe a strictly increasing per-channel sequence (§3).
func (s *Storage) GenerateID(ctx context.Context, channelID string) (string, error) {
	return queryGenerateID(ctx, s.db, channelID)
}

// Store appends the event to sse_events. Idempotent on (channel_id,
// stream_id): a retried store for an already-persisted stream_id is a
// silent no-op rather than a conflict error.
func (s *Storage) Store(ctx context.Context, channelID, streamID string, event model.SseEvent) error {
	return queryStoreEvent(ctx, s.db, channelID, streamID, event)
}

// GetMessagesAfter returns events with stream_id > afterID, oldest first.
func (s *Storage) GetMessagesAfter(ctx context.Context, channelID, afterID string) ([]model.SseEvent, error) {
	if afterID == "" {
		return nil, nil
	}
	return queryMessagesAfter(ctx, s.db, channelID, afterID)
}

// IsAvailable pings the database (§6 GET /ready).
func (s *Storage) IsAvailable(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Name identifies this backend for observability.
func (s *Storage) Name() string {
	return "postgres"
}
