// Package archive periodically snapshots each actively-subscribed channel's
// recent history to S3 as NDJSON, for cold-storage durability beyond the
// storage contract's bounded retention (spec.md §4.2). This is purely
// additive: the gateway behaves identically with it disabled, and it holds
// no opinion on C1–C7's contracts or invariants.
//
// Grounded on the teacher's internal/sync.Scheduler: a ticker-driven loop
// that exports from the store and writes to one or more destinations,
// logging failures per-destination rather than aborting the whole run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
	"github.com/alfredjeanlab/ssegateway/internal/storage"
)

// ConnectionLister is the slice of registry.Registry the archiver needs: the
// set of channels currently worth snapshotting. A channel with no local
// connection isn't actively producing new history on this instance, so it's
// skipped until a connection reappears.
type ConnectionLister interface {
	ListConnections() []model.ConnectionInfo
}

// Destination writes one archived object, keyed by name, to cold storage.
type Destination interface {
	Write(ctx context.Context, key string, data []byte) error
}

// Scheduler runs periodic channel snapshots to one or more destinations.
type Scheduler struct {
	storage      storage.Storage
	lister       ConnectionLister
	destinations []Destination
	interval     time.Duration
	prefix       string
	log          *slog.Logger

	cursorMu sync.Mutex
	cursors  map[string]string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that archives from storage to the given
// destinations at the specified interval. prefix namespaces archived object
// keys (ARCHIVE_S3_PREFIX).
func NewScheduler(store storage.Storage, lister ConnectionLister, destinations []Destination, interval time.Duration, prefix string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		storage:      store,
		lister:       lister,
		destinations: destinations,
		interval:     interval,
		prefix:       prefix,
		log:          log,
		cursors:      make(map[string]string),
	}
}

// Start begins periodic archival. It runs an initial pass immediately, then
// on each tick, until Stop is called.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current pass, if any, to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.snapshotOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.snapshotOnce(ctx)
		}
	}
}

// snapshotOnce exports every actively-connected channel's events newer than
// its last archived cursor, writing one NDJSON object per channel with
// anything new. Channels with nothing new since the last pass are skipped
// entirely — no empty objects are written.
func (s *Scheduler) snapshotOnce(ctx context.Context) {
	channels := s.activeChannels()
	var archived int

	for _, channelID := range channels {
		data, lastID, n, err := s.exportChannel(ctx, channelID)
		if err != nil {
			s.log.Error("archive export failed", "channel_id", channelID, "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		key := fmt.Sprintf("%s/%s/%d.ndjson", s.prefix, channelID, time.Now().UnixNano())
		for _, dest := range s.destinations {
			if err := dest.Write(ctx, key, data); err != nil {
				s.log.Error("archive destination write failed", "channel_id", channelID, "key", key, "error", err)
				continue
			}
		}
		s.setCursor(channelID, lastID)
		archived += n
	}

	if archived > 0 {
		s.log.Info("archive snapshot completed", "channels", len(channels), "events", archived)
	}
}

// exportChannel returns the NDJSON encoding of every event newer than this
// channel's last archived cursor, the new cursor to advance to, and the
// event count.
func (s *Scheduler) exportChannel(ctx context.Context, channelID string) ([]byte, string, int, error) {
	after := s.cursorFor(channelID)

	events, err := s.storage.GetMessagesAfter(ctx, channelID, after)
	if err != nil {
		return nil, after, 0, err
	}
	if len(events) == 0 {
		return nil, after, 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, after, 0, fmt.Errorf("encode event: %w", err)
		}
	}

	lastID := events[len(events)-1].StreamID
	return buf.Bytes(), lastID, len(events), nil
}

func (s *Scheduler) activeChannels() []string {
	seen := make(map[string]struct{})
	for _, info := range s.lister.ListConnections() {
		if info.IsBroadcastOnly() {
			continue
		}
		seen[info.ChannelID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	return out
}

func (s *Scheduler) cursorFor(channelID string) string {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	if cur, ok := s.cursors[channelID]; ok {
		return cur
	}
	// "0" rather than "" seeds a first-run full catch-up: storage backends'
	// stream IDs are positive integers, so stream_id > 0 matches everything
	// ever stored, while "" is storage's own "no cold catch-up" sentinel
	// (spec.md §4.2) and would return nothing on a channel's first pass.
	return "0"
}

func (s *Scheduler) setCursor(channelID, id string) {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	s.cursors[channelID] = id
}
