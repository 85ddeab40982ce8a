package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

func queryGenerateID(ctx context.Context, db executor, channelID string) (string, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO channel_sequences (channel_id, next_id)
		VALUES ($1, 1)
		ON CONFLICT (channel_id) DO UPDATE SET next_id = channel_sequences.next_id + 1
		RETURNING next_id`,
		channelID,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("generate_id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func queryStoreEvent(ctx context.Context, db executor, channelID, streamID string, event model.SseEvent) error {
	id, err := strconv.ParseInt(streamID, 10, 64)
	if err != nil {
		return fmt.Errorf("store: invalid stream_id %q: %w", streamID, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sse_events (channel_id, stream_id, event_type, data, business_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id, stream_id) DO NOTHING`,
		channelID, id, event.EventType, event.Data, event.BusinessID,
	)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

func queryMessagesAfter(ctx context.Context, db executor, channelID, afterID string) ([]model.SseEvent, error) {
	after, err := strconv.ParseInt(afterID, 10, 64)
	if err != nil {
		// An unparseable cursor is treated as "unknown cursor": no replay.
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT stream_id, event_type, data, business_id
		FROM sse_events
		WHERE channel_id = $1 AND stream_id > $2
		ORDER BY stream_id ASC`,
		channelID, after,
	)
	if err != nil {
		return nil, fmt.Errorf("get_messages_after: %w", err)
	}
	defer rows.Close()

	var events []model.SseEvent
	for rows.Next() {
		var id int64
		var e model.SseEvent
		if err := rows.Scan(&id, &e.EventType, &e.Data, &e.BusinessID); err != nil {
			return nil, fmt.Errorf("get_messages_after: scan: %w", err)
		}
		e.StreamID = strconv.FormatInt(id, 10)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get_messages_after: rows: %w", err)
	}
	return events, nil
}
