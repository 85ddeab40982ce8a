package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestQueryGenerateID(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`INSERT INTO channel_sequences`).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(int64(7)))

	id, err := queryGenerateID(context.Background(), db, "room-1")
	if err != nil {
		t.Fatalf("queryGenerateID() error = %v", err)
	}
	if id != "7" {
		t.Errorf("queryGenerateID() = %q, want 7", id)
	}
}

func TestQueryStoreEvent(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT INTO sse_events`).
		WithArgs("room-1", int64(7), "message", "hi", "biz-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := model.SseEvent{EventType: "message", Data: "hi", BusinessID: "biz-1"}
	if err := queryStoreEvent(context.Background(), db, "room-1", "7", event); err != nil {
		t.Fatalf("queryStoreEvent() error = %v", err)
	}
}

func TestQueryStoreEvent_InvalidStreamID(t *testing.T) {
	db, _ := newMockDB(t)
	err := queryStoreEvent(context.Background(), db, "room-1", "not-a-number", model.SseEvent{})
	if err == nil {
		t.Fatal("expected error for non-numeric stream_id")
	}
}

func TestQueryMessagesAfter(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"stream_id", "event_type", "data", "business_id"}).
		AddRow(int64(8), "message", "second", "").
		AddRow(int64(9), "message", "third", "")

	mock.ExpectQuery(`SELECT stream_id, event_type, data, business_id`).
		WithArgs("room-1", int64(7)).
		WillReturnRows(rows)

	events, err := queryMessagesAfter(context.Background(), db, "room-1", "7")
	if err != nil {
		t.Fatalf("queryMessagesAfter() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].StreamID != "8" || events[1].StreamID != "9" {
		t.Errorf("unexpected stream ids: %+v", events)
	}
}

func TestQueryMessagesAfter_UnparseableCursorYieldsNoRows(t *testing.T) {
	db, _ := newMockDB(t)
	events, err := queryMessagesAfter(context.Background(), db, "room-1", "not-a-cursor")
	if err != nil {
		t.Fatalf("queryMessagesAfter() error = %v", err)
	}
	if events != nil {
		t.Errorf("expected nil events for an unparseable cursor, got %+v", events)
	}
}
