package source

import (
	"context"
	"testing"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

func TestDirectPush_PublishBeforeStartFails(t *testing.T) {
	d := NewDirectPush()
	if _, err := d.Publish(context.Background(), model.Broadcast("x", "y")); err == nil {
		t.Fatal("expected error publishing before Start")
	}
}

func TestDirectPush_PublishAfterStartReachesHandler(t *testing.T) {
	d := NewDirectPush()

	received := make(chan model.IncomingMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = d.Start(ctx, func(ctx context.Context, msg model.IncomingMessage) string {
			received <- msg
			return "42"
		})
	}()

	// Start records the handler asynchronously; give it a moment.
	time.Sleep(10 * time.Millisecond)

	streamID, err := d.Publish(context.Background(), model.ForChannel("room-1", "message", "hi"))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if streamID != "42" {
		t.Errorf("Publish() streamID = %q, want 42", streamID)
	}

	select {
	case msg := <-received:
		if msg.Data != "hi" || msg.Channel() != "room-1" {
			t.Errorf("received = %+v, want data=hi channel=room-1", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
