package registry

import (
	"testing"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

func TestMailbox_PushPop(t *testing.T) {
	m := NewMailbox(4)
	m.Push(model.SseEvent{Data: "a"})
	m.Push(model.SseEvent{Data: "b"})

	got, ok := m.Pop()
	if !ok || got.Data != "a" {
		t.Fatalf("Pop() = %+v, %v, want a, true", got, ok)
	}
	got, ok = m.Pop()
	if !ok || got.Data != "b" {
		t.Fatalf("Pop() = %+v, %v, want b, true", got, ok)
	}
}

func TestMailbox_OverflowDropsOldest(t *testing.T) {
	m := NewMailbox(2)
	m.Push(model.SseEvent{Data: "1"})
	m.Push(model.SseEvent{Data: "2"})
	m.Push(model.SseEvent{Data: "3"}) // should evict "1"

	if m.SlowConsumerCount != 1 {
		t.Errorf("SlowConsumerCount = %d, want 1", m.SlowConsumerCount)
	}

	got, _ := m.Pop()
	if got.Data != "2" {
		t.Errorf("first Pop() = %q, want 2", got.Data)
	}
	got, _ = m.Pop()
	if got.Data != "3" {
		t.Errorf("second Pop() = %q, want 3", got.Data)
	}
}

func TestMailbox_CloseWakesConsumer(t *testing.T) {
	m := NewMailbox(1)
	done := make(chan struct{})

	go func() {
		_, ok := m.Pop()
		if ok {
			t.Error("Pop() after close should return ok=false")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop() did not unblock after Close()")
	}
}

func TestMailbox_PushAfterCloseIsNoop(t *testing.T) {
	m := NewMailbox(2)
	m.Close()
	m.Push(model.SseEvent{Data: "x"})

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after push on closed mailbox", m.Len())
	}
}
