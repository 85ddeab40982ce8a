package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alfredjeanlab/ssegateway/internal/model"
)

func mustRegister(t *testing.T, r *Registry, connID, channelID string) (*Mailbox, chan struct{}) {
	t.Helper()
	done := make(chan struct{})
	mb := r.Register(model.ConnectionInfo{
		ConnectionID: connID,
		ChannelID:    channelID,
		InstanceID:   "inst-1",
		ConnectedAt:  time.Now(),
	}, done)
	return mb, done
}

func TestRegistry_DispatchToChannel(t *testing.T) {
	r := New(8, nil)
	mbA, _ := mustRegister(t, r, "c1", "room-1")
	mbB, _ := mustRegister(t, r, "c2", "room-2")

	n := r.Dispatch("room-1", model.SseEvent{Data: "hi"})
	if n != 1 {
		t.Fatalf("Dispatch() reached %d connections, want 1", n)
	}

	if mbA.Len() != 1 {
		t.Errorf("mbA.Len() = %d, want 1", mbA.Len())
	}
	if mbB.Len() != 0 {
		t.Errorf("mbB.Len() = %d, want 0", mbB.Len())
	}
}

func TestRegistry_BroadcastReachesEveryConnection(t *testing.T) {
	r := New(8, nil)
	mbA, _ := mustRegister(t, r, "c1", "room-1")
	mbB, _ := mustRegister(t, r, "c2", "room-2")
	mbC, doneC := mustRegister(t, r, "c3", "") // broadcast-only
	_ = doneC

	n := r.DispatchBroadcast(model.SseEvent{Data: "everyone"})
	if n != 3 {
		t.Fatalf("DispatchBroadcast() reached %d, want 3", n)
	}
	for name, mb := range map[string]*Mailbox{"A": mbA, "B": mbB, "C": mbC} {
		if mb.Len() != 1 {
			t.Errorf("mailbox %s Len() = %d, want 1", name, mb.Len())
		}
	}
}

func TestRegistry_UnregisterRemovesFromBothIndices(t *testing.T) {
	r := New(8, nil)
	mb, _ := mustRegister(t, r, "c1", "room-1")

	r.Unregister("c1")

	if r.ChannelConnectionCount("room-1") != 0 {
		t.Errorf("ChannelConnectionCount() = %d, want 0", r.ChannelConnectionCount("room-1"))
	}
	if len(r.ListConnections()) != 0 {
		t.Errorf("ListConnections() = %v, want empty", r.ListConnections())
	}
	if _, ok := mb.Pop(); ok {
		t.Error("mailbox should be closed after unregister")
	}
}

func TestRegistry_StatsSnapshot(t *testing.T) {
	r := New(8, nil)
	mustRegister(t, r, "c1", "room-1")
	mustRegister(t, r, "c2", "room-1")
	mustRegister(t, r, "c3", "")

	stats := r.StatsSnapshot()
	if stats.TotalConnections != 3 {
		t.Errorf("TotalConnections = %d, want 3", stats.TotalConnections)
	}
	if stats.BroadcastOnly != 1 {
		t.Errorf("BroadcastOnly = %d, want 1", stats.BroadcastOnly)
	}
	if stats.ChannelCount != 1 {
		t.Errorf("ChannelCount = %d, want 1", stats.ChannelCount)
	}
}

func TestRegistry_GCReapsStaleConnections(t *testing.T) {
	r := New(8, nil)
	_, done := mustRegister(t, r, "c1", "room-1")
	close(done) // simulate client disconnect without explicit Unregister

	r.sweep()

	if r.ChannelConnectionCount("room-1") != 0 {
		t.Errorf("stale connection was not reaped")
	}
}

func TestRegistry_RunHeartbeatDispatchesUntilCancelled(t *testing.T) {
	r := New(8, nil)
	mb, _ := mustRegister(t, r, "c1", "room-1")

	ctx, cancel := context.WithCancel(context.Background())
	go r.RunHeartbeat(ctx, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	cancel()

	if mb.Len() == 0 {
		t.Error("expected at least one heartbeat to be dispatched")
	}
}
