package push

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"parkwise/internal/logger"
)

// recordingSink collects what a transport delivers.
type recordingSink struct {
	slots chan SlotChanged
	conns chan bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		slots: make(chan SlotChanged, 16),
		conns: make(chan bool, 16),
	}
}

func (s *recordingSink) SlotChanged(ev SlotChanged)                { s.slots <- ev }
func (s *recordingSink) ConnectionChanged(connected bool, _ error) { s.conns <- connected }

// fakeTransport records room membership and exposes the hub as a sink.
type fakeTransport struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	sink   chan Sink
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sink: make(chan Sink, 1)}
}

func (f *fakeTransport) Run(ctx context.Context, sink Sink) error {
	f.sink <- sink
	<-ctx.Done()
	return nil
}

func (f *fakeTransport) Join(lotID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, lotID)
}

func (f *fakeTransport) Leave(lotID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, lotID)
}

func (f *fakeTransport) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins), len(f.leaves)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func startHub(t *testing.T) (*Hub, *fakeTransport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	transport := newFakeTransport()
	hub := NewHub(transport, logger.Discard())
	go hub.Run(ctx)
	return hub, transport
}

func TestDecodeSlotUpdate(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantOK  bool
		wantErr bool
	}{
		{"envelope", `{"type":"slotUpdate","payload":{"_id":"s1","parkingLotId":"l1","status":"occupied"}}`, true, false},
		{"bare payload", `{"_id":"s1","parkingLotId":"l1","status":"available"}`, true, false},
		{"other type", `{"type":"joinLotRoom","payload":"l1"}`, false, false},
		{"missing status", `{"_id":"s1","parkingLotId":"l1"}`, false, true},
		{"unknown status", `{"_id":"s1","parkingLotId":"l1","status":"deleted"}`, false, true},
		{"maintenance", `{"_id":"s1","parkingLotId":"l1","status":"maintenance"}`, true, false},
		{"not json", `slotUpdate`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := DecodeSlotUpdate([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (ev.SlotID != "s1" || ev.LotID != "l1") {
				t.Errorf("decoded %+v", ev)
			}
		})
	}
}

func TestHub_DeliversOnlySubscribedLot(t *testing.T) {
	hub, _ := startHub(t)

	sub := hub.Subscribe("lot-1")
	defer sub.Close()

	first := nextEvent(t, sub)
	if first.Kind != EventConnection || first.Connected {
		t.Fatalf("first event = %+v, want disconnected connection state", first)
	}

	hub.SlotChanged(SlotChanged{SlotID: "x", LotID: "lot-2", Status: "occupied"})
	hub.SlotChanged(SlotChanged{SlotID: "a", LotID: "lot-1", Status: "occupied"})

	ev := nextEvent(t, sub)
	if ev.Kind != EventSlotChanged || ev.Slot.SlotID != "a" {
		t.Fatalf("got %+v, want slot a", ev)
	}
}

func TestHub_JoinsOnceAndLeavesWithLastSubscriber(t *testing.T) {
	hub, transport := startHub(t)

	a := hub.Subscribe("lot-1")
	b := hub.Subscribe("lot-1")
	nextEvent(t, a)
	nextEvent(t, b)

	if joins, _ := transport.counts(); joins != 1 {
		t.Fatalf("joins = %d, want 1", joins)
	}

	a.Close()
	a.Close()
	eventually(t, func() bool { return hub.SubscriberCount("lot-1") == 1 })
	if _, leaves := transport.counts(); leaves != 0 {
		t.Fatalf("left the room while a subscriber remained")
	}

	b.Close()
	eventually(t, func() bool {
		_, leaves := transport.counts()
		return leaves == 1
	})
}

func TestHub_ClosedSubscriptionReceivesNothing(t *testing.T) {
	hub, _ := startHub(t)

	sub := hub.Subscribe("lot-1")
	nextEvent(t, sub)
	sub.Close()

	hub.SlotChanged(SlotChanged{SlotID: "a", LotID: "lot-1", Status: "occupied"})

	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("received %+v after Close", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel was not closed")
	}
}

func TestHub_BroadcastsConnectionState(t *testing.T) {
	hub, transport := startHub(t)

	sub := hub.Subscribe("lot-1")
	defer sub.Close()
	nextEvent(t, sub)

	sink := <-transport.sink
	sink.ConnectionChanged(true, nil)

	ev := nextEvent(t, sub)
	if ev.Kind != EventConnection || !ev.Connected {
		t.Fatalf("got %+v, want connected", ev)
	}
	eventually(t, hub.Connected)
}

func TestHub_SlowSubscriberKeepsLatestState(t *testing.T) {
	hub, _ := startHub(t)

	sub := hub.Subscribe("lot-1")
	defer sub.Close()
	nextEvent(t, sub)

	const slots = 10
	for i := 0; i < 3*subscriptionBuffer; i++ {
		status := "occupied"
		if i >= 3*subscriptionBuffer-slots {
			status = "available"
		}
		hub.SlotChanged(SlotChanged{SlotID: fmt.Sprintf("s%d", i%slots), LotID: "lot-1", Status: status})
	}

	latest := make(map[string]string)
	settled := func() bool {
		if len(latest) != slots {
			return false
		}
		for _, status := range latest {
			if status != "available" {
				return false
			}
		}
		return true
	}
	for !settled() {
		ev := nextEvent(t, sub)
		if ev.Kind == EventSlotChanged {
			latest[ev.Slot.SlotID] = ev.Slot.Status
		}
	}

	if n := hub.SubscriberCount("lot-1"); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	hub.SlotChanged(SlotChanged{SlotID: "s0", LotID: "lot-1", Status: "reserved"})
	if ev := nextEvent(t, sub); ev.Slot.SlotID != "s0" || ev.Slot.Status != "reserved" {
		t.Fatalf("got %+v after burst, want s0 reserved", ev)
	}
}

func TestHub_SubscribeAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(newFakeTransport(), logger.Discard())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	sub := hub.Subscribe("lot-1")
	if _, ok := <-sub.Events(); ok {
		t.Fatal("subscription on a stopped hub should be closed")
	}
	sub.Close()
}
