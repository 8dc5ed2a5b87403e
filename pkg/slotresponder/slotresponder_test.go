package slotresponder

import (
	"context"
	"net"
	"testing"
	"time"
)

type fixedSlotSource struct {
	slot uint64
	ok   bool
}

func (f fixedSlotSource) CommittedSlot() (uint64, bool) { return f.slot, f.ok }

// TestRoundTrip_S6 is Scenario S6: a client queries a responder that has
// committed to a slot and gets that slot back.
func TestRoundTrip_S6(t *testing.T) {
	source := fixedSlotSource{slot: 4242, ok: true}

	r, err := New(&net.UDPAddr{Port: 0}, source, 200*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var requester [32]byte
	requester[0] = 0x7

	slot, err := QuerySlot(context.Background(), r.LocalAddr(), requester, 10, 50*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("QuerySlot: %v", err)
	}
	if slot != 4242 {
		t.Fatalf("slot = %d, want 4242", slot)
	}

	cancel()
	<-done
}

func TestQuerySlot_NoResponderTimesOut(t *testing.T) {
	// bind and immediately close so nothing answers.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := conn.LocalAddr().(*net.UDPAddr)
	conn.Close()

	var requester [32]byte
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = QuerySlot(ctx, addr, requester, 3, 10*time.Millisecond, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected error with no responder listening")
	}
}

func TestResponder_NoCommittedSlotIgnoresQuery(t *testing.T) {
	source := fixedSlotSource{ok: false}

	r, err := New(&net.UDPAddr{Port: 0}, source, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var requester [32]byte
	_, err = QuerySlot(context.Background(), r.LocalAddr(), requester, 2, 20*time.Millisecond, 40*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout when responder has no committed slot")
	}

	cancel()
	<-done
}
