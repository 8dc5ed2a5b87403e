package turnpoller

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/dlguddus/solana/pkg/blockstore"
	"github.com/dlguddus/solana/pkg/clusterinfo"
	"github.com/dlguddus/solana/pkg/rpcclient"
)

func b58Hash(b byte) string {
	var h [32]byte
	h[0] = b
	return base58.Encode(h[:])
}

// TestPoller_RejectsStaleBlockhash_S5 is Scenario S5: the stub replays
// (hashA, 500), (hashA, 500), (hashB, 500). The poller must reject the
// first two calls (same as previous) and return on the third.
func TestPoller_RejectsStaleBlockhash_S5(t *testing.T) {
	hashA := b58Hash(0xAA)
	hashB := b58Hash(0xBB)

	stub := &rpcclient.Stub{
		SlotsPerSegment: 100,
		Turns: []rpcclient.StubTurn{
			{Blockhash: hashA, Slot: 500},
			{Blockhash: hashA, Slot: 500},
			{Blockhash: hashB, Slot: 500},
		},
	}

	var self [32]byte
	registry := clusterinfo.New(self)
	registry.Upsert(clusterinfo.ContactInfo{Pubkey: [32]byte{1}})

	p := New(stub, registry, time.Millisecond, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	turn, err := p.PollForBlockhashAndSlot(ctx, hashA, 100)
	if err != nil {
		t.Fatalf("PollForBlockhashAndSlot: %v", err)
	}

	wantHash, _ := base58.Decode(hashB)
	var want [32]byte
	copy(want[:], wantHash)

	if turn.Blockhash != want {
		t.Fatalf("blockhash = %x, want %x", turn.Blockhash, want)
	}
	if turn.Slot != 500 {
		t.Fatalf("slot = %d, want 500", turn.Slot)
	}
}

func TestPoller_EmptyPeerSetBacksOff(t *testing.T) {
	hash := b58Hash(0x01)
	stub := &rpcclient.Stub{Turns: []rpcclient.StubTurn{{Blockhash: hash, Slot: 10}}}

	var self [32]byte
	registry := clusterinfo.New(self) // no peers upserted

	p := New(stub, registry, time.Millisecond, 5*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := p.PollForBlockhashAndSlot(ctx, "", 1)
	if err == nil {
		t.Fatal("expected context deadline error with no peers, got nil")
	}
}

func TestPoller_CancelStopsPolling(t *testing.T) {
	stub := &rpcclient.Stub{Turns: []rpcclient.StubTurn{{Blockhash: b58Hash(0x01), Slot: 10}}}

	var self [32]byte
	registry := clusterinfo.New(self)
	registry.Upsert(clusterinfo.ContactInfo{Pubkey: [32]byte{1}})

	p := New(stub, registry, time.Hour, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PollForBlockhashAndSlot(ctx, "", 1)
	if err == nil {
		t.Fatal("expected error on pre-canceled context")
	}
}

func TestPoller_PollForSegment_WaitsForCompleteRange(t *testing.T) {
	hash := b58Hash(0x02)
	stub := &rpcclient.Stub{Turns: []rpcclient.StubTurn{{Blockhash: hash, Slot: 200}}}

	var self [32]byte
	registry := clusterinfo.New(self)
	registry.Upsert(clusterinfo.ContactInfo{Pubkey: [32]byte{1}})

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, 0)
	store := blockstore.New()
	store.Insert(blockstore.Shred{Slot: 199, Index: 0, Last: true, Payload: buf})

	p := New(stub, registry, time.Millisecond, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	turn, startSlot, err := p.PollForSegment(ctx, "", store, 1)
	if err != nil {
		t.Fatalf("PollForSegment: %v", err)
	}
	if startSlot != 199 {
		t.Fatalf("startSlot = %d, want 199", startSlot)
	}
	if turn.Slot != 200 {
		t.Fatalf("turn.Slot = %d, want 200", turn.Slot)
	}
}
