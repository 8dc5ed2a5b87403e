package blockstore

import "testing"

func TestBlockstore_IsSlotFull(t *testing.T) {
	b := New()

	if b.IsSlotFull(10) {
		t.Fatal("empty slot reported full")
	}

	b.Insert(Shred{Slot: 10, Index: 0, Payload: []byte("a")})
	b.Insert(Shred{Slot: 10, Index: 1, Last: true, Payload: []byte("b")})

	if !b.IsSlotFull(10) {
		t.Fatal("slot with all shreds reported incomplete")
	}
}

func TestBlockstore_IsSlotFull_MissingMiddle(t *testing.T) {
	b := New()

	b.Insert(Shred{Slot: 1, Index: 0, Payload: []byte("a")})
	b.Insert(Shred{Slot: 1, Index: 2, Last: true, Payload: []byte("c")})

	if b.IsSlotFull(1) {
		t.Fatal("slot missing index 1 reported full")
	}
}

func TestBlockstore_IsRangeFull(t *testing.T) {
	b := New()

	for slot := uint64(0); slot < 3; slot++ {
		b.Insert(Shred{Slot: slot, Index: 0, Last: true, Payload: []byte{byte(slot)}})
	}

	if !b.IsRangeFull(0, 3) {
		t.Fatal("fully populated range reported incomplete")
	}
	if b.IsRangeFull(0, 4) {
		t.Fatal("range extending past populated slots reported full")
	}
}

func TestBlockstore_MissingRepairs_EmptySlot(t *testing.T) {
	b := New()

	reqs := b.MissingRepairs(5, 6, 10)
	if len(reqs) != 1 || reqs[0] != (RepairRequest{Slot: 5, Index: 0}) {
		t.Fatalf("unexpected repairs for unseen slot: %+v", reqs)
	}
}

func TestBlockstore_MissingRepairs_RespectsBudget(t *testing.T) {
	b := New()

	reqs := b.MissingRepairs(0, 100, 3)
	if len(reqs) != 3 {
		t.Fatalf("len(reqs) = %d, want 3", len(reqs))
	}
}

func TestBlockstore_OrderedPayloads_ToleratesGaps(t *testing.T) {
	b := New()

	b.Insert(Shred{Slot: 0, Index: 0, Payload: []byte("AA")})
	// slot 1 entirely missing
	b.Insert(Shred{Slot: 2, Index: 1, Payload: []byte("CC")})
	b.Insert(Shred{Slot: 2, Index: 0, Payload: []byte("BB")})

	got := b.OrderedPayloads(0, 3)
	want := "AABBCC"
	if string(got) != want {
		t.Fatalf("OrderedPayloads = %q, want %q", got, want)
	}
}
