// Package blockstore is a minimal in-memory shred store keyed by (slot,
// index). It backs the segment repair driver (writer) and the ledger
// encryptor (reader) described in spec §4.F/§4.C.
//
// Long-term storage layout is an explicit Non-goal (spec §1); this store
// keeps everything in memory, which is sufficient for the single segment an
// archiver holds for its lifetime (spec §9, "single-shot segment").
package blockstore

import (
	"sort"
	"sync"

	"github.com/dlguddus/solana/pkg/bitfield"
)

// Shred is the atomic unit of replicated ledger data this store accepts.
// Blockstore never validates a shred's signature or chains it to prior
// slots — the repair driver feeds an untrusted stream (spec §9).
type Shred struct {
	Slot    uint64
	Index   uint32
	Last    bool
	Payload []byte
}

// slotEntry tracks one slot's shreds. received is a growable bitfield
// mirroring which indices have payloads in shreds: membership checks over
// a slot's full index range (isSlotFullLocked, MissingRepairs) test it
// instead of re-probing the map, the way prxssh-rabbit's pkg/bitfield is
// used to track which torrent pieces a peer holds.
type slotEntry struct {
	shreds   map[uint32][]byte
	received bitfield.Bitfield
	lastIdx  uint32
	hasLast  bool
	maxSeen  uint32
	anySeen  bool
}

// ensureReceivedCapacity grows e.received so index idx is addressable,
// preserving previously-set bits.
func (e *slotEntry) ensureReceivedCapacity(idx uint32) {
	if int(idx) < e.received.Len() {
		return
	}
	grown := bitfield.New(int(idx) + 1)
	copy(grown, e.received)
	e.received = grown
}

// Blockstore is a thread-safe shred store. Writers: the repair driver.
// Readers: the ledger encryptor and the repair driver's completeness
// check.
type Blockstore struct {
	mu    sync.RWMutex
	slots map[uint64]*slotEntry
}

// New returns an empty Blockstore.
func New() *Blockstore {
	return &Blockstore{slots: make(map[uint64]*slotEntry)}
}

// Insert stores a shred without verifying its signature or enforcing chain
// continuity with neighboring slots (spec §4.F, §9). A shred for a slot
// outside of any range the caller cares about is accepted and simply
// ignored by range-scoped readers — the underlying UDP transport can
// reorder or duplicate packets, so rejecting it outright would be fatal
// for no reason.
func (b *Blockstore) Insert(s Shred) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.slots[s.Slot]
	if !ok {
		e = &slotEntry{shreds: make(map[uint32][]byte)}
		b.slots[s.Slot] = e
	}

	e.shreds[s.Index] = s.Payload
	e.ensureReceivedCapacity(s.Index)
	e.received.Set(int(s.Index))
	if !e.anySeen || s.Index > e.maxSeen {
		e.maxSeen = s.Index
		e.anySeen = true
	}
	if s.Last {
		e.hasLast = true
		e.lastIdx = s.Index
	}
}

// IsSlotFull reports whether every shred index up to the slot's known last
// index has been received.
func (b *Blockstore) IsSlotFull(slot uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.isSlotFullLocked(slot)
}

func (b *Blockstore) isSlotFullLocked(slot uint64) bool {
	e, ok := b.slots[slot]
	if !ok || !e.hasLast {
		return false
	}

	for i := uint32(0); i <= e.lastIdx; i++ {
		if !e.received.Has(int(i)) {
			return false
		}
	}
	return true
}

// IsRangeFull reports whether every slot in [start, end) is full.
func (b *Blockstore) IsRangeFull(start, end uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for slot := start; slot < end; slot++ {
		if !b.isSlotFullLocked(slot) {
			return false
		}
	}
	return true
}

// RepairRequest names a single missing (slot, index) pair worth asking a
// peer for.
type RepairRequest struct {
	Slot  uint64
	Index uint32
}

// MissingRepairs enumerates up to maxRequests repair targets covering gaps
// in [start, end). For a slot with no shreds yet it requests index 0 to
// discover the slot's shape; for a slot with a known last index it
// requests every missing index; for a slot with shreds but no known last
// index yet it also probes the next index to keep discovering the slot's
// extent.
func (b *Blockstore) MissingRepairs(start, end uint64, maxRequests int) []RepairRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []RepairRequest

	for slot := start; slot < end && len(out) < maxRequests; slot++ {
		e, ok := b.slots[slot]
		if !ok {
			out = append(out, RepairRequest{Slot: slot, Index: 0})
			continue
		}

		if e.hasLast {
			for i := uint32(0); i <= e.lastIdx && len(out) < maxRequests; i++ {
				if !e.received.Has(int(i)) {
					out = append(out, RepairRequest{Slot: slot, Index: i})
				}
			}
			continue
		}

		for i := uint32(0); i <= e.maxSeen && len(out) < maxRequests; i++ {
			if !e.received.Has(int(i)) {
				out = append(out, RepairRequest{Slot: slot, Index: i})
			}
		}
		if len(out) < maxRequests {
			out = append(out, RepairRequest{Slot: slot, Index: e.maxSeen + 1})
		}
	}

	return out
}

// OrderedPayloads concatenates shred payloads for [start, end) in (slot,
// index) order. Missing slots or indices contribute nothing — the
// encryptor must tolerate gaps in an untrusted blockstore (spec §9)
// rather than failing the whole turn over one hole.
func (b *Blockstore) OrderedPayloads(start, end uint64) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []byte
	for slot := start; slot < end; slot++ {
		e, ok := b.slots[slot]
		if !ok {
			continue
		}

		indices := make([]uint32, 0, len(e.shreds))
		for idx := range e.shreds {
			indices = append(indices, idx)
		}
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

		for _, idx := range indices {
			out = append(out, e.shreds[idx]...)
		}
	}
	return out
}
