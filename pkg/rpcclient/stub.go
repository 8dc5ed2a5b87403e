package rpcclient

import (
	"context"
	"sync/atomic"
)

// Stub is an in-memory Client for tests: it replays a fixed sequence of
// (blockhash, turn_slot) pairs and a fixed slots_per_segment value.
type Stub struct {
	SlotsPerSegment uint64
	Turns           []StubTurn

	idx atomic.Int64
}

// StubTurn is one scripted GetStorageTurn response.
type StubTurn struct {
	Blockhash string
	Slot      uint64
}

func (s *Stub) GetSlotsPerSegment(ctx context.Context) (uint64, error) {
	return s.SlotsPerSegment, nil
}

func (s *Stub) GetStorageTurn(ctx context.Context) (string, uint64, error) {
	i := s.idx.Add(1) - 1
	if int(i) >= len(s.Turns) {
		i = int64(len(s.Turns) - 1)
	}
	turn := s.Turns[i]
	return turn.Blockhash, turn.Slot, nil
}
