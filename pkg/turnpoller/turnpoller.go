// Package turnpoller repeatedly asks the cluster for the current storage
// turn until it sees a blockhash the caller hasn't proven against yet
// (spec §4.E). It is adapted from prxssh-rabbit's tracker announce loop:
// pick a peer, make one request, sleep and retry on failure or staleness.
package turnpoller

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mr-tron/base58"

	"github.com/dlguddus/solana/internal/retry"
	"github.com/dlguddus/solana/pkg/blockstore"
	"github.com/dlguddus/solana/pkg/clusterinfo"
	"github.com/dlguddus/solana/pkg/rpcclient"
	"github.com/dlguddus/solana/pkg/segment"
)

// ErrNoPeers is returned (and retried, never returned to the caller) when
// the cluster-info snapshot is empty.
var ErrNoPeers = errors.New("turnpoller: no peers in cluster-info snapshot")

// errStaleTurn signals a fetched turn isn't usable yet — same blockhash as
// previous, an undecodable hash, or no complete segment exists before it —
// and the caller should keep polling. It never escapes PollForBlockhashAndSlot.
var errStaleTurn = errors.New("turnpoller: turn not yet usable")

// Turn is a single turn observation: the turn blockhash, decoded to a
// fixed-size array, and the slot it was observed at.
type Turn struct {
	Blockhash [32]byte
	Slot      uint64
}

// Poller polls rpcclient.Client for a fresh turn, sleeping
// config.TurnPollInterval between unsuccessful attempts and
// config.EmptyPeerSetBackoff when the peer snapshot is empty.
type Poller struct {
	rpc                 rpcclient.Client
	registry            *clusterinfo.Registry
	log                 *slog.Logger
	pollInterval        time.Duration
	emptyPeerSetBackoff time.Duration
}

// New returns a Poller. registry is consulted only to decide whether any
// peers are known before bothering the RPC client; rpc is the actual
// collaborator queried (spec §6 treats RPC and gossip membership as
// separate concerns, matching prxssh-rabbit's tracker/peer-manager split).
func New(rpc rpcclient.Client, registry *clusterinfo.Registry, pollInterval, emptyPeerSetBackoff time.Duration, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		rpc:                 rpc,
		registry:            registry,
		log:                 log.With("component", "turnpoller"),
		pollInterval:        pollInterval,
		emptyPeerSetBackoff: emptyPeerSetBackoff,
	}
}

// awaitPeers blocks, retrying every emptyPeerSetBackoff, until the
// cluster-info snapshot is non-empty or ctx is canceled (spec §4.E step
// 1). A nil registry means peer membership isn't this poller's concern,
// so it returns immediately.
func (p *Poller) awaitPeers(ctx context.Context) error {
	if p.registry == nil {
		return nil
	}

	return retry.Do(ctx, func(context.Context) error {
		if len(p.registry.RPCPeers()) == 0 {
			p.log.Debug("turn.no_peers", "backoff", p.emptyPeerSetBackoff)
			return ErrNoPeers
		}
		return nil
	}, retry.WithLinearBackoff(0, p.emptyPeerSetBackoff)...)
}

// PollForBlockhashAndSlot blocks until it observes a turn whose blockhash
// differs from previous (the caller's last-proven blockhash, "" on first
// call) AND for which a complete segment already exists
// (floor(turn_slot/slotsPerSegment) != 0, spec §4.E step 3), or ctx is
// canceled. On cancellation it returns the zero-value Turn and an error
// wrapping ctx.Err(). Every wait — the empty-peer backoff and the per-request
// poll backoff — is driven by internal/retry (spec §7: 5s RPC poll / 5s
// empty-peer backoff).
func (p *Poller) PollForBlockhashAndSlot(ctx context.Context, previous string, slotsPerSegment uint64) (Turn, error) {
	if err := p.awaitPeers(ctx); err != nil {
		return Turn{}, err
	}

	var result Turn

	op := func(context.Context) error {
		if p.registry != nil && len(p.registry.RPCPeers()) == 0 {
			if err := p.awaitPeers(ctx); err != nil {
				return err
			}
		}

		blockhashB58, slot, err := p.rpc.GetStorageTurn(ctx)
		if err != nil {
			p.log.Warn("turn.rpc_error", "error", err)
			return errStaleTurn
		}

		if blockhashB58 == previous {
			return errStaleTurn
		}

		if !segment.ValidForProof(slot, slotsPerSegment) {
			return errStaleTurn
		}

		hash, err := decodeBlockhash(blockhashB58)
		if err != nil {
			p.log.Warn("turn.bad_blockhash", "blockhash", blockhashB58, "error", err)
			return errStaleTurn
		}

		p.log.Info("turn.observed", "blockhash", blockhashB58, "slot", slot)
		result = Turn{Blockhash: hash, Slot: slot}
		return nil
	}

	if err := retry.Do(ctx, op, retry.WithLinearBackoff(0, p.pollInterval)...); err != nil {
		return Turn{}, err
	}
	return result, nil
}

// PollForSegment polls like PollForBlockhashAndSlot (which already
// enforces that a complete segment exists before the returned turn), and
// additionally rejects turns whose prior segment isn't fully downloaded
// yet in store — used by callers that need to read that segment
// immediately, not just derive a new one (spec §4.A, §4.E step 4: "wait
// until ... the requisite segment is complete"). A nil store skips that
// extra check, which is what archiver.Controller's AWAIT_TURN1 wants: it
// derives its own start slot via segment.Select rather than reading
// turn.Slot-slotsPerSegment out of a blockstore it hasn't populated yet.
func (p *Poller) PollForSegment(ctx context.Context, previous string, store *blockstore.Blockstore, slotsPerSegment uint64) (Turn, uint64, error) {
	for {
		turn, err := p.PollForBlockhashAndSlot(ctx, previous, slotsPerSegment)
		if err != nil {
			return Turn{}, 0, err
		}

		startSlot := turn.Slot - slotsPerSegment
		if store != nil && !store.IsRangeFull(startSlot, startSlot+slotsPerSegment) {
			p.log.Debug("turn.segment_incomplete", "start_slot", startSlot)
			if err := retry.Do(ctx, func(context.Context) error { return errStaleTurn }, retry.WithLinearBackoff(2, p.pollInterval)...); err != nil && !errors.Is(err, errStaleTurn) {
				return Turn{}, 0, err
			}
			previous = ""
			continue
		}

		return turn, startSlot, nil
	}
}

func decodeBlockhash(b58 string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(b58)
	if err != nil {
		return out, fmt.Errorf("turnpoller: decode base58: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("turnpoller: blockhash %s decodes to %d bytes, want 32", hex.EncodeToString(raw), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// PickPeer returns a uniform-random RPC peer from registry, for callers
// that want to address a specific node rather than relying on rpc's own
// endpoint selection.
func PickPeer(registry *clusterinfo.Registry) (clusterinfo.ContactInfo, bool) {
	peers := registry.RPCPeers()
	if len(peers) == 0 {
		return clusterinfo.ContactInfo{}, false
	}
	return peers[rand.Intn(len(peers))], true
}
