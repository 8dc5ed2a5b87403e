// Package archiver implements the control loop state machine (spec
// §4.G): INIT → AWAIT_TURN1 → REPAIRING → ENCRYPTING → PROVE_LOOP. It
// is adapted from prxssh-rabbit's pkg/torrent.Torrent.Run, which fans
// its announce loop, peer manager, and refill worker out under one
// errgroup and treats a canceled context as the sole shutdown signal.
package archiver

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/dlguddus/solana/internal/config"
	"github.com/dlguddus/solana/pkg/blockstore"
	"github.com/dlguddus/solana/pkg/cipher"
	"github.com/dlguddus/solana/pkg/clusterinfo"
	"github.com/dlguddus/solana/pkg/repair"
	"github.com/dlguddus/solana/pkg/rpcclient"
	"github.com/dlguddus/solana/pkg/sampling"
	"github.com/dlguddus/solana/pkg/segment"
	"github.com/dlguddus/solana/pkg/turnpoller"
	"github.com/dlguddus/solana/pkg/txsubmit"
)

// state is the control loop's current position in §4.G's diagram.
type state int

const (
	stateInit state = iota
	stateAwaitTurn1
	stateRepairing
	stateEncrypting
	stateProveLoop
	stateExit
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateAwaitTurn1:
		return "AWAIT_TURN1"
	case stateRepairing:
		return "REPAIRING"
	case stateEncrypting:
		return "ENCRYPTING"
	case stateProveLoop:
		return "PROVE_LOOP"
	default:
		return "EXIT"
	}
}

// archiverState holds the fields spec §3 names. It is mutated only by
// the control loop goroutine; no lock is needed (spec §5, "no explicit
// locking").
type archiverState struct {
	slot             uint64
	slotsPerSegment  uint64
	signature        [64]byte
	blockhash        [32]byte
	encryptedPath    string
	numChachaBlocks  uint64
	samplingOffsets  []uint64
	shaState         [32]byte
}

// Controller runs the control loop over a fixed set of collaborators
// (spec §6). It is constructed once per process; Run blocks until a
// fatal error, a turn-poll exit, or ctx cancellation (spec §4.G: "this
// is aggressive — the component is restart-safe by design").
type Controller struct {
	cfg       config.Config
	rpc       rpcclient.Client
	submitter txsubmit.Submitter
	store     *blockstore.Blockstore
	registry  *clusterinfo.Registry
	poller    *turnpoller.Poller
	repairer  *repair.Driver
	log       *slog.Logger

	archiverKey ed25519.PrivateKey
	storageKey  [32]byte

	state state
	as    archiverState

	committedSlot atomic.Uint64
	slotCommitted atomic.Bool
}

// New wires a Controller from its collaborators. archiverKey signs the
// first turn_blockhash (spec §4.G); storageKey identifies the on-chain
// storage account this archiver proves against.
func New(
	cfg config.Config,
	rpc rpcclient.Client,
	submitter txsubmit.Submitter,
	store *blockstore.Blockstore,
	registry *clusterinfo.Registry,
	repairer *repair.Driver,
	archiverKey ed25519.PrivateKey,
	storageKey [32]byte,
	log *slog.Logger,
) *Controller {
	if log == nil {
		log = slog.Default()
	}

	return &Controller{
		cfg:         cfg,
		rpc:         rpc,
		submitter:   submitter,
		store:       store,
		registry:    registry,
		repairer:    repairer,
		archiverKey: archiverKey,
		storageKey:  storageKey,
		log:         log.With("component", "archiver"),
		poller:      turnpoller.New(rpc, registry, cfg.TurnPollInterval, cfg.EmptyPeerSetBackoff, log),
	}
}

// CommittedSlot implements slotresponder.SlotSource: it reports ok=false
// until AWAIT_TURN1 sets the segment start slot, and that slot on every
// call afterwards. The slot is written exactly once (spec §5,
// "the slot responder observes slot exactly once via a one-shot channel
// send from setup; no further writes occur").
func (c *Controller) CommittedSlot() (uint64, bool) {
	if !c.slotCommitted.Load() {
		return 0, false
	}
	return c.committedSlot.Load(), true
}

// Run drives the state machine to completion or fatal error.
func (c *Controller) Run(ctx context.Context) error {
	c.state = stateInit
	var previousBlockhash string

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.log.Info("archiver.state", "state", c.state.String())

		switch c.state {
		case stateInit:
			if err := c.runInit(ctx); err != nil {
				return fmt.Errorf("archiver: INIT: %w", err)
			}
			c.state = stateAwaitTurn1

		case stateAwaitTurn1:
			if err := c.runAwaitTurn1(ctx); err != nil {
				return fmt.Errorf("archiver: AWAIT_TURN1: %w", err)
			}
			previousBlockhash = encodeBlockhash(c.as.blockhash)
			c.state = stateRepairing

		case stateRepairing:
			if err := c.runRepairing(ctx); err != nil {
				return fmt.Errorf("archiver: REPAIRING: %w", err)
			}
			c.state = stateEncrypting

		case stateEncrypting:
			if err := c.runEncrypting(ctx); err != nil {
				return fmt.Errorf("archiver: ENCRYPTING: %w", err)
			}
			c.state = stateProveLoop

		case stateProveLoop:
			next, err := c.runProveLoopIteration(ctx, previousBlockhash)
			if err != nil {
				return fmt.Errorf("archiver: PROVE_LOOP: %w", err)
			}
			previousBlockhash = next
			// stays in stateProveLoop; spec §4.G loops back to step 1.

		case stateExit:
			return nil
		}
	}
}

// runInit queries slots_per_segment and lazily creates the on-chain
// storage account if its balance is zero (SUPPLEMENTED FEATURES,
// original_source/archiver.rs's create_storage_account path, spec §6).
func (c *Controller) runInit(ctx context.Context) error {
	sps, err := c.rpc.GetSlotsPerSegment(ctx)
	if err != nil {
		return fmt.Errorf("query slots_per_segment: %w", err)
	}
	if sps == 0 {
		return errors.New("cluster reported slots_per_segment = 0")
	}
	c.as.slotsPerSegment = sps

	balance, err := c.submitter.StorageAccountBalance(ctx, c.storageKey)
	if err != nil {
		return fmt.Errorf("query storage account balance: %w", err)
	}
	if balance == 0 {
		if err := c.submitter.CreateStorageAccount(ctx, c.storageKey); err != nil {
			return fmt.Errorf("create storage account: %w", err)
		}
	}

	return nil
}

// runAwaitTurn1 polls for the first valid turn, signs its blockhash, and
// derives the segment this archiver proves for its lifetime (spec §4.A,
// §4.G, §9 "single-shot segment"). It uses PollForSegment rather than the
// base poller directly: on a fresh cluster a turn can exist with no
// complete prior segment yet (floor(turn_slot/sps) == 0), which is a
// retryable startup condition (spec §7), not a fatal one — a nil store
// skips PollForSegment's own completeness check since runAwaitTurn1
// hasn't downloaded anything yet and derives its own start slot below.
func (c *Controller) runAwaitTurn1(ctx context.Context) error {
	turn, _, err := c.poller.PollForSegment(ctx, "", nil, c.as.slotsPerSegment)
	if err != nil {
		return fmt.Errorf("poll for first turn: %w", err)
	}

	sig := ed25519.Sign(c.archiverKey, turn.Blockhash[:])
	var sigArr [64]byte
	copy(sigArr[:], sig)

	startSlot, err := segment.Select(sigArr, turn.Slot, c.as.slotsPerSegment)
	if err != nil {
		return fmt.Errorf("select segment: %w", err)
	}

	c.as.signature = sigArr
	c.as.blockhash = turn.Blockhash
	c.as.slot = startSlot

	c.committedSlot.Store(startSlot)
	c.slotCommitted.Store(true)

	return nil
}

// runRepairing drives §4.F to fill the blockstore for [slot,
// slot+slotsPerSegment), then detaches this archiver from the live data
// plane (spec §4.G policy: "removes its TVU address from its own gossip
// record").
func (c *Controller) runRepairing(ctx context.Context) error {
	end := c.as.slot + c.as.slotsPerSegment
	if err := c.repairer.Run(ctx, c.as.slot, end); err != nil {
		return fmt.Errorf("repair segment [%d,%d): %w", c.as.slot, end, err)
	}

	c.registry.SetSelfTVU(nil)
	return nil
}

// runEncrypting streams the repaired segment through the ChaCha-CBC
// encryptor (spec §4.C), using the Archiver's fixed signature as the
// IV/key.
func (c *Controller) runEncrypting(ctx context.Context) error {
	path := filepath.Join(c.cfg.LedgerPath, "ledger.enc")

	numBlocks, err := cipher.EncryptSegment(c.store, c.as.slot, c.as.slotsPerSegment, c.as.signature, path)
	if err != nil {
		return fmt.Errorf("encrypt segment: %w", err)
	}

	c.as.encryptedPath = path
	c.as.numChachaBlocks = numBlocks
	return nil
}

// runProveLoopIteration runs one pass of PROVE_LOOP: generate offsets,
// sample-hash, submit proof, poll the next turn, redeem rewards if due.
// It returns the blockhash string to treat as "previous" on the next
// call. A sample-hash or proof-submit failure is fatal to the whole
// loop, matching spec §4.G's "aggressive" failure policy.
func (c *Controller) runProveLoopIteration(ctx context.Context, previousBlockhash string) (string, error) {
	gen, err := sampling.NewGenerator(c.as.blockhash)
	if err != nil {
		return "", fmt.Errorf("seed sampling generator: %w", err)
	}

	offsets, err := gen.Offsets(c.cfg.NumStorageSamples, c.as.numChachaBlocks)
	if err != nil {
		return "", fmt.Errorf("generate sampling offsets: %w", err)
	}
	c.as.samplingOffsets = offsets

	digest, err := sampling.SampleFile(c.as.encryptedPath, offsets)
	if err != nil {
		return "", fmt.Errorf("sample encrypted segment: %w", err)
	}
	c.as.shaState = digest

	proof := txsubmit.MiningProof{
		StorageKey:   c.storageKey,
		ShaState:     digest,
		SegmentIndex: segment.Index(c.as.slot, c.as.slotsPerSegment),
		Signature:    c.as.signature,
		Blockhash:    c.as.blockhash,
	}
	if err := c.submitter.SubmitMiningProof(ctx, proof); err != nil {
		return "", fmt.Errorf("submit mining proof: %w", err)
	}

	turn, err := c.poller.PollForBlockhashAndSlot(ctx, previousBlockhash, c.as.slotsPerSegment)
	if err != nil {
		return "", fmt.Errorf("poll for next turn: %w", err)
	}
	c.as.blockhash = turn.Blockhash

	pending, err := c.submitter.HasPendingValidations(ctx, c.storageKey)
	if err != nil {
		c.log.Warn("archiver.pending_validations_query_failed", "error", err)
	} else if pending {
		if err := c.submitter.ClaimReward(ctx, c.archiverPubkey(), c.storageKey); err != nil {
			c.log.Warn("archiver.claim_reward_failed", "error", err)
		}
	}

	return encodeBlockhash(turn.Blockhash), nil
}

// archiverPubkey returns the archiver identity's public key, used as the
// fee-payer/authority argument to claim_reward (spec §6).
func (c *Controller) archiverPubkey() [32]byte {
	var out [32]byte
	copy(out[:], c.archiverKey.Public().(ed25519.PublicKey))
	return out
}
