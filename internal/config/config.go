package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CommitmentLevel selects how finalized a blockhash/account view must be
// before the RPC client will return it to the archiver.
type CommitmentLevel uint8

const (
	// CommitmentRecent accepts the most recent bank the validator has
	// processed, even if it could still be rolled back.
	CommitmentRecent CommitmentLevel = iota

	// CommitmentRoot only accepts blocks the validator considers rooted
	// (will never be rolled back).
	CommitmentRoot

	// CommitmentSingle requires confirmation by a majority of the
	// cluster's stake.
	CommitmentSingle
)

func (c CommitmentLevel) String() string {
	switch c {
	case CommitmentRoot:
		return "root"
	case CommitmentSingle:
		return "single"
	default:
		return "recent"
	}
}

// Config holds the runtime configuration for an archiver process.
type Config struct {
	// LedgerPath is the directory holding the local blockstore and the
	// encrypted segment file (ledger.enc).
	LedgerPath string

	// NodeContact is the address this archiver advertises to the cluster
	// for gossip, repair, and storage queries.
	NodeContact string

	// EntrypointContact is the initial cluster node used to bootstrap
	// gossip discovery.
	EntrypointContact string

	// ArchiverKeypairPath points at the identity keypair used to sign
	// gossip/repair traffic and transactions as fee payer.
	ArchiverKeypairPath string

	// StorageKeypairPath points at the keypair that owns the on-chain
	// storage account this archiver proves against.
	StorageKeypairPath string

	// Commitment is the confirmation level requested on RPC reads.
	Commitment CommitmentLevel

	// RPCTimeout bounds a single RPC round trip.
	RPCTimeout time.Duration

	// TurnPollInterval is how long the turn poller sleeps between
	// unsuccessful attempts (§4.E: 5s).
	TurnPollInterval time.Duration

	// EmptyPeerSetBackoff is how long the turn poller sleeps when the
	// cluster-info peer snapshot is empty (§4.E: 5s).
	EmptyPeerSetBackoff time.Duration

	// RepairRetryInterval is the delay between repair attempts (§4.F:
	// 500ms).
	RepairRetryInterval time.Duration

	// RepairMaxAttempts bounds the repair driver's attempt budget
	// (§4.F: 120).
	RepairMaxAttempts int

	// RepairRecvTimeout is the first-recv timeout per attempt (§4.F:
	// 1s), after which the receive loop drains non-blocking.
	RepairRecvTimeout time.Duration

	// MaxRepairLength caps how many repair requests are generated per
	// attempt (§4.F).
	MaxRepairLength int

	// NumStorageSamples is the protocol constant "NUM_STORAGE_SAMPLES"
	// (§4.B: 4). Must match the verifier.
	NumStorageSamples int

	// SampleSize is the hash sample width in bytes (§4.D: 32).
	SampleSize int

	// ChachaBlockSize is the cipher block size in bytes (§4.C: 64).
	ChachaBlockSize int

	// SlotResponderRecvTimeout bounds each poll of the slot responder's
	// receive loop (§4.H: 1s).
	SlotResponderRecvTimeout time.Duration

	// SlotQueryAttempts bounds the client-side slot-query retry budget
	// (§4.H: 10).
	SlotQueryAttempts int

	// SlotQueryRetryInterval is the delay between slot-query attempts
	// (§4.H: 500ms).
	SlotQueryRetryInterval time.Duration

	// SlotQueryReadTimeout bounds a single slot-query reply wait
	// (§4.H: 5s).
	SlotQueryReadTimeout time.Duration

	// HasIPV6 records whether the host has a usable IPv6 address, used
	// when deciding which peer addresses are dialable.
	HasIPV6 bool
}

func defaultConfig() Config {
	return Config{
		LedgerPath:               defaultLedgerDir(),
		Commitment:               CommitmentRoot,
		RPCTimeout:               10 * time.Second,
		TurnPollInterval:         5 * time.Second,
		EmptyPeerSetBackoff:      5 * time.Second,
		RepairRetryInterval:      500 * time.Millisecond,
		RepairMaxAttempts:        120,
		RepairRecvTimeout:        1 * time.Second,
		MaxRepairLength:          64,
		NumStorageSamples:        4,
		SampleSize:               32,
		ChachaBlockSize:          64,
		SlotResponderRecvTimeout: 1 * time.Second,
		SlotQueryAttempts:        10,
		SlotQueryRetryInterval:   500 * time.Millisecond,
		SlotQueryReadTimeout:     5 * time.Second,
		HasIPV6:                  hasIPV6(),
	}
}

func hasIPV6() bool {
	ifaces, _ := net.Interfaces()

	for _, ifi := range ifaces {
		if (ifi.Flags & net.FlagUp) == 0 {
			continue
		}
		addrs, _ := ifi.Addrs()
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}

			ip := ipNet.IP
			if ip == nil || ip.To4() != nil {
				continue
			}
			if ip.IsGlobalUnicast() && !ip.IsLinkLocalUnicast() &&
				!ip.IsLoopback() {
				return true
			}
		}
	}

	return false
}

func defaultLedgerDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if cwd, err := os.Getwd(); err == nil {
			return filepath.Join(cwd, "ledger")
		}
		return "./ledger"
	}

	switch runtime.GOOS {
	case "windows", "darwin":
		return filepath.Join(home, "solana", "archiver-ledger")
	default: // linux, bsd, etc.
		return filepath.Join(home, ".local", "share", "solana", "archiver-ledger")
	}
}
