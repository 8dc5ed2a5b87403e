// Package txsubmit is the external transaction-submission collaborator
// (spec §6). Payment and fee logic beyond submitting transactions is an
// explicit Non-goal (spec §1), so this package only defines the shape of
// the three transactions the control loop emits and a logging-only
// reference implementation for tests and local runs.
package txsubmit

import (
	"context"
	"log/slog"
)

// Submitter issues the three on-chain transactions the control loop
// depends on.
type Submitter interface {
	// CreateStorageAccount is submitted once, if the storage account
	// reports a zero balance (spec §6).
	CreateStorageAccount(ctx context.Context, storageKey [32]byte) error

	// SubmitMiningProof is submitted once per turn (spec §6).
	SubmitMiningProof(ctx context.Context, proof MiningProof) error

	// ClaimReward is submitted when the storage account reports
	// non-empty validations (spec §6).
	ClaimReward(ctx context.Context, archiverKey, storageKey [32]byte) error

	// StorageAccountBalance reports the storage account's lamport
	// balance, used to decide whether CreateStorageAccount is needed.
	StorageAccountBalance(ctx context.Context, storageKey [32]byte) (uint64, error)

	// HasPendingValidations reports whether the storage account has
	// accrued validations worth redeeming.
	HasPendingValidations(ctx context.Context, storageKey [32]byte) (bool, error)
}

// MiningProof is the payload of a mining_proof transaction.
type MiningProof struct {
	StorageKey   [32]byte
	ShaState     [32]byte
	SegmentIndex uint64
	Signature    [64]byte
	Blockhash    [32]byte
}

// Logger is a Submitter that only logs what it would have submitted. It is
// useful for local runs and tests that don't have a live cluster to send
// transactions to.
type Logger struct {
	Log *slog.Logger
}

func (l *Logger) CreateStorageAccount(ctx context.Context, storageKey [32]byte) error {
	l.Log.Info("tx.create_storage_account", "storage_key", storageKey)
	return nil
}

func (l *Logger) SubmitMiningProof(ctx context.Context, proof MiningProof) error {
	l.Log.Info(
		"tx.mining_proof",
		"storage_key", proof.StorageKey,
		"segment_index", proof.SegmentIndex,
		"sha_state", proof.ShaState,
	)
	return nil
}

func (l *Logger) ClaimReward(ctx context.Context, archiverKey, storageKey [32]byte) error {
	l.Log.Info("tx.claim_reward", "archiver_key", archiverKey, "storage_key", storageKey)
	return nil
}

func (l *Logger) StorageAccountBalance(ctx context.Context, storageKey [32]byte) (uint64, error) {
	return 0, nil
}

func (l *Logger) HasPendingValidations(ctx context.Context, storageKey [32]byte) (bool, error) {
	return false, nil
}
