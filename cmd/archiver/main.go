// Command archiver runs the storage-mining control loop (spec §4.G)
// standalone. It wires internal/config, internal/logging, and the
// archiver's collaborators the same way prxssh-rabbit's cmd/rabbit/main.go
// wires its torrent client — minus the Wails GUI bootstrap, which has no
// analog for a headless node.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dlguddus/solana/internal/config"
	"github.com/dlguddus/solana/internal/keypair"
	"github.com/dlguddus/solana/internal/logging"
	"github.com/dlguddus/solana/pkg/archiver"
	"github.com/dlguddus/solana/pkg/blockstore"
	"github.com/dlguddus/solana/pkg/clusterinfo"
	"github.com/dlguddus/solana/pkg/repair"
	"github.com/dlguddus/solana/pkg/rpcclient"
	"github.com/dlguddus/solana/pkg/slotresponder"
	"github.com/dlguddus/solana/pkg/txsubmit"
)

func main() {
	setupLogger()
	log := slog.Default()

	config.Init()
	cfg := config.Load()

	archiverKey, err := keypair.Load(cfg.ArchiverKeypairPath)
	if err != nil {
		log.Error("failed to load archiver keypair", "error", err)
		os.Exit(1)
	}
	storageKey, err := keypair.Load(cfg.StorageKeypairPath)
	if err != nil {
		log.Error("failed to load storage keypair", "error", err)
		os.Exit(1)
	}
	storageKeyPub := keypair.PublicKeyArray(storageKey)

	if err := os.MkdirAll(cfg.LedgerPath, 0o755); err != nil {
		log.Error("failed to create ledger directory", "error", err)
		os.Exit(1)
	}

	rpc := rpcclient.NewHTTPClient(cfg.NodeContact, cfg.Commitment.String(), log)

	store := blockstore.New()
	var self [32]byte
	registry := clusterinfo.New(self)
	registry.Upsert(clusterinfo.ContactInfo{Pubkey: self})

	repairer, err := repair.New(store, registry, repair.Config{
		RetryInterval: cfg.RepairRetryInterval,
		MaxAttempts:   cfg.RepairMaxAttempts,
		RecvTimeout:   cfg.RepairRecvTimeout,
		MaxRepairLen:  cfg.MaxRepairLength,
	}, log)
	if err != nil {
		log.Error("failed to start repair driver", "error", err)
		os.Exit(1)
	}
	defer repairer.Close()

	submitter := &txsubmit.Logger{Log: log}

	ctrl := archiver.New(*cfg, rpc, submitter, store, registry, repairer, archiverKey, storageKeyPub, log)

	responder, err := slotresponder.New(&net.UDPAddr{Port: 0}, ctrl, cfg.SlotResponderRecvTimeout, log)
	if err != nil {
		log.Error("failed to start slot responder", "error", err)
		os.Exit(1)
	}
	defer responder.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return ctrl.Run(ctx) })
	eg.Go(func() error { return responder.Run(ctx) })

	if err := eg.Wait(); err != nil {
		log.Error("archiver stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogger() {
	opts := logging.DefaultOptions()
	opts.SlogOpts.Level = slog.LevelInfo
	opts.SlogOpts.AddSource = false

	h := logging.NewPrettyHandler(os.Stdout, &opts)
	l := slog.New(h)
	slog.SetDefault(l)
}
