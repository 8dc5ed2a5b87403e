package archiver

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/dlguddus/solana/internal/config"
	"github.com/dlguddus/solana/pkg/blockstore"
	"github.com/dlguddus/solana/pkg/clusterinfo"
	"github.com/dlguddus/solana/pkg/repair"
	"github.com/dlguddus/solana/pkg/rpcclient"
	"github.com/dlguddus/solana/pkg/txsubmit"
)

// fakeCustodian answers every repair request with a single, immediately
// "last" shred, so a repair round converges without a real cluster.
func fakeCustodian(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		buf := make([]byte, 64)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n < 12 {
				continue
			}
			slot := binary.BigEndian.Uint64(buf[0:8])
			index := binary.BigEndian.Uint32(buf[8:12])

			resp := make([]byte, 13+4)
			binary.BigEndian.PutUint64(resp[0:8], slot)
			binary.BigEndian.PutUint32(resp[8:12], index)
			resp[12] = 1
			binary.BigEndian.PutUint32(resp[13:], uint32(slot))
			_, _ = conn.WriteToUDP(resp, addr)
		}
	}()
	return conn
}

func TestController_Run_DrivesThroughFirstTurn(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	var hashA, hashB [32]byte
	hashA[0] = 0xAA
	hashB[0] = 0xBB
	b58A := base58.Encode(hashA[:])
	b58B := base58.Encode(hashB[:])

	stub := &rpcclient.Stub{
		SlotsPerSegment: 10,
		Turns: []rpcclient.StubTurn{
			{Blockhash: b58A, Slot: 100},
			{Blockhash: b58B, Slot: 110},
		},
	}

	custodian := fakeCustodian(t)
	defer custodian.Close()

	store := blockstore.New()
	var self [32]byte
	registry := clusterinfo.New(self)
	registry.Upsert(clusterinfo.ContactInfo{
		Pubkey:     [32]byte{1},
		RepairAddr: custodian.LocalAddr().(*net.UDPAddr),
	})

	repairer, err := repair.New(store, registry, repair.Config{
		RetryInterval: 2 * time.Millisecond,
		MaxAttempts:   50,
		RecvTimeout:   50 * time.Millisecond,
		MaxRepairLen:  16,
	}, nil)
	if err != nil {
		t.Fatalf("repair.New: %v", err)
	}
	defer repairer.Close()

	cfg := config.Config{
		LedgerPath:          t.TempDir(),
		TurnPollInterval:    2 * time.Millisecond,
		EmptyPeerSetBackoff: 2 * time.Millisecond,
		NumStorageSamples:   4,
	}

	submitter := &txsubmit.Logger{Log: slog.Default()}
	var storageKey [32]byte
	storageKey[0] = 0x42

	ctrl := New(cfg, stub, submitter, store, registry, repairer, priv, storageKey, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = ctrl.Run(ctx)
	if err == nil {
		t.Fatal("expected Run to eventually stop on context deadline, got nil")
	}

	slot, ok := ctrl.CommittedSlot()
	if !ok {
		t.Fatal("expected CommittedSlot to be set after AWAIT_TURN1")
	}
	if slot%10 != 0 || slot >= 100 {
		t.Fatalf("committed slot = %d, want a multiple of 10 below 100", slot)
	}
}

func TestController_Run_FailsInitOnZeroSlotsPerSegment(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)

	stub := &rpcclient.Stub{SlotsPerSegment: 0}
	store := blockstore.New()
	var self [32]byte
	registry := clusterinfo.New(self)

	repairer, err := repair.New(store, registry, repair.Config{
		RetryInterval: time.Millisecond,
		MaxAttempts:   1,
		RecvTimeout:   time.Millisecond,
		MaxRepairLen:  1,
	}, nil)
	if err != nil {
		t.Fatalf("repair.New: %v", err)
	}
	defer repairer.Close()

	cfg := config.Config{LedgerPath: t.TempDir()}
	submitter := &txsubmit.Logger{Log: slog.Default()}
	var storageKey [32]byte

	ctrl := New(cfg, stub, submitter, store, registry, repairer, priv, storageKey, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := ctrl.Run(ctx); err == nil {
		t.Fatal("expected INIT to fail on slots_per_segment = 0")
	}
}
