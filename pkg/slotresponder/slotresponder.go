// Package slotresponder answers get_archiver_segment_slot queries from
// other nodes wanting to know which slot an archiver has committed to
// proving (spec §4.H). It runs as a receiver/processor/responder trio
// fanned out with errgroup, the same shape prxssh-rabbit's
// pkg/torrent.Torrent.Run uses for its announce loop, peer manager, and
// refill-queue worker.
package slotresponder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dlguddus/solana/internal/retry"
)

const (
	queryPacketSize    = 1 + 32 // tag + requester pubkey
	responsePacketSize = 1 + 8  // tag + slot

	tagQuery    byte = 1
	tagResponse byte = 2

	maxUDPPacket = 512
)

// SlotSource reports the slot this archiver has committed to proving.
// archiver.Controller implements this once it has completed AWAIT_TURN1
// (spec §4.G); ok is false before a segment has been selected.
type SlotSource interface {
	CommittedSlot() (slot uint64, ok bool)
}

type inbound struct {
	from      *net.UDPAddr
	requester [32]byte
}

// Responder listens for slot queries and answers them from a SlotSource.
type Responder struct {
	conn   *net.UDPConn
	source SlotSource
	log    *slog.Logger
	recvTO time.Duration
}

// New binds a UDP socket for the responder. addr may have Port 0 to let
// the OS pick, in which case the bound address is available via
// LocalAddr after New returns.
func New(addr *net.UDPAddr, source SlotSource, recvTimeout time.Duration, log *slog.Logger) (*Responder, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("slotresponder: listen: %w", err)
	}

	return &Responder{
		conn:   conn,
		source: source,
		log:    log.With("component", "slotresponder"),
		recvTO: recvTimeout,
	}, nil
}

// LocalAddr returns the bound UDP address.
func (r *Responder) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the responder's socket.
func (r *Responder) Close() error {
	return r.conn.Close()
}

// Run fans out the receive/process/respond trio until ctx is canceled.
func (r *Responder) Run(ctx context.Context) error {
	received := make(chan inbound, 64)
	toSend := make(chan *net.UDPAddr, 64)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return r.receiveLoop(ctx, received) })
	eg.Go(func() error { return r.processLoop(ctx, received, toSend) })
	eg.Go(func() error { return r.respondLoop(ctx, toSend) })

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Responder) receiveLoop(ctx context.Context, out chan<- inbound) error {
	buf := make([]byte, maxUDPPacket)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_ = r.conn.SetReadDeadline(time.Now().Add(r.recvTO))
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		if n != queryPacketSize || buf[0] != tagQuery {
			continue
		}

		var requester [32]byte
		copy(requester[:], buf[1:queryPacketSize])

		select {
		case out <- inbound{from: from, requester: requester}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Responder) processLoop(ctx context.Context, in <-chan inbound, out chan<- *net.UDPAddr) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}

			slot, have := r.source.CommittedSlot()
			if !have {
				continue
			}

			if err := r.sendResponse(msg.from, slot); err != nil {
				r.log.Warn("slotresponder.send_error", "error", err)
			}
			select {
			case out <- msg.from:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// respondLoop only exists to mirror the receiver/processor/responder
// shape spec §4.H describes; the actual write happens in processLoop so
// a slow write can't stall the receive loop's deadline handling. It
// logs delivery rather than writing twice.
func (r *Responder) respondLoop(ctx context.Context, acked <-chan *net.UDPAddr) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case addr, ok := <-acked:
			if !ok {
				return nil
			}
			r.log.Debug("slotresponder.answered", "peer", addr)
		}
	}
}

func (r *Responder) sendResponse(to *net.UDPAddr, slot uint64) error {
	var packet [responsePacketSize]byte
	packet[0] = tagResponse
	binary.BigEndian.PutUint64(packet[1:], slot)

	_, err := r.conn.WriteToUDP(packet[:], to)
	return err
}

// QuerySlot asks remote for its committed slot, retrying up to attempts
// times with interval between tries and readTimeout bounding each
// individual reply wait (spec §4.H client side: 10 attempts / 500ms /
// 5s).
func QuerySlot(ctx context.Context, remote *net.UDPAddr, requester [32]byte, attempts int, interval, readTimeout time.Duration) (uint64, error) {
	conn, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		return 0, fmt.Errorf("slotresponder: dial: %w", err)
	}
	defer conn.Close()

	var query [queryPacketSize]byte
	query[0] = tagQuery
	copy(query[1:], requester[:])

	buf := make([]byte, maxUDPPacket)

	var slot uint64

	op := func(context.Context) error {
		if _, err := conn.Write(query[:]); err != nil {
			return fmt.Errorf("slotresponder: send query: %w", err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := conn.Read(buf)
		if err == nil && n == responsePacketSize && buf[0] == tagResponse {
			slot = binary.BigEndian.Uint64(buf[1:])
			return nil
		}

		return fmt.Errorf("slotresponder: no response from %s yet", remote)
	}

	if err := retry.Do(ctx, op, retry.WithLinearBackoff(attempts, interval)...); err != nil {
		return 0, fmt.Errorf("slotresponder: no response from %s after %d attempts: %w", remote, attempts, err)
	}
	return slot, nil
}
