// Package clusterinfo is the reader-writer protected registry of peer
// contact info the rest of the archiver reads snapshots from (spec §5).
// Readers clone the current peer set; the control loop is the single
// writer, rewriting the archiver's own contact entry after repair
// completes (spec §4.G).
package clusterinfo

import (
	"net"

	"github.com/dlguddus/solana/pkg/syncmap"
)

// ContactInfo is a single cluster participant's advertised addresses.
type ContactInfo struct {
	// Pubkey identifies the participant.
	Pubkey [32]byte

	// Gossip is the participant's gossip listen address.
	Gossip *net.UDPAddr

	// RepairAddr is the address repair requests should be sent to.
	RepairAddr *net.UDPAddr

	// TVU is the address this node serves the "transmit validate unit"
	// shred stream on. An archiver zeroes this out after it finishes
	// downloading its segment (spec §4.G), detaching from the live data
	// plane while staying reachable for storage queries.
	TVU *net.UDPAddr

	// Storage is the address this node's slot responder (§4.H) listens
	// on.
	Storage *net.UDPAddr
}

// Registry is a thread-safe, snapshot-oriented peer registry, built on
// pkg/syncmap.Map rather than a bespoke map+mutex pair.
type Registry struct {
	self [32]byte
	byID *syncmap.Map[[32]byte, ContactInfo]
}

// New returns an empty Registry identifying the local node as self.
func New(self [32]byte) *Registry {
	return &Registry{
		self: self,
		byID: syncmap.New[[32]byte, ContactInfo](),
	}
}

// Upsert inserts or replaces a peer's contact info.
func (r *Registry) Upsert(ci ContactInfo) {
	r.byID.Put(ci.Pubkey, ci)
}

// Remove drops a peer from the registry (e.g. on repeated repair
// failures).
func (r *Registry) Remove(pubkey [32]byte) {
	r.byID.Delete(pubkey)
}

// RPCPeers returns a snapshot of all known peers, for the turn poller to
// pick a uniform-random target from (spec §4.E).
func (r *Registry) RPCPeers() []ContactInfo {
	return r.byID.Snapshot()
}

// Custodian returns the contact info of the peer with the given pubkey.
// It does no shred-to-peer mapping. The repair driver does not call it:
// it picks its target from RPCPeers.
func (r *Registry) Custodian(pubkey [32]byte) (ContactInfo, bool) {
	return r.byID.Get(pubkey)
}

// SetSelfTVU rewrites this archiver's own TVU contact entry. Passing a nil
// addr detaches the archiver from the live data plane (spec §4.G, run
// after REPAIRING completes).
func (r *Registry) SetSelfTVU(addr *net.UDPAddr) {
	ci, _ := r.byID.Get(r.self)
	ci.Pubkey = r.self
	ci.TVU = addr
	r.byID.Put(r.self, ci)
}

// Self returns this archiver's own contact entry.
func (r *Registry) Self() ContactInfo {
	ci, _ := r.byID.Get(r.self)
	return ci
}
