// Package p2p owns the flat peer address set a Node gossips and broadcasts
// over: membership plus a per-peer failure counter (§3 "Peer set", §4.6
// "Peer registration policy" and "Broadcast policy"). It is grounded on the
// teacher's node/cn/peer.go peerSet (a mutex-guarded membership map) and on
// gopkg.in/fatih/set.v0, the same set library node/sc/bridgepeer.go uses for
// its knownTxs/knownBlocks sets.
package p2p

import (
	"math/rand"
	"sync"

	set "gopkg.in/fatih/set.v0"
)

// MaxPeers is the soft cap on peer set size (§3).
const MaxPeers = 20

// MaxFailures is the failure threshold after which a peer is silently
// skipped in broadcasts (§3, §7 *PeerUnreachable*).
const MaxFailures = 3

// PeerSet tracks known peer addresses (host:port strings) and a failure
// counter per address. All operations are safe for concurrent use — the
// set is mutated from many tasks (acceptor, sync loop, broadcast senders).
type PeerSet struct {
	mu       sync.RWMutex
	self     string
	addrs    *set.Set
	failures map[string]int
}

// NewPeerSet returns an empty set that will never register self.
func NewPeerSet(self string) *PeerSet {
	return &PeerSet{
		self:     self,
		addrs:    set.New(),
		failures: make(map[string]int),
	}
}

// Register adds addr to the set, reporting whether it was newly added.
// Never registers self; ignores an already-known peer; ignores the
// request once the set is at MaxPeers (§4.6).
func (ps *PeerSet) Register(addr string) bool {
	if addr == "" || addr == ps.self {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.addrs.Has(addr) {
		return false
	}
	if ps.addrs.Size() >= MaxPeers {
		return false
	}
	ps.addrs.Add(addr)
	ps.failures[addr] = 0
	return true
}

// Remove drops addr from the set entirely.
func (ps *PeerSet) Remove(addr string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.addrs.Remove(addr)
	delete(ps.failures, addr)
}

// Has reports whether addr is currently known.
func (ps *PeerSet) Has(addr string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.addrs.Has(addr)
}

// Len returns the current peer count.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.addrs.Size()
}

// Addresses returns a snapshot of every known peer, in no particular
// order.
func (ps *PeerSet) Addresses() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	list := ps.addrs.List()
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = v.(string)
	}
	return out
}

// RecordSuccess resets addr's failure counter on a successful direct send
// (§4.6). Applied uniformly to every kind of direct exchange, not just
// PING, per the Python reference's node.py.
func (ps *PeerSet) RecordSuccess(addr string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.addrs.Has(addr) {
		ps.failures[addr] = 0
	}
}

// RecordFailure increments addr's failure counter (§7 *PeerUnreachable*).
// The peer is not removed — it is simply filtered out of future broadcasts
// by BroadcastTargets once it crosses MaxFailures.
func (ps *PeerSet) RecordFailure(addr string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.addrs.Has(addr) {
		ps.failures[addr]++
	}
}

// Failures returns addr's current failure count.
func (ps *PeerSet) Failures(addr string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.failures[addr]
}

// BroadcastTargets returns the peers eligible for a broadcast: known,
// under the failure threshold, and not equal to exclude — shuffled to
// avoid deterministic fan-out hotspots (§4.6 "Broadcast policy").
func (ps *PeerSet) BroadcastTargets(exclude string) []string {
	ps.mu.RLock()
	var targets []string
	for _, v := range ps.addrs.List() {
		addr := v.(string)
		if addr == exclude {
			continue
		}
		if ps.failures[addr] >= MaxFailures {
			continue
		}
		targets = append(targets, addr)
	}
	ps.mu.RUnlock()

	rand.Shuffle(len(targets), func(i, j int) { targets[i], targets[j] = targets[j], targets[i] })
	return targets
}
