// Package node wires core, miner, protocol and p2p into a runnable
// participant: a listening socket, per-connection handlers, a peer set, and
// one-shot mining and chain sync (the repeating loops that drive them live
// in cmd/bitcoinnode). It is grounded on the teacher's node.Node
// lifecycle (Config, Start/Stop, a registry the node owns and drives) from
// node/service.go, generalized from a service-registry host to a single
// fixed set of subsystems since this system has no pluggable services.
package node

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/andreydedey/bitcoin-like-distributed-system/core"
	"github.com/andreydedey/bitcoin-like-distributed-system/log"
	"github.com/andreydedey/bitcoin-like-distributed-system/miner"
	"github.com/andreydedey/bitcoin-like-distributed-system/p2p"
	"github.com/andreydedey/bitcoin-like-distributed-system/protocol"
)

// RequestTimeout bounds a full outbound request/response exchange,
// including the dial (§6 "Outbound sockets use a 10-second timeout").
const RequestTimeout = 10 * time.Second

var logger = log.NewModuleLogger(log.Node)

// Node owns the blockchain, the miner, the peer set and the listening
// socket, and dispatches every inbound connection per §4.6.
type Node struct {
	cfg Config

	bc    *core.Blockchain
	miner *miner.Miner
	peers *p2p.PeerSet
	seen  *core.SeenCache

	// OnNewTransaction and OnNewBlock, if set, fire after this node
	// accepts a transaction or block originating from a peer.
	OnNewTransaction func(*core.Transaction)
	OnNewBlock       func(*core.Block)

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	wg       sync.WaitGroup
}

// New builds a Node around a fresh Blockchain. Start must be called to bind
// and begin accepting connections.
func New(cfg Config) *Node {
	cfg = cfg.withDefaults()
	bc := core.NewBlockchain()
	n := &Node{
		cfg:   cfg,
		bc:    bc,
		peers: p2p.NewPeerSet(cfg.Address),
		seen:  core.NewSeenCache(),
	}
	n.miner = miner.New(bc, cfg.WalletAddress, cfg.Miner)
	return n
}

// Address is this node's own host:port identity, as announced to peers.
func (n *Node) Address() string { return n.cfg.Address }

// Blockchain exposes the owned chain for wallet-style read access (balance
// queries, chain inspection) without threading every accessor through Node.
func (n *Node) Blockchain() *core.Blockchain { return n.bc }

// Peers exposes the peer set for inspection (e.g. a status command).
func (n *Node) Peers() *p2p.PeerSet { return n.peers }

// Start binds the listening socket, begins accepting connections, and
// dials every configured bootstrap peer (§4.6 "Bootstrapping").
func (n *Node) Start() error {
	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "failed to bind listen address")
	}
	n.mu.Lock()
	n.listener = ln
	n.mu.Unlock()

	n.wg.Add(1)
	go n.acceptLoop()

	for _, addr := range n.cfg.BootstrapPeers {
		if err := n.ConnectToPeer(addr); err != nil {
			logger.Warn("bootstrap peer unreachable", "addr", addr, "err", err)
		}
	}
	logger.Info("node started", "addr", n.Address(), "listen", ln.Addr().String())
	return nil
}

// Stop closes the listener and halts any in-flight mining search. Already
// accepted connections are allowed to finish their single request.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	ln := n.listener
	n.mu.Unlock()

	n.miner.StopMining()
	if ln != nil {
		ln.Close()
	}
	n.wg.Wait()
}

func (n *Node) isStopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if n.isStopped() {
				return
			}
			logger.Warn("accept failed", "err", err)
			continue
		}
		n.wg.Add(1)
		go n.handleConnection(conn)
	}
}

// handleConnection reads exactly one framed message, dispatches it, and
// writes a reply if the dispatch rule produces one (§6 "one message per
// connection in each direction").
func (n *Node) handleConnection(conn net.Conn) {
	defer n.wg.Done()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(RequestTimeout))
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		logger.Debug("malformed inbound message", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	reply := n.dispatch(msg)
	if reply == nil {
		return
	}
	if err := protocol.WriteMessage(conn, reply); err != nil {
		logger.Debug("failed to write reply", "remote", conn.RemoteAddr(), "err", err)
	}
}

// BroadcastTransaction admits tx into the local mempool and, if newly
// accepted, fans it out to every peer (§4.3, §4.6).
func (n *Node) BroadcastTransaction(tx *core.Transaction) bool {
	if !n.bc.AddTransaction(tx) {
		return false
	}
	n.broadcastExcept(protocol.NewTransactionMessage(tx, n.Address()), "")
	return true
}

// BroadcastBlock commits b locally and, if newly accepted, announces it to
// every peer (§4.3, §4.6).
func (n *Node) BroadcastBlock(b *core.Block) bool {
	if !n.bc.AddBlock(b) {
		return false
	}
	n.broadcastExcept(protocol.NewBlockMessage(b, n.Address()), "")
	return true
}

// Mine runs one full mining search over the current mempool and, on
// success, commits and broadcasts the result (§4.4 step 8). It returns the
// mined block, or nil if the search was stopped before completion.
func (n *Node) Mine() (*core.Block, error) {
	block, err := n.miner.Mine(nil, nil)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}
	if !n.bc.AddBlock(block) {
		return nil, errors.New("mined block rejected by own chain")
	}
	n.broadcastExcept(protocol.NewBlockMessage(block, n.Address()), "")
	return block, nil
}
