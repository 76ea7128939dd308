package node

import (
	"github.com/andreydedey/bitcoin-like-distributed-system/protocol"
)

// dispatch applies §4.6's per-kind handling rule to one inbound message and
// returns the reply to write back, or nil for the broadcast kinds that
// expect none. Modeled on the teacher's node/ranger/handler.go: one
// exhaustive switch over message kind, each case doing exactly the work its
// protocol step requires and nothing more.
func (n *Node) dispatch(msg *protocol.Message) *protocol.Message {
	switch msg.Type {
	case protocol.NewTransaction:
		return n.handleNewTransaction(msg)
	case protocol.NewBlock:
		return n.handleNewBlock(msg)
	case protocol.RequestChain:
		return n.handleRequestChain(msg)
	case protocol.ResponseChain:
		return n.handleResponseChain(msg)
	case protocol.Ping:
		return n.handlePing(msg)
	case protocol.Pong:
		return nil
	case protocol.DiscoverPeers:
		return n.handleDiscoverPeers(msg)
	case protocol.PeersList:
		return n.handlePeersList(msg)
	default:
		logger.Debug("unknown message kind", "type", msg.Type)
		return nil
	}
}

func (n *Node) handleNewTransaction(msg *protocol.Message) *protocol.Message {
	tx, err := msg.Transaction()
	if err != nil {
		logger.Debug("malformed NEW_TRANSACTION", "err", err)
		return nil
	}
	if n.seen.MarkSeen(tx.ID) {
		return nil
	}
	if !n.bc.AddTransaction(tx) {
		return nil
	}
	n.broadcastExcept(protocol.NewTransactionMessage(tx, n.Address()), msg.Sender)
	if n.OnNewTransaction != nil {
		n.OnNewTransaction(tx)
	}
	return nil
}

func (n *Node) handleNewBlock(msg *protocol.Message) *protocol.Message {
	b, err := msg.Block()
	if err != nil {
		logger.Debug("malformed NEW_BLOCK", "err", err)
		return nil
	}
	if n.seen.MarkSeen(b.Hash) {
		return nil
	}
	if !n.bc.AddBlock(b) {
		return nil
	}
	n.miner.StopMining()
	n.broadcastExcept(protocol.NewBlockMessage(b, n.Address()), msg.Sender)
	if n.OnNewBlock != nil {
		n.OnNewBlock(b)
	}
	return nil
}

func (n *Node) handleRequestChain(msg *protocol.Message) *protocol.Message {
	return protocol.NewResponseChainMessage(n.bc.Chain(), n.bc.PendingTransactions(), n.Address())
}

// handleResponseChain applies the same ReplaceChain rule whether this
// RESPONSE_CHAIN arrived as an explicit reply to REQUEST_CHAIN or
// unsolicited (§9): the candidate must win on its own merits.
func (n *Node) handleResponseChain(msg *protocol.Message) *protocol.Message {
	chain, _, err := msg.ChainAndPending()
	if err != nil {
		logger.Debug("malformed RESPONSE_CHAIN", "err", err)
		return nil
	}
	if n.bc.ReplaceChain(chain) {
		n.miner.StopMining()
		logger.Info("adopted longer chain", "from", msg.Sender, "len", len(chain))
	}
	return nil
}

// handlePing registers the caller as a peer and, the first time it is seen,
// gossips it to every other known peer as a single-element PEERS_LIST
// (§9 "viral peer discovery").
func (n *Node) handlePing(msg *protocol.Message) *protocol.Message {
	if msg.Sender != "" && msg.Sender != n.Address() {
		if n.peers.Register(msg.Sender) {
			n.gossipNewPeer(msg.Sender)
		}
	}
	return protocol.NewPongMessage(n.Address())
}

func (n *Node) handleDiscoverPeers(msg *protocol.Message) *protocol.Message {
	return protocol.NewPeersListMessage(n.peers.Addresses(), n.Address())
}

func (n *Node) handlePeersList(msg *protocol.Message) *protocol.Message {
	peerAddrs, err := msg.Peers()
	if err != nil {
		logger.Debug("malformed PEERS_LIST", "err", err)
		return nil
	}
	for _, addr := range peerAddrs {
		n.peers.Register(addr)
	}
	return nil
}

func (n *Node) gossipNewPeer(addr string) {
	announcement := protocol.NewPeersListMessage([]string{addr}, n.Address())
	n.broadcastExcept(announcement, addr)
}
