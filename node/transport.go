package node

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/andreydedey/bitcoin-like-distributed-system/protocol"
)

// sendRequest dials addr, writes msg, and waits for exactly one reply,
// recording success or failure against the peer set (§4.6, §7
// *PeerUnreachable*). The whole exchange is bounded by RequestTimeout.
func (n *Node) sendRequest(addr string, msg *protocol.Message) (*protocol.Message, error) {
	deadline := time.Now().Add(RequestTimeout)
	conn, err := net.DialTimeout("tcp", addr, RequestTimeout)
	if err != nil {
		n.peers.RecordFailure(addr)
		return nil, errors.Wrap(err, "dial failed")
	}
	defer conn.Close()
	conn.SetDeadline(deadline)

	if err := protocol.WriteMessage(conn, msg); err != nil {
		n.peers.RecordFailure(addr)
		return nil, errors.Wrap(err, "write failed")
	}
	reply, err := protocol.ReadMessage(conn)
	if err != nil {
		n.peers.RecordFailure(addr)
		return nil, errors.Wrap(err, "read failed")
	}
	n.peers.RecordSuccess(addr)
	return reply, nil
}

// sendOneWay dials addr and writes msg without waiting for a reply, used
// for the broadcast kinds that have no response in the taxonomy
// (NEW_TRANSACTION, NEW_BLOCK, gossiped PEERS_LIST).
func (n *Node) sendOneWay(addr string, msg *protocol.Message) error {
	conn, err := net.DialTimeout("tcp", addr, RequestTimeout)
	if err != nil {
		n.peers.RecordFailure(addr)
		return errors.Wrap(err, "dial failed")
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(RequestTimeout))

	if err := protocol.WriteMessage(conn, msg); err != nil {
		n.peers.RecordFailure(addr)
		return errors.Wrap(err, "write failed")
	}
	n.peers.RecordSuccess(addr)
	return nil
}

// broadcastExcept fans msg out to every eligible peer but exclude, each on
// its own goroutine so one slow or dead peer never delays the rest (§4.6
// "Broadcast policy").
func (n *Node) broadcastExcept(msg *protocol.Message, exclude string) {
	for _, addr := range n.peers.BroadcastTargets(exclude) {
		go func(addr string) {
			if err := n.sendOneWay(addr, msg); err != nil {
				logger.Debug("broadcast send failed", "addr", addr, "err", err)
			}
		}(addr)
	}
}

// ConnectToPeer performs the handshake of §4.6 "Connecting to a peer": PING
// to register, then DISCOVER_PEERS to absorb its peer list.
func (n *Node) ConnectToPeer(addr string) error {
	if addr == "" || addr == n.Address() {
		return errors.New("refusing to connect to self")
	}
	reply, err := n.sendRequest(addr, protocol.NewPingMessage(n.Address()))
	if err != nil {
		return err
	}
	if reply.Type != protocol.Pong {
		return errors.Errorf("unexpected reply to PING: %s", reply.Type)
	}
	n.peers.Register(addr)

	reply, err = n.sendRequest(addr, protocol.NewDiscoverPeersMessage(n.Address()))
	if err != nil {
		logger.Debug("peer discovery follow-up failed", "addr", addr, "err", err)
		return nil
	}
	if reply.Type != protocol.PeersList {
		return nil
	}
	discovered, err := reply.Peers()
	if err != nil {
		return nil
	}
	for _, peerAddr := range discovered {
		n.peers.Register(peerAddr)
	}
	return nil
}
