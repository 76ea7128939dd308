// Package protocol implements the framed wire format and message taxonomy
// of §4.5 and §6: a 4-byte big-endian length prefix followed by exactly
// that many bytes of UTF-8 JSON, one message per connection per direction.
// It is modeled on the teacher's node/cn/protocol.go (message code
// constants, an errCode taxonomy) but redesigned around a JSON envelope
// instead of RLP message codes, per the spec's external interface (§6).
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/andreydedey/bitcoin-like-distributed-system/core"
)

// MaxMessageSize caps a single frame, mirroring the teacher's
// ProtocolMaxMsgSize guard against a malicious or buggy peer claiming an
// enormous length prefix.
const MaxMessageSize = 10 * 1024 * 1024

// ErrMalformedMessage is raised by wire decoding — never by local
// construction — and must never poison the mempool or chain (§7).
var ErrMalformedMessage = errors.New("malformed message")

// Kind is one of the eight wire message symbols (§4.5). The wire value is
// exactly this string.
type Kind string

const (
	NewTransaction Kind = "NEW_TRANSACTION"
	NewBlock       Kind = "NEW_BLOCK"
	RequestChain   Kind = "REQUEST_CHAIN"
	ResponseChain  Kind = "RESPONSE_CHAIN"
	Ping           Kind = "PING"
	Pong           Kind = "PONG"
	DiscoverPeers  Kind = "DISCOVER_PEERS"
	PeersList      Kind = "PEERS_LIST"
)

// Message is the envelope every wire exchange uses (§6): type, payload,
// sender's own host:port (may be empty for unsolicited dials).
type Message struct {
	Type    Kind                   `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	Sender  string                 `json:"sender"`
}

func newMessage(kind Kind, payload map[string]interface{}, sender string) *Message {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Message{Type: kind, Payload: payload, Sender: sender}
}

// NewTransactionMessage proposes tx for the recipient's mempool.
func NewTransactionMessage(tx *core.Transaction, sender string) *Message {
	return newMessage(NewTransaction, map[string]interface{}{"transaction": tx.ToMap()}, sender)
}

// NewBlockMessage announces a mined block.
func NewBlockMessage(b *core.Block, sender string) *Message {
	return newMessage(NewBlock, map[string]interface{}{"block": b.ToMap()}, sender)
}

// NewRequestChainMessage asks a peer for its chain.
func NewRequestChainMessage(sender string) *Message {
	return newMessage(RequestChain, nil, sender)
}

// NewResponseChainMessage replies with {chain, pending_transactions}.
func NewResponseChainMessage(chain []*core.Block, pending []*core.Transaction, sender string) *Message {
	chainRecords := make([]map[string]interface{}, len(chain))
	for i, b := range chain {
		chainRecords[i] = b.ToMap()
	}
	pendingRecords := make([]map[string]interface{}, len(pending))
	for i, tx := range pending {
		pendingRecords[i] = tx.ToMap()
	}
	payload := map[string]interface{}{
		"blockchain": map[string]interface{}{
			"chain":               chainRecords,
			"pending_transactions": pendingRecords,
		},
	}
	return newMessage(ResponseChain, payload, sender)
}

// NewPingMessage carries the sender's own address for peer registration.
func NewPingMessage(sender string) *Message {
	return newMessage(Ping, nil, sender)
}

// NewPongMessage acknowledges a Ping.
func NewPongMessage(sender string) *Message {
	return newMessage(Pong, nil, sender)
}

// NewDiscoverPeersMessage asks a peer for its known peers.
func NewDiscoverPeersMessage(sender string) *Message {
	return newMessage(DiscoverPeers, nil, sender)
}

// NewPeersListMessage carries a list of host:port peers, either as a reply
// to DiscoverPeers or as a single-element viral gossip announcement (§9).
func NewPeersListMessage(peers []string, sender string) *Message {
	peerValues := make([]interface{}, len(peers))
	for i, p := range peers {
		peerValues[i] = p
	}
	return newMessage(PeersList, map[string]interface{}{"peers": peerValues}, sender)
}

// Transaction extracts the payload's transaction record.
func (m *Message) Transaction() (*core.Transaction, error) {
	raw, ok := m.Payload["transaction"].(map[string]interface{})
	if !ok {
		return nil, errors.Wrap(ErrMalformedMessage, "payload missing transaction")
	}
	tx, err := core.TransactionFromMap(raw)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	return tx, nil
}

// Block extracts the payload's block record.
func (m *Message) Block() (*core.Block, error) {
	raw, ok := m.Payload["block"].(map[string]interface{})
	if !ok {
		return nil, errors.Wrap(ErrMalformedMessage, "payload missing block")
	}
	b, err := core.BlockFromMap(raw)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	return b, nil
}

// ChainAndPending extracts a RESPONSE_CHAIN payload's candidate chain and
// mempool.
func (m *Message) ChainAndPending() ([]*core.Block, []*core.Transaction, error) {
	raw, ok := m.Payload["blockchain"].(map[string]interface{})
	if !ok {
		return nil, nil, errors.Wrap(ErrMalformedMessage, "payload missing blockchain")
	}
	chainRaw, _ := raw["chain"].([]interface{})
	chain := make([]*core.Block, 0, len(chainRaw))
	for _, entry := range chainRaw {
		bMap, ok := entry.(map[string]interface{})
		if !ok {
			return nil, nil, errors.Wrap(ErrMalformedMessage, "malformed chain entry")
		}
		b, err := core.BlockFromMap(bMap)
		if err != nil {
			return nil, nil, errors.Wrap(ErrMalformedMessage, err.Error())
		}
		chain = append(chain, b)
	}
	pendingRaw, _ := raw["pending_transactions"].([]interface{})
	pending := make([]*core.Transaction, 0, len(pendingRaw))
	for _, entry := range pendingRaw {
		txMap, ok := entry.(map[string]interface{})
		if !ok {
			return nil, nil, errors.Wrap(ErrMalformedMessage, "malformed pending transaction entry")
		}
		tx, err := core.TransactionFromMap(txMap)
		if err != nil {
			return nil, nil, errors.Wrap(ErrMalformedMessage, err.Error())
		}
		pending = append(pending, tx)
	}
	return chain, pending, nil
}

// Peers extracts a PEERS_LIST payload.
func (m *Message) Peers() ([]string, error) {
	raw, ok := m.Payload["peers"].([]interface{})
	if !ok {
		return nil, errors.Wrap(ErrMalformedMessage, "payload missing peers")
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Wrap(ErrMalformedMessage, "peers entry is not a string")
		}
		out = append(out, s)
	}
	return out, nil
}

// Encode serializes m to the canonical wire bytes: the JSON envelope only
// (without the length prefix — see WriteMessage for the framed form).
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses the canonical wire bytes into a Message, failing with
// ErrMalformedMessage if any of the three required keys is absent (§6).
func Decode(data []byte) (*Message, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	typeVal, hasType := raw["type"].(string)
	payloadVal, hasPayload := raw["payload"].(map[string]interface{})
	senderVal, hasSender := raw["sender"].(string)
	if !hasType || !hasPayload || !hasSender {
		return nil, errors.Wrap(ErrMalformedMessage, "message missing type, payload, or sender")
	}
	return &Message{Type: Kind(typeVal), Payload: payloadVal, Sender: senderVal}, nil
}

// WriteMessage frames m as a 4-byte big-endian length prefix followed by
// its JSON bytes (§6) and writes it to w.
func WriteMessage(w io.Writer, m *Message) error {
	body, err := m.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	if len(body) > MaxMessageSize {
		return errors.Wrap(ErrMalformedMessage, "message exceeds MaxMessageSize")
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return errors.Wrap(err, "failed to write length prefix")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "failed to write message body")
	}
	return nil
}

// ReadMessage reads one framed message from r, looping until the full
// length-prefixed body is consumed (§6).
func ReadMessage(r io.Reader) (*Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenPrefix[:])
	if length > MaxMessageSize {
		return nil, errors.Wrap(ErrMalformedMessage, "declared length exceeds MaxMessageSize")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "short read for message body")
	}
	return Decode(body)
}
