package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andreydedey/bitcoin-like-distributed-system/core"
)

func TestMessage_RoundTripOverWire(t *testing.T) {
	tx, err := core.NewTransaction("alice", "bob", 5)
	require.NoError(t, err)
	msg := NewTransactionMessage(tx, "127.0.0.1:9000")

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, NewTransaction, got.Type)
	require.Equal(t, "127.0.0.1:9000", got.Sender)

	gotTx, err := got.Transaction()
	require.NoError(t, err)
	require.True(t, tx.Equal(gotTx))
}

func TestMessage_BlockRoundTrip(t *testing.T) {
	b := core.CreateGenesis()
	msg := NewBlockMessage(b, "sender")

	body, err := msg.Encode()
	require.NoError(t, err)
	back, err := Decode(body)
	require.NoError(t, err)

	gotBlock, err := back.Block()
	require.NoError(t, err)
	require.Equal(t, b.Hash, gotBlock.Hash)
}

func TestMessage_ResponseChainRoundTrip(t *testing.T) {
	chain := []*core.Block{core.CreateGenesis()}
	tx, err := core.NewTransaction("alice", "bob", 1)
	require.NoError(t, err)
	msg := NewResponseChainMessage(chain, []*core.Transaction{tx}, "sender")

	body, err := msg.Encode()
	require.NoError(t, err)
	back, err := Decode(body)
	require.NoError(t, err)

	gotChain, gotPending, err := back.ChainAndPending()
	require.NoError(t, err)
	require.Len(t, gotChain, 1)
	require.Equal(t, chain[0].Hash, gotChain[0].Hash)
	require.Len(t, gotPending, 1)
	require.True(t, tx.Equal(gotPending[0]))
}

func TestMessage_PeersListRoundTrip(t *testing.T) {
	msg := NewPeersListMessage([]string{"a:1", "b:2"}, "sender")
	body, err := msg.Encode()
	require.NoError(t, err)
	back, err := Decode(body)
	require.NoError(t, err)
	peers, err := back.Peers()
	require.NoError(t, err)
	require.Equal(t, []string{"a:1", "b:2"}, peers)
}

func TestDecode_RejectsMissingKeys(t *testing.T) {
	_, err := Decode([]byte(`{"type": "PING"}`))
	require.ErrorIs(t, err, ErrMalformedMessage)

	_, err = Decode([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestReadMessage_LoopsUntilLengthConsumed(t *testing.T) {
	msg := NewPingMessage("x")
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	// Simulate a reader that only yields a few bytes at a time.
	r := &slowReader{data: buf.Bytes(), chunk: 3}
	got, err := ReadMessage(r)
	require.NoError(t, err)
	require.Equal(t, Ping, got.Type)
}

type slowReader struct {
	data  []byte
	chunk int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}
