package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// mineOne is a tiny single-threaded stand-in for the real Miner (tested in
// package miner), just enough to drive the Blockchain-level scenarios in
// spec §8 without an import cycle.
func mineOne(t *testing.T, bc *Blockchain, minerAddress string) *Block {
	t.Helper()
	tip := bc.Tip()
	coinbase, err := NewCoinbaseTransaction(minerAddress, 0)
	require.NoError(t, err)
	txs := append([]*Transaction{coinbase}, bc.PendingTransactions()...)

	for nonce := uint64(0); ; nonce++ {
		b, err := NewBlock(uint64(bc.Len()), tip.Hash, txs, nonce, 0, "")
		require.NoError(t, err)
		if b.IsValidHash(DifficultyPrefix) {
			return b
		}
	}
}

func TestS1_GenesisHash(t *testing.T) {
	bc := NewBlockchain()
	require.Equal(t, GenesisHash, bc.Chain()[0].Hash)
}

func TestS2_CoinbasePayout(t *testing.T) {
	bc := NewBlockchain()
	tx, err := newTransactionAt(AddressCoinbase, "alice", 50, 0)
	require.NoError(t, err)
	require.True(t, bc.AddTransaction(tx))

	b := mineOne(t, bc, "m")
	require.True(t, bc.AddBlock(b))

	require.Equal(t, 50.0, bc.GetBalance("alice"))
	require.Equal(t, 50.0, bc.GetBalance("m"))
	require.Empty(t, bc.PendingTransactions())
}

func TestS3_InsufficientFunds(t *testing.T) {
	bc := NewBlockchain()
	tx, err := NewTransaction("alice", "bob", 10)
	require.NoError(t, err)
	require.False(t, bc.AddTransaction(tx))
	require.Empty(t, bc.PendingTransactions())
}

func TestS4_PendingDoesNotCountTowardConfirmed(t *testing.T) {
	bc := NewBlockchain()
	tx, err := newTransactionAt(AddressCoinbase, "alice", 50, 0)
	require.NoError(t, err)
	require.True(t, bc.AddTransaction(tx))

	require.Equal(t, 0.0, bc.GetBalance("alice"))
	require.Equal(t, 0.0, bc.GetAvailableBalance("alice"))
}

func TestS5_DoubleSpendOfPendingOutgoing(t *testing.T) {
	bc := NewBlockchain()
	tx, err := newTransactionAt(AddressCoinbase, "alice", 50, 0)
	require.NoError(t, err)
	require.True(t, bc.AddTransaction(tx))
	b := mineOne(t, bc, "ignored-for-this-scenario")
	require.True(t, bc.AddBlock(b))

	first, err := NewTransaction("alice", "bob", 40)
	require.NoError(t, err)
	require.True(t, bc.AddTransaction(first))

	second, err := NewTransaction("alice", "carol", 40)
	require.NoError(t, err)
	require.False(t, bc.AddTransaction(second))
}

func TestS6_LongerChainWins(t *testing.T) {
	a := NewBlockchain()
	for i := 0; i < 3; i++ {
		b := mineOne(t, a, "a-miner")
		require.True(t, a.AddBlock(b))
	}
	b := NewBlockchain()
	for i := 0; i < 4; i++ {
		blk := mineOne(t, b, "b-miner")
		require.True(t, b.AddBlock(blk))
	}

	require.True(t, a.ReplaceChain(b.Chain()))
	require.Equal(t, chainHashes(b.Chain()), chainHashes(a.Chain()))
	require.False(t, b.ReplaceChain(a.Chain()))
}

func chainHashes(chain []*Block) []string {
	out := make([]string, len(chain))
	for i, b := range chain {
		out[i] = b.Hash
	}
	return out
}

func TestAddTransaction_RejectsDuplicateID(t *testing.T) {
	bc := NewBlockchain()
	tx, err := newTransactionAt(AddressCoinbase, "alice", 50, 0)
	require.NoError(t, err)
	require.True(t, bc.AddTransaction(tx))
	require.False(t, bc.AddTransaction(tx))
}

func TestAddBlock_RejectsStaleIndex(t *testing.T) {
	bc := NewBlockchain()
	tip := bc.Tip()
	stale, err := NewBlock(5, tip.Hash, nil, 0, 0, "")
	require.NoError(t, err)
	require.False(t, bc.AddBlock(stale))
}

func TestAddBlock_RejectsOverspendingBlock(t *testing.T) {
	bc := NewBlockchain()
	tip := bc.Tip()
	// Craft a block whose sole transaction spends funds alice never had.
	overspend, err := newTransactionAt("alice", "bob", 1000, 0)
	require.NoError(t, err)
	for nonce := uint64(0); ; nonce++ {
		candidate, err := NewBlock(1, tip.Hash, []*Transaction{overspend}, nonce, 0, "")
		require.NoError(t, err)
		if candidate.IsValidHash(DifficultyPrefix) {
			require.False(t, bc.AddBlock(candidate))
			return
		}
	}
}

func TestReplaceChain_RejectsEqualLength(t *testing.T) {
	bc := NewBlockchain()
	require.False(t, bc.ReplaceChain(bc.Chain()))
}
