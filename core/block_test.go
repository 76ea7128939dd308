package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateGenesis_HashIsBitExact(t *testing.T) {
	g := CreateGenesis()
	require.Equal(t, GenesisHash, g.Hash)
	require.Equal(t, uint64(0), g.Index)
	require.Len(t, g.PreviousHash, 64)
	require.Equal(t, 64, len(g.PreviousHash))
}

func TestBlock_CalculateHashIsDeterministic(t *testing.T) {
	tx, err := NewTransaction(AddressCoinbase, "alice", 50)
	require.NoError(t, err)

	b1, err := NewBlock(1, GenesisHash, []*Transaction{tx}, 7, 100, "")
	require.NoError(t, err)
	b2, err := NewBlock(1, GenesisHash, []*Transaction{tx}, 7, 100, "")
	require.NoError(t, err)
	require.Equal(t, b1.Hash, b2.Hash)
}

func TestBlock_IsValidHash(t *testing.T) {
	b := &Block{Hash: "000abc"}
	require.True(t, b.IsValidHash("000"))
	require.False(t, b.IsValidHash("001"))
}

func TestNewBlock_RejectsShortPreviousHash(t *testing.T) {
	_, err := NewBlock(1, "deadbeef", nil, 0, 0, "")
	require.ErrorIs(t, err, ErrInvalidBlockStructure)
}

func TestBlock_RoundTrip(t *testing.T) {
	tx, err := NewTransaction("alice", "bob", 3)
	require.NoError(t, err)
	b, err := NewBlock(1, GenesisHash, []*Transaction{tx}, 42, 123.5, "")
	require.NoError(t, err)

	back, err := BlockFromMap(b.ToMap())
	require.NoError(t, err)
	require.Equal(t, b.Hash, back.Hash)
	require.Equal(t, b.CalculateHash(), back.CalculateHash())
}
