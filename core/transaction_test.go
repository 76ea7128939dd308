package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTransaction_Valid(t *testing.T) {
	tx, err := NewTransaction("alice", "bob", 10.5)
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID)
	require.Equal(t, "alice", tx.Origem)
	require.Equal(t, "bob", tx.Destino)
	require.Equal(t, 10.5, tx.Valor)
}

func TestNewTransaction_RejectsNonPositiveValue(t *testing.T) {
	_, err := NewTransaction("alice", "bob", 0)
	require.ErrorIs(t, err, ErrInvalidTransactionValue)

	_, err = NewTransaction("alice", "bob", -5)
	require.ErrorIs(t, err, ErrInvalidTransactionValue)
}

func TestNewTransaction_RejectsEmptyAddresses(t *testing.T) {
	_, err := NewTransaction("", "bob", 10)
	require.ErrorIs(t, err, ErrInvalidTransactionAddress)

	_, err = NewTransaction("alice", "", 10)
	require.ErrorIs(t, err, ErrInvalidTransactionAddress)
}

func TestNewTransaction_RejectsSelfTransferUnlessSystem(t *testing.T) {
	_, err := NewTransaction("alice", "alice", 10)
	require.ErrorIs(t, err, ErrInvalidTransactionAddress)

	tx, err := newTransactionAt(AddressGenesis, AddressGenesis, 10, 0)
	require.NoError(t, err)
	require.Equal(t, AddressGenesis, tx.Origem)
}

func TestTransaction_RoundTrip(t *testing.T) {
	tx, err := NewTransaction("alice", "bob", 10.5)
	require.NoError(t, err)

	back, err := TransactionFromMap(tx.ToMap())
	require.NoError(t, err)
	require.True(t, tx.Equal(back))
}

func TestTransaction_EqualityByIDOnly(t *testing.T) {
	a, _ := NewTransaction("alice", "bob", 10)
	b := *a
	b.Valor = 999 // diverges on every field except ID
	require.True(t, a.Equal(&b))
}

func TestNewCoinbaseTransaction(t *testing.T) {
	tx, err := NewCoinbaseTransaction("miner", 0)
	require.NoError(t, err)
	require.Equal(t, AddressCoinbase, tx.Origem)
	require.Equal(t, MiningReward, tx.Valor)
}
