package miner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreydedey/bitcoin-like-distributed-system/core"
)

// fakeChain is a minimal ChainReader for tests that don't need a full
// Blockchain's locking and validation.
type fakeChain struct {
	mu   sync.Mutex
	tip  *core.Block
	txs  []*core.Transaction
}

func newFakeChain() *fakeChain {
	return &fakeChain{tip: core.CreateGenesis()}
}

func (f *fakeChain) Tip() *core.Block { f.mu.Lock(); defer f.mu.Unlock(); return f.tip }
func (f *fakeChain) Len() int         { return 1 }
func (f *fakeChain) PendingTransactions() []*core.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*core.Transaction, len(f.txs))
	copy(out, f.txs)
	return out
}

func TestMine_ReturnsSatisfyingBlock(t *testing.T) {
	chain := newFakeChain()
	m := New(chain, "miner-address", DefaultConfig())

	block, err := m.Mine(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.True(t, block.IsValidHash(core.DifficultyPrefix))
	require.Equal(t, "coinbase", block.Transactions[0].Origem)
	require.Equal(t, "miner-address", block.Transactions[0].Destino)
}

func TestMine_PrioritizesHigherValueTransactions(t *testing.T) {
	chain := newFakeChain()
	low, err := core.NewTransaction("alice", "bob", 1)
	require.NoError(t, err)
	high, err := core.NewTransaction("alice", "carol", 100)
	require.NoError(t, err)
	chain.txs = []*core.Transaction{low, high}

	m := New(chain, "m", Config{Workers: 1, ProgressInterval: 100})
	block, err := m.Mine(nil, nil)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 3) // coinbase + 2
	require.Equal(t, high.ID, block.Transactions[1].ID)
	require.Equal(t, low.ID, block.Transactions[2].ID)
}

func TestStopMining_MineReturnsWithoutPanic(t *testing.T) {
	chain := newFakeChain()
	// A small worker count and a stop issued right after the search starts.
	m := New(chain, "m", Config{Workers: 2, ProgressInterval: 1})

	done := make(chan *core.Block, 1)
	go func() {
		b, _ := m.Mine(nil, nil)
		done <- b
	}()
	// Give the workers a moment to start, then request cancellation. Since
	// the real difficulty is low, the search likely finishes before the
	// stop lands — the assertion only checks that StopMining never panics
	// and Mine always returns.
	time.Sleep(time.Millisecond)
	m.StopMining()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Mine did not return after StopMining")
	}
}

func TestMine_ProgressCallbackInvoked(t *testing.T) {
	chain := newFakeChain()
	m := New(chain, "m", Config{Workers: 1, ProgressInterval: 1})

	var calls int32
	var mu sync.Mutex
	block, err := m.Mine(nil, func(workerID int, attempts uint64) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	// One worker striding by 1 fires the callback after every failed
	// attempt, so the count equals the winning nonce.
	require.Equal(t, block.Nonce, uint64(calls))
}
