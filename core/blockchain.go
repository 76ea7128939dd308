package core

import (
	"sync"

	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
)

// Soft rejection sentinels (§7). These are never returned as Go errors from
// the public API — AddTransaction/AddBlock/ReplaceChain reduce them to a
// plain bool, matching the propagation policy of §7. They exist so callers
// that want to know *why* can type-assert internally and logging can be
// specific; the boundary API stays boolean.
var (
	errDuplicateItem       = errors.New("duplicate item")
	errInsufficientBalance = errors.New("insufficient balance")
	errInvalidBlock        = errors.New("invalid block")
	errChainRejected       = errors.New("chain rejected")
)

var (
	mempoolSizeGauge  = metrics.NewRegisteredGauge("blockchain/mempool/size", nil)
	txAcceptedCounter = metrics.NewRegisteredCounter("blockchain/tx/accepted", nil)
	txRejectedCounter = metrics.NewRegisteredCounter("blockchain/tx/rejected", nil)
	blockAcceptedCounter = metrics.NewRegisteredCounter("blockchain/block/accepted", nil)
	chainReplacedCounter  = metrics.NewRegisteredCounter("blockchain/chain/replaced", nil)
)

// Blockchain is the authoritative state at a node: the committed chain plus
// the pending-transaction mempool. All mutating operations are serialized
// under a single lock (§5, §9 "Race on Blockchain mutation") — the
// reference implementation is race-prone here and this hardens it.
type Blockchain struct {
	mu sync.RWMutex

	chain              []*Block
	pendingTransactions []*Transaction
	pendingIDs          map[string]struct{}
	committedIDs        map[string]struct{}
}

// NewBlockchain returns a fresh chain seeded with the canonical genesis.
func NewBlockchain() *Blockchain {
	genesis := CreateGenesis()
	return &Blockchain{
		chain:        []*Block{genesis},
		pendingIDs:   make(map[string]struct{}),
		committedIDs: make(map[string]struct{}),
	}
}

// Chain returns a snapshot copy of the committed chain.
func (bc *Blockchain) Chain() []*Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]*Block, len(bc.chain))
	copy(out, bc.chain)
	return out
}

// PendingTransactions returns a snapshot copy of the mempool.
func (bc *Blockchain) PendingTransactions() []*Transaction {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]*Transaction, len(bc.pendingTransactions))
	copy(out, bc.pendingTransactions)
	return out
}

// Tip returns the last committed block.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.chain[len(bc.chain)-1]
}

// Len returns the committed chain length.
func (bc *Blockchain) Len() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.chain)
}

// GetBalance sums confirmed transactions only (§4.3).
func (bc *Blockchain) GetBalance(address string) float64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.confirmedBalance(address)
}

func (bc *Blockchain) confirmedBalance(address string) float64 {
	var balance float64
	for _, b := range bc.chain {
		for _, tx := range b.Transactions {
			if tx.Destino == address {
				balance += tx.Valor
			}
			if tx.Origem == address {
				balance -= tx.Valor
			}
		}
	}
	return balance
}

func (bc *Blockchain) pendingOutgoing(address string) float64 {
	var sum float64
	for _, tx := range bc.pendingTransactions {
		if tx.Origem == address {
			sum += tx.Valor
		}
	}
	return sum
}

// GetAvailableBalance is the confirmed balance minus pending outgoing
// amounts (§4.3).
func (bc *Blockchain) GetAvailableBalance(address string) float64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.confirmedBalance(address) - bc.pendingOutgoing(address)
}

// AddTransaction validates tx against the mempool and committed chain and,
// if accepted, appends it to the mempool (§4.3).
func (bc *Blockchain) AddTransaction(tx *Transaction) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if err := bc.admitTransactionLocked(tx); err != nil {
		txRejectedCounter.Inc(1)
		return false
	}
	bc.pendingTransactions = append(bc.pendingTransactions, tx)
	bc.pendingIDs[tx.ID] = struct{}{}
	mempoolSizeGauge.Update(int64(len(bc.pendingTransactions)))
	txAcceptedCounter.Inc(1)
	return true
}

// admitTransactionLocked applies the rejection rules of §4.3 without
// mutating state. Called from AddTransaction; block validation uses its own
// replay (replayTransactionsLocked).
func (bc *Blockchain) admitTransactionLocked(tx *Transaction) error {
	if _, dup := bc.pendingIDs[tx.ID]; dup {
		return errDuplicateItem
	}
	if _, committed := bc.committedIDs[tx.ID]; committed {
		return errDuplicateItem
	}
	if !isSystemAddress(tx.Origem) {
		available := bc.confirmedBalance(tx.Origem) - bc.pendingOutgoing(tx.Origem)
		if available < tx.Valor {
			return errInsufficientBalance
		}
	}
	return nil
}

// IsValidBlock checks structure and PoW linkage (§4.3) but, per the
// hardened §9 recommendation, also replays every contained transaction
// against a fresh copy of chain-prefix state so an adversarial peer cannot
// ship a block whose transactions overspend.
func (bc *Blockchain) IsValidBlock(b *Block) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.isValidBlockLocked(b)
}

func (bc *Blockchain) isValidBlockLocked(b *Block) bool {
	tip := bc.chain[len(bc.chain)-1]
	if b.Index != uint64(len(bc.chain)) {
		return false
	}
	if b.PreviousHash != tip.Hash {
		return false
	}
	if !b.IsValidHash(DifficultyPrefix) {
		return false
	}
	if b.Hash != b.CalculateHash() {
		return false
	}
	return bc.replayTransactionsLocked(b) == nil
}

// replayTransactionsLocked re-plays the block's transactions (skipping the
// leading coinbase, which is exempt from solvency checks by virtue of its
// system sender) against balances derived from the committed chain alone,
// catching intra-block double spends an isolated per-tx check would miss.
func (bc *Blockchain) replayTransactionsLocked(b *Block) error {
	spent := make(map[string]float64)
	seen := make(map[string]struct{})
	for _, tx := range b.Transactions {
		if _, dup := seen[tx.ID]; dup {
			return errors.Wrap(errInvalidBlock, "duplicate transaction id within block")
		}
		seen[tx.ID] = struct{}{}
		if _, committed := bc.committedIDs[tx.ID]; committed {
			return errors.Wrap(errInvalidBlock, "transaction id already committed")
		}
		if !isSystemAddress(tx.Origem) {
			available := bc.confirmedBalance(tx.Origem) - spent[tx.Origem]
			if available < tx.Valor {
				return errors.Wrap(errInvalidBlock, "transaction would overspend")
			}
			spent[tx.Origem] += tx.Valor
		}
	}
	return nil
}

// AddBlock validates b and, on success, commits it and prunes its
// transactions from the mempool in one pass (§4.3).
func (bc *Blockchain) AddBlock(b *Block) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if !bc.isValidBlockLocked(b) {
		return false
	}
	bc.commitLocked(b)
	return true
}

func (bc *Blockchain) commitLocked(b *Block) {
	inBlock := make(map[string]struct{}, len(b.Transactions))
	for _, tx := range b.Transactions {
		inBlock[tx.ID] = struct{}{}
		bc.committedIDs[tx.ID] = struct{}{}
	}
	filtered := bc.pendingTransactions[:0:0]
	for _, tx := range bc.pendingTransactions {
		if _, in := inBlock[tx.ID]; in {
			delete(bc.pendingIDs, tx.ID)
			continue
		}
		filtered = append(filtered, tx)
	}
	bc.pendingTransactions = filtered
	bc.chain = append(bc.chain, b)
	mempoolSizeGauge.Update(int64(len(bc.pendingTransactions)))
	blockAcceptedCounter.Inc(1)
}

// IsValidChain checks a candidate chain in isolation: canonical genesis,
// then link/PoW/hash for every subsequent block (§4.3), and finally replays
// transaction solvency across the whole candidate from scratch
// (replayChainLocked).
func IsValidChain(candidate []*Block) bool {
	if len(candidate) == 0 {
		return false
	}
	if candidate[0].Hash != GenesisHash {
		return false
	}
	for i := 1; i < len(candidate); i++ {
		b, prev := candidate[i], candidate[i-1]
		if b.Index != uint64(i) {
			return false
		}
		if b.PreviousHash != prev.Hash {
			return false
		}
		if !b.IsValidHash(DifficultyPrefix) {
			return false
		}
		if b.Hash != b.CalculateHash() {
			return false
		}
	}
	return replayChainLocked(candidate)
}

// replayChainLocked re-derives balances from scratch while walking the
// candidate so an adversarial longer chain cannot win by shipping
// overspending blocks (§9).
func replayChainLocked(candidate []*Block) bool {
	balances := make(map[string]float64)
	seen := make(map[string]struct{})
	for _, b := range candidate {
		for _, tx := range b.Transactions {
			if _, dup := seen[tx.ID]; dup {
				return false
			}
			seen[tx.ID] = struct{}{}
			if !isSystemAddress(tx.Origem) {
				if balances[tx.Origem] < tx.Valor {
					return false
				}
				balances[tx.Origem] -= tx.Valor
			}
			balances[tx.Destino] += tx.Valor
		}
	}
	return true
}

// ReplaceChain adopts candidate only if it is strictly longer than the
// current chain and independently valid (§4.3). Equal length is rejected —
// the incumbent wins ties (§9).
func (bc *Blockchain) ReplaceChain(candidate []*Block) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(candidate) <= len(bc.chain) {
		return false
	}
	if !IsValidChain(candidate) {
		return false
	}
	bc.chain = make([]*Block, len(candidate))
	copy(bc.chain, candidate)

	bc.committedIDs = make(map[string]struct{})
	for _, b := range bc.chain {
		for _, tx := range b.Transactions {
			bc.committedIDs[tx.ID] = struct{}{}
		}
	}
	// Re-admit surviving pending transactions against balances under the
	// new chain: a transaction that was solvent against the old tip may no
	// longer be, and invariant (g) must hold immediately after the swap,
	// not just eventually.
	spent := make(map[string]float64)
	var survivors []*Transaction
	for _, tx := range bc.pendingTransactions {
		if _, committed := bc.committedIDs[tx.ID]; committed {
			delete(bc.pendingIDs, tx.ID)
			continue
		}
		if !isSystemAddress(tx.Origem) {
			available := bc.confirmedBalance(tx.Origem) - spent[tx.Origem]
			if available < tx.Valor {
				delete(bc.pendingIDs, tx.ID)
				continue
			}
			spent[tx.Origem] += tx.Valor
		}
		survivors = append(survivors, tx)
	}
	bc.pendingTransactions = survivors
	mempoolSizeGauge.Update(int64(len(bc.pendingTransactions)))
	chainReplacedCounter.Inc(1)
	return true
}
