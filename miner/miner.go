// Package miner implements the parallel Proof-of-Work search (§4.4). It
// partitions the nonce space across WORKERS cooperating goroutines in the
// shape of the teacher's work.CpuAgent (mu + stop channel), generalized from "one agent, one engine.Seal call" to "N workers
// racing over disjoint nonce strides with a first-finder-wins publish".
package miner

import (
	"sort"
	"sync"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/andreydedey/bitcoin-like-distributed-system/core"
	"github.com/andreydedey/bitcoin-like-distributed-system/log"
)

// Workers is the reference worker count (§4.4 step 4).
const Workers = 4

// ProgressInterval is how often (in attempts per worker) the optional
// progress callback fires (§4.4 step 7).
const ProgressInterval = 200000

var (
	logger           = log.NewModuleLogger(log.Miner)
	attemptsCounter  = metrics.NewRegisteredCounter("miner/attempts", nil)
	blocksFoundMeter = metrics.NewRegisteredCounter("miner/found", nil)
)

// Config tunes a Miner instance.
type Config struct {
	Workers          int
	ProgressInterval uint64
}

// DefaultConfig mirrors the reference's fixed constants.
func DefaultConfig() Config {
	return Config{Workers: Workers, ProgressInterval: ProgressInterval}
}

// ChainReader is the slice of Blockchain a Miner needs: the tip to extend
// and the mempool to draw transactions from. Mining never holds the
// Blockchain's lock between hash attempts (§5) — it snapshots through this
// interface once at the start of Mine.
type ChainReader interface {
	Tip() *core.Block
	Len() int
	PendingTransactions() []*core.Transaction
}

// ProgressFunc is the optional per-worker progress hook (§4.4 step 7).
type ProgressFunc func(workerID int, attempts uint64)

// Miner produces candidate blocks satisfying the difficulty predicate.
type Miner struct {
	chain   ChainReader
	address string
	cfg     Config

	mu      sync.Mutex
	session *miningSession // non-nil while a Mine call is in flight
}

type miningSession struct {
	stop chan struct{}
	once sync.Once
}

func (s *miningSession) cancel() {
	s.once.Do(func() { close(s.stop) })
}

// New returns a Miner bound to the given chain view and reward address.
func New(chain ChainReader, address string, cfg Config) *Miner {
	if cfg.Workers <= 0 {
		cfg.Workers = Workers
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = ProgressInterval
	}
	return &Miner{chain: chain, address: address, cfg: cfg}
}

// sortByValueDescending returns a copy of txs ordered by Valor descending;
// equal values preserve relative (insertion) order — the only fee-priority
// heuristic in this system (§4.4 step 2).
func sortByValueDescending(txs []*core.Transaction) []*core.Transaction {
	out := make([]*core.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Valor > out[j].Valor })
	return out
}

// Mine snapshots the chain tip and mempool, searches for a satisfying
// nonce, and returns the mined Block — or nil if StopMining was called
// before any worker found one. If txs is nil, the mempool is used
// (§4.4 steps 1-2). onProgress may be nil.
func (m *Miner) Mine(txs []*core.Transaction, onProgress ProgressFunc) (*core.Block, error) {
	index := uint64(m.chain.Len())
	prevHash := m.chain.Tip().Hash
	timestamp := float64(time.Now().UnixNano()) / 1e9

	if txs == nil {
		txs = sortByValueDescending(m.chain.PendingTransactions())
	}
	coinbase, err := core.NewCoinbaseTransaction(m.address, timestamp)
	if err != nil {
		return nil, err
	}
	body := append([]*core.Transaction{coinbase}, txs...)

	sess := &miningSession{stop: make(chan struct{})}
	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.session == sess {
			m.session = nil
		}
		m.mu.Unlock()
	}()

	var (
		foundMu sync.Mutex
		found   *core.Block
		wg      sync.WaitGroup
	)
	wg.Add(m.cfg.Workers)
	for worker := 0; worker < m.cfg.Workers; worker++ {
		go func(workerID int) {
			defer wg.Done()
			var attempts uint64
			for nonce := uint64(workerID); ; nonce += uint64(m.cfg.Workers) {
				select {
				case <-sess.stop:
					return
				default:
				}
				candidate, err := core.NewBlock(index, prevHash, body, nonce, timestamp, "")
				if err != nil {
					logger.Error("failed to build mining candidate", "err", err)
					return
				}
				attempts++
				attemptsCounter.Inc(1)
				if candidate.IsValidHash(core.DifficultyPrefix) {
					foundMu.Lock()
					if found == nil {
						found = candidate
					}
					foundMu.Unlock()
					blocksFoundMeter.Inc(1)
					sess.cancel()
					return
				}
				if onProgress != nil && attempts%m.cfg.ProgressInterval == 0 {
					onProgress(workerID, attempts)
				}
			}
		}(worker)
	}
	wg.Wait()

	foundMu.Lock()
	defer foundMu.Unlock()
	if found != nil {
		logger.Info("mined block", "index", found.Index, "hash", found.Hash, "nonce", found.Nonce)
	}
	return found, nil
}

// StopMining cancels the in-flight Mine call, if any (§4.4 step 6, §5).
// Workers observe the cancellation between hash attempts, bounded latency
// of one hash.
func (m *Miner) StopMining() {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess != nil {
		sess.cancel()
	}
}
