package node

import (
	"sync"

	"github.com/andreydedey/bitcoin-like-distributed-system/core"
	"github.com/andreydedey/bitcoin-like-distributed-system/protocol"
)

// SyncBlockchain polls every known peer for its chain in parallel and
// adopts the longest valid candidate strictly longer than the current
// chain (§4.6 "Periodic sync"). It returns whether a replacement occurred.
func (n *Node) SyncBlockchain() bool {
	peerAddrs := n.peers.Addresses()
	currentLen := n.bc.Len()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		best []*core.Block
	)
	wg.Add(len(peerAddrs))
	for _, addr := range peerAddrs {
		go func(addr string) {
			defer wg.Done()
			reply, err := n.sendRequest(addr, protocol.NewRequestChainMessage(n.Address()))
			if err != nil {
				logger.Debug("sync request failed", "addr", addr, "err", err)
				return
			}
			if reply.Type != protocol.ResponseChain {
				return
			}
			chain, _, err := reply.ChainAndPending()
			if err != nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if len(chain) > currentLen && len(chain) > len(best) && core.IsValidChain(chain) {
				best = chain
			}
		}(addr)
	}
	wg.Wait()

	if best == nil {
		return false
	}
	if n.bc.ReplaceChain(best) {
		n.miner.StopMining()
		logger.Info("sync adopted longer chain", "len", len(best))
		return true
	}
	return false
}
