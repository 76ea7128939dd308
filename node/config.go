package node

import "github.com/andreydedey/bitcoin-like-distributed-system/miner"

// Config configures a Node, in the shape of node/defaults.go's
// DefaultConfig pattern: a small struct of user-tunable fields with a
// defaulting constructor, rather than a parsed config file (see DESIGN.md
// for why no file format is warranted at this scale).
type Config struct {
	// ListenAddr is what the node binds, e.g. "0.0.0.0:9000".
	ListenAddr string
	// Address is the host:port other nodes should dial and the identity
	// this node announces as Sender. Defaults to ListenAddr.
	Address string
	// WalletAddress receives mining rewards.
	WalletAddress string
	// BootstrapPeers are dialed once at Start.
	BootstrapPeers []string
	// Miner tunes the embedded Miner; zero value uses miner.DefaultConfig().
	Miner miner.Config
}

// DefaultConfig returns sane defaults for every field Config doesn't
// require the caller to set.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "0.0.0.0:0",
		Miner:      miner.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = c.ListenAddr
	}
	if c.Miner.Workers == 0 {
		c.Miner = miner.DefaultConfig()
	}
	return c
}
