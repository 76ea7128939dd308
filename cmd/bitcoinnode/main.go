// Command bitcoinnode runs a single participant: it binds a listening
// socket, dials any configured bootstrap peers, and optionally mines and
// periodically syncs against its peers. Flag parsing and app scaffolding
// follow cmd/kcn/main.go's shape (a gopkg.in/urfave/cli.v1 App with a flag
// list and a single Action), trimmed to the flags this system actually
// needs (§6).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/andreydedey/bitcoin-like-distributed-system/log"
	"github.com/andreydedey/bitcoin-like-distributed-system/miner"
	"github.com/andreydedey/bitcoin-like-distributed-system/node"
)

var logger = log.NewModuleLogger(log.CMD)

var (
	hostFlag = cli.StringFlag{
		Name:  "host",
		Usage: "address to bind the listening socket to",
		Value: "0.0.0.0",
	}
	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "port to bind the listening socket to",
		Value: 9000,
	}
	publicAddrFlag = cli.StringFlag{
		Name:  "public-addr",
		Usage: "host:port other nodes should dial to reach this one (defaults to host:port)",
	}
	walletFlag = cli.StringFlag{
		Name:  "wallet",
		Usage: "address credited with mining rewards",
		Value: "miner",
	}
	bootstrapFlag = cli.StringSliceFlag{
		Name:  "bootstrap",
		Usage: "host:port of a peer to connect to at startup, may be repeated",
	}
	mineFlag = cli.BoolFlag{
		Name:  "mine",
		Usage: "continuously mine blocks from the local mempool",
	}
	syncIntervalFlag = cli.DurationFlag{
		Name:  "sync-interval",
		Usage: "how often to poll peers for a longer chain",
		Value: 30 * time.Second,
	}
	workersFlag = cli.IntFlag{
		Name:  "workers",
		Usage: "number of parallel proof-of-work search goroutines",
		Value: miner.Workers,
	}
)

var appFlags = []cli.Flag{
	hostFlag,
	portFlag,
	publicAddrFlag,
	walletFlag,
	bootstrapFlag,
	mineFlag,
	syncIntervalFlag,
	workersFlag,
}

func main() {
	app := cli.NewApp()
	app.Name = "bitcoinnode"
	app.Usage = "run a peer-to-peer proof-of-work blockchain node"
	app.Flags = appFlags
	app.Action = run
	sort.Sort(cli.FlagsByName(app.Flags))

	if err := app.Run(os.Args); err != nil {
		logger.Error("node exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", ctx.String(hostFlag.Name), ctx.Int(portFlag.Name))
	publicAddr := ctx.String(publicAddrFlag.Name)

	cfg := node.DefaultConfig()
	cfg.ListenAddr = listenAddr
	cfg.Address = publicAddr
	cfg.WalletAddress = ctx.String(walletFlag.Name)
	cfg.BootstrapPeers = ctx.StringSlice(bootstrapFlag.Name)
	cfg.Miner.Workers = ctx.Int(workersFlag.Name)

	n := node.New(cfg)
	if err := n.Start(); err != nil {
		return err
	}
	defer n.Stop()
	logger.Info("listening", "addr", n.Address())

	stopMining := make(chan struct{})
	if ctx.Bool(mineFlag.Name) {
		go mineLoop(n, stopMining)
	}
	go syncLoop(n, ctx.Duration(syncIntervalFlag.Name), stopMining)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	close(stopMining)
	logger.Info("shutting down")
	return nil
}

// mineLoop repeatedly mines whatever is in the mempool, one block at a
// time, until stop is closed (§4.4 step 9 "continuous mining loop").
func mineLoop(n *node.Node, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		block, err := n.Mine()
		if err != nil {
			logger.Error("mining failed", "err", err)
			continue
		}
		if block != nil {
			logger.Info("mined block", "index", block.Index, "hash", block.Hash)
		}
	}
}

// syncLoop polls peers for a longer chain on a fixed interval (§4.6
// "Periodic sync").
func syncLoop(n *node.Node, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n.SyncBlockchain() {
				logger.Info("chain updated from peer sync")
			}
		}
	}
}
