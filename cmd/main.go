package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-sale-exchange/chain"
	"token-sale-exchange/config"
	"token-sale-exchange/core"
	"token-sale-exchange/core/model"
	"token-sale-exchange/core/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s <command> [flags]

commands:
  simulate   deploy the token, sale and exchange on an in-process chain and trade against them
  inspect    read a deployed token and print the sale parameters it implies
  follow     index ledger events from a live chain
`, os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configFile := fs.String("config", "", "config file (defaults to $"+config.EnvConfigFile+")")
	verbose := fs.Bool("v", false, "debug logging")
	var startBlock *uint64
	if cmd == "follow" {
		startBlock = fs.Uint64("start", 0, "first block to index when the store has no head")
	}
	fs.Parse(args)

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "simulate":
		err = simulate(cfg)
	case "inspect":
		err = inspect(ctx, cfg)
	case "follow":
		err = follow(ctx, cfg, *startBlock)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logrus.Fatalf("%s: %v", cmd, err)
	}
}

var errStoreNotEmpty = errors.New("store already holds an index")

func openStore(cfg *config.Config) (*store.BadgerStore, error) {
	if cfg.DataDir == "" {
		logrus.Info("no data dir configured, using in-memory store")
	}
	return store.NewBadgerStore(cfg.DataDir)
}

// openFreshStore opens a store that has never been indexed into. simulate
// starts its chain at block zero and would mix its events into an older run.
func openFreshStore(cfg *config.Config) (*store.BadgerStore, error) {
	es, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	head, err := es.GetHead()
	if err == nil {
		es.Close()
		return nil, fmt.Errorf("%w: %s is at block %d", errStoreNotEmpty, cfg.DataDir, head)
	}
	if !errors.Is(err, store.ErrHeadNotFound) {
		es.Close()
		return nil, err
	}
	return es, nil
}

func inspect(ctx context.Context, cfg *config.Config) error {
	if cfg.TokenAddress == "" {
		return fmt.Errorf("%w: tokenAddress is required", config.ErrInvalidConfig)
	}
	bc, err := chain.NewBlockchainClient(cfg.ChainURL)
	if err != nil {
		return err
	}
	info, err := bc.Token(common.HexToAddress(cfg.TokenAddress)).Info(ctx)
	if err != nil {
		return err
	}

	whole := info.WholeSupply()
	logrus.Infof("token %s (%s) at %s", info.Name, info.Symbol, cfg.TokenAddress)
	logrus.Infof("  decimals:     %d", info.Decimals)
	logrus.Infof("  total supply: %s", model.FormatUnits(info.TotalSupply, info.Decimals))
	logrus.Infof("  for sale:     %s", new(big.Int).Quo(whole, big.NewInt(2)))
	logrus.Infof("  tier limit:   %s", new(big.Int).Quo(whole, big.NewInt(4)))
	return nil
}

func follow(ctx context.Context, cfg *config.Config, startBlock uint64) error {
	if cfg.TokenAddress == "" {
		return fmt.Errorf("%w: tokenAddress is required", config.ErrInvalidConfig)
	}
	if len(cfg.LedgerAddresses) == 0 {
		logrus.Warn("no ledgerAddresses configured, only token transfers are indexed")
	}
	bc, err := chain.NewBlockchainClient(cfg.ChainURL)
	if err != nil {
		return err
	}
	es, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer es.Close()

	latest := uint64(0)
	if startBlock > 0 {
		latest = startBlock - 1
	}
	idx := core.NewIndexer(latest, es)
	idx.Watch(common.HexToAddress(cfg.TokenAddress), cfg.Ledgers()...)
	if err := idx.Restore(); err != nil {
		return err
	}

	startChainFetcher(ctx, bc, idx)
	return nil
}

func startChainFetcher(ctx context.Context, bc *chain.BlockchainClient, idx *core.Indexer) {
	for {
		select {
		case <-ctx.Done():
			logrus.Info("chain fetcher stopped")
			return
		default:
		}

		bcNumber, err := bc.GetLatestBlockNumber(ctx)
		if err != nil {
			logrus.Errorf("GetLatestBlockNumber err: %v", err)
			sleep(ctx, 3*time.Second)
			continue
		}
		logrus.Infof("lastDBNumber: %d, latestChainNumber: %d", idx.LatestBlockNumber(), bcNumber)
		if idx.LatestBlockNumber() >= bcNumber {
			sleep(ctx, 3*time.Second)
			continue
		}

		for i := idx.LatestBlockNumber() + 1; i <= bcNumber && ctx.Err() == nil; i++ {
			block, err := bc.GetChainBlock(ctx, i)
			if err != nil {
				logrus.Errorf("GetBlock %d err: %v", i, err)
				sleep(ctx, time.Second)
				break
			}
			logrus.Debugf("HandleNewBlock %d, trx %d, receipts %d", i, len(block.Txs), len(block.Receipts))
			if err := idx.HandleNewBlock(block); err != nil {
				logrus.Errorf("HandleNewBlock %d err: %v", i, err)
				sleep(ctx, time.Second)
				break
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
