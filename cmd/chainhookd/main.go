package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btclog"
	"github.com/pkg/errors"

	"github.com/utibeabasi6/chainhook/blockstore"
	"github.com/utibeabasi6/chainhook/config"
	"github.com/utibeabasi6/chainhook/ingestion"
	"github.com/utibeabasi6/chainhook/inscriptions"
	"github.com/utibeabasi6/chainhook/logger"
	"github.com/utibeabasi6/chainhook/rpcclient"
	"github.com/utibeabasi6/chainhook/traversal"
	"github.com/utibeabasi6/chainhook/util/panics"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing command-line arguments: %s\n", err)
		os.Exit(1)
	}

	logger.InitLogRotator(cfg.LogFilePath())
	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error setting debug levels: %s\n", err)
		os.Exit(1)
	}
	chkdLog, _ := logger.Get(logger.SubsystemTags.CHKD)

	defer panics.HandlePanic(chkdLog, nil)

	if err := run(cfg, chkdLog); err != nil {
		chkdLog.Errorf("chainhookd exiting on error: %s", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, chkdLog btclog.Logger) error {
	if cfg.Archive {
		chkdLog.Infof("archiving block store at %s to %s", cfg.RocksdbStorePath(), cfg.ArchiveStorePath())
		return blockstore.Archive(cfg.RocksdbStorePath(), cfg.ArchiveStorePath())
	}

	if cfg.EndHeight == 0 {
		return errors.New("--end-height is required")
	}
	if cfg.StartHeight > cfg.EndHeight {
		return errors.Errorf("--start-height %d is above --end-height %d", cfg.StartHeight, cfg.EndHeight)
	}

	blocks, err := blockstore.Open(cfg.RocksdbStorePath())
	if err != nil {
		return errors.Wrap(err, "opening block store")
	}
	defer blocks.Close()

	catalog, err := inscriptions.Open(cfg.SqliteStorePath())
	if err != nil {
		return errors.Wrap(err, "opening inscription catalogue")
	}
	defer catalog.Close()

	cache := traversal.NewCache()
	engine := traversal.NewEngine(blocks, cache)

	rpc := rpcclient.NewHTTPClient(cfg.RPCAddr, cfg.RPCUser, cfg.RPCPass)

	ingsLog, _ := logger.Get(logger.SubsystemTags.INGS)
	pipeline := ingestion.NewPipeline(
		rpc, blocks, catalog, engine, cache,
		nil, // reveal/transfer extraction is an external collaborator (see ingestion.RevealExtractor)
		cfg.OrdinalActivationHeight, cfg.NNet, cfg.NProc,
		ingsLog,
	)

	startHeight := cfg.StartHeight
	if startHeight == 0 {
		last, err := blocks.LastInserted()
		if err != nil {
			return errors.Wrap(err, "reading last inserted height")
		}
		startHeight = last + 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		chkdLog.Infof("received interrupt, shutting down after the current block")
		cancel()
	}()

	chkdLog.Infof("starting ingestion at height %d", startHeight)
	return pipeline.Run(ctx, startHeight, cfg.EndHeight)
}
