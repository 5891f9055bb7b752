package ingestion

import (
	"context"
	"sync"

	"github.com/btcsuite/btclog"

	"github.com/utibeabasi6/chainhook/blockpacker"
	"github.com/utibeabasi6/chainhook/rpcclient"
	"github.com/utibeabasi6/chainhook/util/panics"
)

// runHashFetchStage resolves each height on heights to its block hash using
// a pool of workers, emitting (height, hash) pairs on the returned channel.
// Fetch failures are soft: a height whose hash can't be resolved is logged
// and dropped rather than propagated.
func runHashFetchStage(ctx context.Context, rpc rpcclient.Client, heights <-chan uint32, workers int, queueCap int, log btclog.Logger) <-chan heightHash {
	out := make(chan heightHash, queueCap)
	spawn := panics.GoroutineWrapperFunc(log)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		spawn(func() {
			defer wg.Done()
			for height := range heights {
				hash, err := rpc.HashAtHeight(ctx, height)
				if err != nil {
					log.Errorf("hash-fetch failed at height %d: %s", height, err)
					continue
				}
				select {
				case out <- heightHash{height: height, hash: hash}:
				case <-ctx.Done():
					return
				}
			}
		})
	}
	spawn(func() {
		wg.Wait()
		close(out)
	})
	return out
}

// runBlockFetchStage fetches the full block for each (height, hash) pair
// using a pool of workers, emitting heightBlock units.
func runBlockFetchStage(ctx context.Context, rpc rpcclient.Client, in <-chan heightHash, workers int, queueCap int, log btclog.Logger) <-chan heightBlock {
	out := make(chan heightBlock, queueCap)
	spawn := panics.GoroutineWrapperFunc(log)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		spawn(func() {
			defer wg.Done()
			for unit := range in {
				full, err := rpc.BlockByHash(ctx, unit.hash)
				if err != nil {
					log.Errorf("block-fetch failed at height %d: %s", unit.height, err)
					continue
				}
				select {
				case out <- heightBlock{height: unit.height, hash: unit.hash, full: full}:
				case <-ctx.Done():
					return
				}
			}
		})
	}
	spawn(func() {
		wg.Wait()
		close(out)
	})
	return out
}

// runCompactStage packs each full block into its on-disk layout using a
// pool of workers, emitting compactedUnit values. ErrMissingPrevout and
// ErrTxidCollision are hard encode-time failures; the affected block is
// logged and dropped rather than aborting the pipeline.
func runCompactStage(ctx context.Context, in <-chan heightBlock, workers int, queueCap int, log btclog.Logger) <-chan compactedUnit {
	out := make(chan compactedUnit, queueCap)
	spawn := panics.GoroutineWrapperFunc(log)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		spawn(func() {
			defer wg.Done()
			for unit := range in {
				packed, err := blockpacker.Encode(unit.full)
				if err != nil {
					log.Errorf("compact failed at height %d: %s", unit.height, err)
					continue
				}
				select {
				case out <- compactedUnit{height: unit.height, hash: unit.hash, packed: packed, full: unit.full}:
				case <-ctx.Done():
					return
				}
			}
		})
	}
	spawn(func() {
		wg.Wait()
		close(out)
	})
	return out
}
