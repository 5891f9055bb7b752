// Package ingestion is the concurrent fetch-compact-store pipeline: three
// worker-pool stages connected by bounded channels, feeding a single writer
// goroutine that owns the block store, the inscription catalogue, and the
// traversal cache.
package ingestion

import (
	"context"

	"github.com/btcsuite/btclog"
	"github.com/pkg/errors"

	"github.com/utibeabasi6/chainhook/blockstore"
	"github.com/utibeabasi6/chainhook/inscriptions"
	"github.com/utibeabasi6/chainhook/rpcclient"
	"github.com/utibeabasi6/chainhook/traversal"
)

const (
	// cacheClearEveryWrites is how often the traversal cache is dropped
	// wholesale during ingestion.
	cacheClearEveryWrites = 24

	// Below H0 the pipeline runs at bulk-ingest throughput with deep
	// queues. At and above H0 it must also run the augmentation hook in
	// strict height order, so queues are shallow to keep the writer's
	// backlog small.
	bulkHashQueueCap    = 256
	bulkBlockQueueCap   = 128
	bulkCompactQueueCap = 128

	liveQueueCap       = 8
	liveCompactWorkers = 4
)

// Pipeline wires the external collaborators and storage engines into the
// three-stage ingestion loop.
type Pipeline struct {
	rpc     rpcclient.Client
	blocks  *blockstore.Store
	catalog *inscriptions.Store
	engine  *traversal.Engine
	cache   *traversal.Cache
	extract RevealExtractor

	h0    uint32
	nNet  int
	nProc int

	log btclog.Logger
}

// NewPipeline builds a Pipeline. h0 is the ordinal activation height, nNet
// is the worker count for the network-bound hash-fetch and block-fetch
// stages, and nProc is the worker count for the compact stage below h0.
func NewPipeline(
	rpc rpcclient.Client,
	blocks *blockstore.Store,
	catalog *inscriptions.Store,
	engine *traversal.Engine,
	cache *traversal.Cache,
	extract RevealExtractor,
	h0 uint32,
	nNet int,
	nProc int,
	log btclog.Logger,
) *Pipeline {
	return &Pipeline{
		rpc: rpc, blocks: blocks, catalog: catalog, engine: engine, cache: cache,
		extract: extract, h0: h0, nNet: nNet, nProc: nProc, log: log,
	}
}

// Run ingests every height in [startHeight, endHeight] in order, fanning
// hash-fetch, block-fetch, and compaction out across worker pools while the
// final write stage applies results to the block store and, at or above
// h0, runs the augmentation hook in strict height order via an in-memory
// reorder buffer.
func (p *Pipeline) Run(ctx context.Context, startHeight, endHeight uint32) error {
	heights := make(chan uint32)
	go func() {
		defer close(heights)
		for h := startHeight; h <= endHeight; h++ {
			select {
			case heights <- h:
			case <-ctx.Done():
				return
			}
		}
	}()

	belowH0 := startHeight < p.h0
	queueCap, blockCap, compactCap, compactWorkers := p.stageSizes(belowH0)

	hashed := runHashFetchStage(ctx, p.rpc, heights, p.nNet, queueCap, p.log)
	fetched := runBlockFetchStage(ctx, p.rpc, hashed, p.nNet, blockCap, p.log)
	compacted := runCompactStage(ctx, fetched, compactWorkers, compactCap, p.log)

	return p.write(ctx, compacted, startHeight)
}

// stageSizes returns the channel capacities and compact-stage worker count
// for the regime starting at belowH0: deep queues and a dedicated worker
// pool of nProc workers below the activation height, shallow queues and a
// fixed pool of liveCompactWorkers at or above it, since the writer must also run the augmentation
// hook synchronously per block there.
func (p *Pipeline) stageSizes(belowH0 bool) (queueCap, blockCap, compactCap, compactWorkers int) {
	if belowH0 {
		return bulkHashQueueCap, bulkBlockQueueCap, bulkCompactQueueCap, p.nProc
	}
	return liveQueueCap, liveQueueCap, liveQueueCap, liveCompactWorkers
}

// write is the single writer stage: it reorders out-of-order arrivals from
// compactedUnit's concurrent upstream stages into strict height order and
// writes each unit to the block store in that order. A unit that arrives
// ahead of the next expected height is held in memory and is not written
// until every lower height has been written. The augmentation hook runs
// right after each write, so it too observes heights strictly ascending,
// which it needs because it reads the catalogue's latest-number watermark.
func (p *Pipeline) write(ctx context.Context, in <-chan compactedUnit, startHeight uint32) error {
	pending := make(map[uint32]compactedUnit)
	next := startHeight
	var writesSinceCacheClear int

	flushAndClear := func() error {
		if err := p.blocks.Flush(); err != nil {
			return err
		}
		p.cache.Clear()
		writesSinceCacheClear = 0
		return nil
	}

	for unit := range in {
		pending[unit.height] = unit
		for {
			unit, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)

			if err := p.blocks.Put(unit.height, unit.packed); err != nil {
				return errors.Wrapf(err, "storing block at height %d", unit.height)
			}

			if unit.height >= p.h0 && p.extract != nil {
				// The hook's traversals read the block store, so force
				// everything written so far down to disk first.
				if err := p.blocks.Flush(); err != nil {
					return errors.Wrapf(err, "flushing before augmenting height %d", unit.height)
				}
				reveals, transfers := p.extract(unit.height, unit.hash, unit.full)
				augment(p.engine, p.catalog, p.log.Errorf, unit.height, unit.hash, reveals, transfers)
			}

			writesSinceCacheClear++
			if writesSinceCacheClear >= cacheClearEveryWrites {
				if err := flushAndClear(); err != nil {
					return errors.Wrap(err, "flushing after cache-clear interval")
				}
			}

			next++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if len(pending) > 0 {
		return errors.Errorf("ingestion stalled with %d blocks buffered out of order starting at height %d", len(pending), next)
	}

	if err := p.blocks.Flush(); err != nil {
		return errors.Wrap(err, "final flush")
	}
	return nil
}
