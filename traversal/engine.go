// Package traversal implements the satoshi-point traversal engine (C4):
// given a transaction believed to hold a sat at the implicit offset 0 of its
// output 0, walk the transaction graph backward through a block store until
// the minting block and intra-subsidy offset are found.
package traversal

import (
	"github.com/pkg/errors"

	"github.com/utibeabasi6/chainhook/blockpacker"
	"github.com/utibeabasi6/chainhook/ord"
)

// Hard failure kinds. Each aborts only the current traversal; the caller
// (the ingestion pipeline's augmentation hook) logs and skips the affected
// inscription rather than aborting the pipeline.
var (
	ErrBlockMissing        = errors.New("block missing from store")
	ErrCorruptedBlockBytes = errors.New("corrupted block bytes")
	ErrHopLimitExceeded    = errors.New("traversal exceeded its hop limit")
)

// BlockSource is the read side of the block store (C2) that the engine
// needs: fetch packed bytes by height. Satisfied by *blockstore.Store.
type BlockSource interface {
	Get(height uint32) ([]byte, error)
}

// Target names the transaction output a traversal starts from: always
// implicit output index 0 with implicit intra-output offset 0.
type Target struct {
	BlockHeight       uint32
	TxID              blockpacker.TxidPrefix
	InscriptionNumber uint64
}

// Result is the outcome of one traversal: the ordinal number of the sat at
// offset 0 of the target output, and how many transaction hops the walk
// crossed to find it.
type Result struct {
	InscriptionNumber uint64
	OrdinalNumber     uint64
	Transfers         uint32
}

// Engine is the traversal engine (C4). It is re-entrant and side-effect-free
// on the block store: it only reads C2 and writes to its own cache (C5).
type Engine struct {
	blocks BlockSource
	cache  *Cache
}

// NewEngine builds a traversal engine over blocks, sharing cache across
// every traversal invoked against it. The cache is meant to be shared
// process-wide by the ingestion pipeline so concurrent traversals amortize
// the cost of decoding common ancestors.
func NewEngine(blocks BlockSource, cache *Cache) *Engine {
	return &Engine{blocks: blocks, cache: cache}
}

// Trace walks backward from target until it finds the block and offset at
// which the sat was minted, returning the completed Result.
func (e *Engine) Trace(target Target) (Result, error) {
	var (
		ordinalOffset uint64
		ordinalBlock  = target.BlockHeight
		cursorTxid    = target.TxID
		cursorVout    uint16
		hops          uint32
		state         = Walking
	)

	for {
		hops++
		if hops > target.BlockHeight {
			return Result{}, errors.Wrapf(ErrHopLimitExceeded,
				"tracing %x from height %d exceeded %d hops while %s",
				target.TxID, target.BlockHeight, target.BlockHeight, state)
		}

		if cached, ok := e.cache.Get(ordinalBlock, cursorTxid); ok {
			next, err := hopNonCoinbase(cached, cursorVout, ordinalOffset)
			if err != nil {
				return Result{}, errors.Wrapf(err, "hop at cached height %d", ordinalBlock)
			}
			if next.state == Degenerate {
				return Result{InscriptionNumber: target.InscriptionNumber}, nil
			}
			ordinalOffset, ordinalBlock, cursorTxid, cursorVout = next.offset, next.height, next.txid, next.vout
			continue
		}

		data, err := e.blocks.Get(ordinalBlock)
		if err != nil {
			return Result{}, errors.Wrapf(err, "fetching block %d", ordinalBlock)
		}
		if data == nil {
			return Result{}, errors.Wrapf(ErrBlockMissing, "height %d", ordinalBlock)
		}
		view, err := blockpacker.NewView(data)
		if err != nil {
			return Result{}, errors.Wrapf(ErrCorruptedBlockBytes, "height %d: %s", ordinalBlock, err)
		}

		if view.CoinbaseTxid() == cursorTxid {
			subsidy := ord.Height(ordinalBlock).Subsidy()
			if ordinalOffset < subsidy {
				return Result{
					InscriptionNumber: target.InscriptionNumber,
					OrdinalNumber:     ord.Height(ordinalBlock).StartingSat() + ordinalOffset,
					Transfers:         hops,
				}, nil
			}

			state = InFees
			next, err := resolveFees(view, ordinalOffset, subsidy)
			if err != nil {
				return Result{}, errors.Wrapf(err, "%s at height %d", state, ordinalBlock)
			}
			if next.state == Degenerate {
				return Result{InscriptionNumber: target.InscriptionNumber}, nil
			}
			state = Walking
			ordinalOffset, ordinalBlock, cursorTxid, cursorVout = next.offset, next.height, next.txid, next.vout
			continue
		}

		tx, ok := view.FindTx(cursorTxid)
		if !ok {
			return Result{}, errors.Wrapf(ErrCorruptedBlockBytes,
				"tx %x not found in directory of block %d", cursorTxid, ordinalBlock)
		}
		e.cache.Put(ordinalBlock, cursorTxid, tx)

		next, err := hopNonCoinbase(tx, cursorVout, ordinalOffset)
		if err != nil {
			return Result{}, errors.Wrapf(err, "hop at height %d", ordinalBlock)
		}
		if next.state == Degenerate {
			return Result{InscriptionNumber: target.InscriptionNumber}, nil
		}
		ordinalOffset, ordinalBlock, cursorTxid, cursorVout = next.offset, next.height, next.txid, next.vout
	}
}

// hopResult bundles the next iteration's cursor coordinates, or signals via
// state that the walk reached a terminal condition early.
type hopResult struct {
	offset uint64
	height uint32
	txid   blockpacker.TxidPrefix
	vout   uint16
	state  State
}

// hopNonCoinbase takes one backward hop through a non-coinbase transaction:
// locate the sat's position within tx's outputs (prefix sum up to cursorVout
// plus the running offset), then scan tx's inputs by prefix sum to find the
// predecessor that contributed it.
func hopNonCoinbase(tx blockpacker.Tx, cursorVout uint16, ordinalOffset uint64) (hopResult, error) {
	var satsOut uint64
	for i := uint16(0); i < cursorVout && int(i) < len(tx.Outputs); i++ {
		satsOut += tx.Outputs[i]
	}
	satsOut += ordinalOffset
	return hopFromSatsOut(tx, satsOut)
}

// hopFromSatsOut scans tx's inputs by prefix sum for the first input whose
// running sats_in strictly exceeds satsOut. The inequality is the tie-break
// rule: a sat sitting exactly on an input boundary flows with the next
// input, not the one whose range it closes.
func hopFromSatsOut(tx blockpacker.Tx, satsOut uint64) (hopResult, error) {
	if len(tx.Inputs) == 0 {
		return hopResult{state: Degenerate}, nil
	}

	var satsIn uint64
	for _, in := range tx.Inputs {
		satsIn += in.PrevValue
		if satsIn > satsOut {
			newOffset := satsOut - (satsIn - in.PrevValue)
			return hopResult{
				offset: newOffset,
				height: in.PrevBlockHeight,
				txid:   in.PrevTxid,
				vout:   in.PrevVout,
				state:  Walking,
			}, nil
		}
	}
	return hopResult{}, errors.Errorf(
		"inputs (total %d sats) never cover the requested output position %d", satsIn, satsOut)
}

// resolveFees handles a sat that lives in the block's collected fees rather
// than its subsidy: walk the block's non-coinbase transactions in order,
// accumulating fees starting at subsidy, until the transaction whose fee
// range covers ordinalOffset is found, then hop through that transaction's
// inputs.
func resolveFees(view *blockpacker.View, ordinalOffset, subsidy uint64) (hopResult, error) {
	accumulated := subsidy
	it := view.Iterate()
	for it.Next() {
		tx := it.Tx()
		fee := sumInputs(tx) - sumOutputs(tx)
		if accumulated+fee > ordinalOffset {
			offsetWithinFee := ordinalOffset - accumulated
			totalOut := sumOutputs(tx) + offsetWithinFee
			return hopThroughFeePayer(tx, totalOut)
		}
		accumulated += fee
	}
	if err := it.Err(); err != nil {
		return hopResult{}, err
	}
	return hopResult{}, errors.Errorf(
		"no transaction's fee range covers offset %d (subsidy %d)", ordinalOffset, subsidy)
}

// hopThroughFeePayer scans the fee-paying transaction's inputs for the
// first whose running sats_in reaches totalOut. Unlike the general hop's
// strict comparison, the fee path resolves the exact boundary on the
// current input rather than spilling to the next one: the virtual output
// position sits at the end of the input range that funded it.
func hopThroughFeePayer(tx blockpacker.Tx, totalOut uint64) (hopResult, error) {
	if len(tx.Inputs) == 0 {
		return hopResult{state: Degenerate}, nil
	}

	var satsIn uint64
	for _, in := range tx.Inputs {
		satsIn += in.PrevValue
		if satsIn >= totalOut {
			return hopResult{
				offset: totalOut - (satsIn - in.PrevValue),
				height: in.PrevBlockHeight,
				txid:   in.PrevTxid,
				vout:   in.PrevVout,
				state:  Walking,
			}, nil
		}
	}
	return hopResult{}, errors.Errorf(
		"fee inputs (total %d sats) never reach the virtual output position %d", satsIn, totalOut)
}

func sumInputs(tx blockpacker.Tx) uint64 {
	var total uint64
	for _, in := range tx.Inputs {
		total += in.PrevValue
	}
	return total
}

func sumOutputs(tx blockpacker.Tx) uint64 {
	var total uint64
	for _, v := range tx.Outputs {
		total += v
	}
	return total
}
