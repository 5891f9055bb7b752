package ingestion

import (
	"github.com/utibeabasi6/chainhook/blockpacker"
	"github.com/utibeabasi6/chainhook/inscriptions"
	"github.com/utibeabasi6/chainhook/traversal"
)

// Reveal is one inscription-bearing transaction detected by the external
// inscription parser. Constructing Reveals from raw transaction scripts is
// out of scope for this module.
type Reveal struct {
	InscriptionID string
	TxID          blockpacker.TxidPrefix
}

// Transfer is a detected movement of an already-catalogued inscription to a
// new outpoint and intra-output offset, also produced by the external
// inscription parser.
type Transfer struct {
	InscriptionID string
	NewOutpoint   string
	NewOffset     uint64
}

// RevealExtractor is the external inscription-parser contract: given a
// standardized block, return every reveal and transfer detected in it.
type RevealExtractor func(height uint32, blockHash string, block blockpacker.FullBlock) (reveals []Reveal, transfers []Transfer)

// augment is the per-block augmentation hook: for every reveal in the
// block, trace its satoshi point via the traversal engine and persist the
// result; for every transfer, update the watched outpoint and offset.
// Failures are logged and skipped -- a single bad reveal never aborts the
// block's ingestion.
func augment(
	engine *traversal.Engine,
	store *inscriptions.Store,
	log logFunc,
	height uint32,
	blockHash string,
	reveals []Reveal,
	transfers []Transfer,
) {
	nextNumber := uint64(1)
	if len(reveals) > 0 {
		number, ok, err := store.LatestNumberBeforeHeight(uint64(height))
		if err != nil {
			log("failed to look up latest inscription number before height %d: %s", height, err)
			return
		}
		if ok {
			nextNumber = number + 1
		}
	}

	for _, reveal := range reveals {
		result, err := engine.Trace(traversal.Target{
			BlockHeight:       height,
			TxID:              reveal.TxID,
			InscriptionNumber: nextNumber,
		})
		if err != nil {
			log("traversal failed for reveal %s at height %d: %s", reveal.InscriptionID, height, err)
			continue
		}

		record := inscriptions.Inscription{
			InscriptionID:     reveal.InscriptionID,
			InscriptionNumber: result.InscriptionNumber,
			OrdinalNumber:     result.OrdinalNumber,
			BlockHeight:       uint64(height),
			BlockHash:         blockHash,
		}
		watched := inscriptions.WatchedSatpoint{InscriptionID: reveal.InscriptionID}
		record.OutpointToWatch = watched.GenesisSatpoint()

		if err := store.Insert(record); err != nil {
			log("failed to persist reveal %s at height %d: %s", reveal.InscriptionID, height, err)
			continue
		}
		nextNumber++
	}

	for _, transfer := range transfers {
		if err := store.UpdateOutpointAndOffset(transfer.InscriptionID, transfer.NewOutpoint, transfer.NewOffset); err != nil {
			log("failed to persist transfer of %s at height %d: %s", transfer.InscriptionID, height, err)
		}
	}
	if err := store.MarkTransfersApplied(uint64(height)); err != nil {
		log("failed to mark transfers applied at height %d: %s", height, err)
	}
}

// logFunc is the minimal logging surface augment needs, satisfied by
// btclog.Logger's Errorf.
type logFunc func(format string, args ...interface{})
