package ingestion

import "github.com/utibeabasi6/chainhook/blockpacker"

// heightHash is the unit of work passed from the hash-fetch stage to the
// block-fetch stage.
type heightHash struct {
	height uint32
	hash   string
}

// heightBlock is the unit of work passed from the block-fetch stage to the
// compact stage.
type heightBlock struct {
	height uint32
	hash   string
	full   blockpacker.FullBlock
}

// compactedUnit is the unit of work passed from the compact stage to the
// single-writer final stage. The raw full block is carried alongside the
// packed bytes because the augmentation hook (invoked only above H0) needs
// the full, unpacked transaction data to detect inscription reveals.
type compactedUnit struct {
	height uint32
	hash   string
	packed []byte
	full   blockpacker.FullBlock
}
