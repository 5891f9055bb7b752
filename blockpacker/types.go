package blockpacker

import "github.com/pkg/errors"

// ErrMissingPrevout is returned by Encode when an input is missing its
// resolved prevout amount (a nil PrevValue). The prevout height is a plain
// field and is not checked for being unresolved.
var ErrMissingPrevout = errors.New("input is missing a resolved prevout")

// ErrTxidCollision is returned by Encode when two transactions in the same
// block share an 8-byte txid prefix. The packed format is only safe when
// prefixes are unique within a block.
var ErrTxidCollision = errors.New("two transactions in the block share a txid prefix")

// ErrCorrupted is returned by the lazy view when the underlying bytes don't
// satisfy the codec's structural invariants (directory length mismatch,
// truncated buffer).
var ErrCorrupted = errors.New("packed block bytes are corrupted")

// TxidPrefix is the first 8 bytes of a transaction id, the identifier used
// throughout the packed format and the traversal engine. Full txids are
// never rematerialized once a block has been packed.
type TxidPrefix [TxidLen]byte

// Input is one packed transaction input: the prevout it spends, fully
// resolved at encode time.
type Input struct {
	PrevTxid        TxidPrefix
	PrevBlockHeight uint32
	PrevVout        uint16
	PrevValue       uint64
}

// Tx is one decoded non-coinbase transaction.
type Tx struct {
	Txid    TxidPrefix
	Inputs  []Input
	Outputs []uint64
}

// Block is the fully, eagerly decoded form of a packed block. Used only by
// legacy callers that need every transaction materialized at once; the
// traversal engine uses the lazy View instead.
type Block struct {
	CoinbaseTxid TxidPrefix
	CoinbaseSats uint64
	Txs          []Tx
}

// FullTx is the full-block contract a source block must satisfy before it
// can be packed: full (hex) transaction ids and fully resolved inputs.
type FullTx struct {
	Txid    string
	Inputs  []FullInput
	Outputs []FullOutput
}

// FullInput is one input of a FullTx, carrying the resolved prevout an RPC
// collaborator must supply.
type FullInput struct {
	PrevTxid        string
	PrevVout        uint32
	PrevBlockHeight uint32
	// PrevValue is nil when the prevout could not be resolved; Encode fails
	// with ErrMissingPrevout in that case.
	PrevValue *uint64
}

// FullOutput is one output of a FullTx.
type FullOutput struct {
	Value uint64
}

// FullBlock is a full block as received from the RPC collaborator: the
// coinbase transaction first, followed by the rest in block order.
type FullBlock struct {
	Transactions []FullTx
}
