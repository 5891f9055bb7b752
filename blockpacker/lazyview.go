package blockpacker

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// View is a lazy, read-only window over packed block bytes. It never
// decodes more of the buffer than a caller asks for: CoinbaseTxid and
// CoinbaseSats are O(1) slice reads, and FindTx walks only the fixed-size
// directory plus the bytes of transactions it skips over.
type View struct {
	data  []byte
	txLen uint16
}

// NewView parses the block's transaction-count header and directory length
// without touching any transaction body.
func NewView(data []byte) (*View, error) {
	if len(data) < 2 {
		return nil, errors.Wrap(ErrCorrupted, "buffer shorter than the tx_len header")
	}
	txLen := binary.BigEndian.Uint16(data[:2])
	v := &View{data: data, txLen: txLen}
	if len(data) < v.transactionsDataPos() {
		return nil, errors.Wrap(ErrCorrupted, "buffer shorter than its own directory + coinbase summary")
	}
	return v, nil
}

// directoryPos returns the byte offset of directory entry i.
func (v *View) directoryPos(i uint16) int {
	return 2 + int(i)*directoryEntrySize
}

// coinbaseDataPos is the offset of the coinbase summary, immediately after
// the fixed-size directory.
func (v *View) coinbaseDataPos() int {
	return 2 + int(v.txLen)*directoryEntrySize
}

// transactionsDataPos is the offset of the first non-coinbase transaction
// record, immediately after the coinbase summary.
func (v *View) transactionsDataPos() int {
	return v.coinbaseDataPos() + TxidLen + valueFieldLen
}

// CoinbaseTxid returns the packed block's coinbase txid prefix.
func (v *View) CoinbaseTxid() TxidPrefix {
	var prefix TxidPrefix
	pos := v.coinbaseDataPos()
	copy(prefix[:], v.data[pos:pos+TxidLen])
	return prefix
}

// CoinbaseSats returns the sum of the coinbase's outputs: subsidy plus fees.
func (v *View) CoinbaseSats() uint64 {
	pos := v.coinbaseDataPos() + TxidLen
	return binary.BigEndian.Uint64(v.data[pos : pos+valueFieldLen])
}

// txDirEntry returns the (inputs_len, outputs_len, packed_size) of the
// transaction at directory index i.
func (v *View) txDirEntry(i uint16) (inputsLen, outputsLen uint16, size int) {
	pos := v.directoryPos(i)
	inputsLen = binary.BigEndian.Uint16(v.data[pos : pos+2])
	outputsLen = binary.BigEndian.Uint16(v.data[pos+2 : pos+4])
	size = TxidLen + int(inputsLen)*InputSize + int(outputsLen)*OutputSize
	return
}

// FindTx scans the directory, summing each transaction's packed size until
// either the requested prefix is found or the directory is exhausted.
func (v *View) FindTx(prefix TxidPrefix) (Tx, bool) {
	offset := v.transactionsDataPos()
	for i := uint16(0); i < v.txLen; i++ {
		inputsLen, outputsLen, size := v.txDirEntry(i)
		if hasTxidAt(v.data, offset, prefix) {
			return decodeTxAt(v.data, offset, inputsLen, outputsLen), true
		}
		offset += size
	}
	return Tx{}, false
}

func hasTxidAt(data []byte, offset int, prefix TxidPrefix) bool {
	for i := 0; i < TxidLen; i++ {
		if data[offset+i] != prefix[i] {
			return false
		}
	}
	return true
}

func decodeTxAt(data []byte, offset int, inputsLen, outputsLen uint16) Tx {
	var tx Tx
	copy(tx.Txid[:], data[offset:offset+TxidLen])
	pos := offset + TxidLen

	tx.Inputs = make([]Input, inputsLen)
	for i := range tx.Inputs {
		var in Input
		copy(in.PrevTxid[:], data[pos:pos+TxidLen])
		pos += TxidLen
		in.PrevBlockHeight = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		in.PrevVout = binary.BigEndian.Uint16(data[pos : pos+2])
		pos += 2
		in.PrevValue = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		tx.Inputs[i] = in
	}

	tx.Outputs = make([]uint64, outputsLen)
	for i := range tx.Outputs {
		tx.Outputs[i] = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}
	return tx
}

// TxIterator walks every non-coinbase transaction of a View in block order.
type TxIterator struct {
	view   *View
	index  uint16
	offset int
	err    error
	cur    Tx
}

// Iterate returns an iterator over all non-coinbase transactions in block
// order.
func (v *View) Iterate() *TxIterator {
	return &TxIterator{view: v, offset: v.transactionsDataPos()}
}

// Next advances the iterator. It returns false once every transaction has
// been visited or a decode error was encountered (see Err).
func (it *TxIterator) Next() bool {
	if it.err != nil || it.index >= it.view.txLen {
		return false
	}
	inputsLen, outputsLen, size := it.view.txDirEntry(it.index)
	if it.offset+size > len(it.view.data) {
		it.err = errors.Wrap(ErrCorrupted, "transaction record runs past the end of the buffer")
		return false
	}
	it.cur = decodeTxAt(it.view.data, it.offset, inputsLen, outputsLen)
	it.offset += size
	it.index++
	return true
}

// Tx returns the transaction most recently visited by Next.
func (it *TxIterator) Tx() Tx { return it.cur }

// Err returns the first error encountered during iteration, if any.
func (it *TxIterator) Err() error { return it.err }
