package blockpacker

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// Encode packs a FullBlock into its on-disk layout: a directory of
// (inputs_len, outputs_len) pairs, a coinbase summary, then each
// non-coinbase transaction's txid, inputs and outputs in block order.
//
// The first transaction in block.Transactions is taken to be the coinbase.
// Encode fails with ErrMissingPrevout if any non-coinbase input lacks a
// resolved prevout value, and with ErrTxidCollision if two transactions in
// the block share an 8-byte txid prefix.
func Encode(block FullBlock) ([]byte, error) {
	if len(block.Transactions) == 0 {
		return nil, errors.New("block has no transactions")
	}
	coinbase := block.Transactions[0]
	rest := block.Transactions[1:]

	coinbaseTxid, err := txidPrefix(coinbase.Txid)
	if err != nil {
		return nil, errors.Wrap(err, "coinbase txid")
	}
	var coinbaseSats uint64
	for _, out := range coinbase.Outputs {
		coinbaseSats += out.Value
	}

	seen := make(map[TxidPrefix]struct{}, len(rest))

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rest))); err != nil {
		return nil, err
	}
	for _, tx := range rest {
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(tx.Inputs))); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(tx.Outputs))); err != nil {
			return nil, err
		}
	}

	buf.Write(coinbaseTxid[:])
	if err := binary.Write(&buf, binary.BigEndian, coinbaseSats); err != nil {
		return nil, err
	}

	for _, tx := range rest {
		txid, err := txidPrefix(tx.Txid)
		if err != nil {
			return nil, errors.Wrapf(err, "tx %s", tx.Txid)
		}
		if _, dup := seen[txid]; dup {
			return nil, errors.Wrapf(ErrTxidCollision, "prefix %x", txid)
		}
		seen[txid] = struct{}{}

		buf.Write(txid[:])
		for _, in := range tx.Inputs {
			if in.PrevValue == nil {
				return nil, errors.Wrapf(ErrMissingPrevout, "tx %s input %s:%d",
					tx.Txid, in.PrevTxid, in.PrevVout)
			}
			prevTxid, err := txidPrefix(in.PrevTxid)
			if err != nil {
				return nil, errors.Wrapf(err, "prevout txid of tx %s", tx.Txid)
			}
			buf.Write(prevTxid[:])
			if err := binary.Write(&buf, binary.BigEndian, in.PrevBlockHeight); err != nil {
				return nil, err
			}
			if err := binary.Write(&buf, binary.BigEndian, uint16(in.PrevVout)); err != nil {
				return nil, err
			}
			if err := binary.Write(&buf, binary.BigEndian, *in.PrevValue); err != nil {
				return nil, err
			}
		}
		for _, out := range tx.Outputs {
			if err := binary.Write(&buf, binary.BigEndian, out.Value); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// txidPrefix hex-decodes a full txid (optionally 0x-prefixed) and returns
// its first 8 bytes, the authoritative identifier inside the packed index.
func txidPrefix(txid string) (TxidPrefix, error) {
	var prefix TxidPrefix
	trimmed := strings.TrimPrefix(txid, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return prefix, errors.Wrapf(err, "invalid txid %q", txid)
	}
	if len(decoded) < TxidLen {
		return prefix, errors.Errorf("txid %q is shorter than %d bytes", txid, TxidLen)
	}
	copy(prefix[:], decoded[:TxidLen])
	return prefix, nil
}
