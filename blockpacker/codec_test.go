package blockpacker

import (
	"bytes"
	"testing"
)

func value(v uint64) *uint64 { return &v }

func sampleFullBlock() FullBlock {
	return FullBlock{Transactions: []FullTx{
		{
			Txid:    "aaaaaaaaaaaaaaaa000000000000000000000000000000000000000000000000",
			Outputs: []FullOutput{{Value: 5000000000}},
		},
		{
			Txid: "bbbbbbbbbbbbbbbb000000000000000000000000000000000000000000000000",
			Inputs: []FullInput{
				{PrevTxid: "aaaaaaaaaaaaaaaa000000000000000000000000000000000000000000000000",
					PrevVout: 0, PrevBlockHeight: 99, PrevValue: value(5000000000)},
			},
			Outputs: []FullOutput{{Value: 1000000}, {Value: 4998999000}},
		},
	}}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fb := sampleFullBlock()
	packed, err := Encode(fb)
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}

	block, err := Decode(packed)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}

	wantCoinbase, _ := txidPrefix(fb.Transactions[0].Txid)
	if block.CoinbaseTxid != wantCoinbase {
		t.Errorf("coinbase txid = %x, want %x", block.CoinbaseTxid, wantCoinbase)
	}
	if block.CoinbaseSats != 5000000000 {
		t.Errorf("coinbase sats = %d, want 5000000000", block.CoinbaseSats)
	}
	if len(block.Txs) != 1 {
		t.Fatalf("len(txs) = %d, want 1", len(block.Txs))
	}

	tx := block.Txs[0]
	wantTxid, _ := txidPrefix(fb.Transactions[1].Txid)
	if tx.Txid != wantTxid {
		t.Errorf("tx txid = %x, want %x", tx.Txid, wantTxid)
	}
	if len(tx.Inputs) != 1 || tx.Inputs[0].PrevValue != 5000000000 || tx.Inputs[0].PrevBlockHeight != 99 {
		t.Errorf("unexpected input decoded: %+v", tx.Inputs)
	}
	if len(tx.Outputs) != 2 || tx.Outputs[0] != 1000000 || tx.Outputs[1] != 4998999000 {
		t.Errorf("unexpected outputs decoded: %+v", tx.Outputs)
	}
}

func TestLazyViewEquivalence(t *testing.T) {
	fb := sampleFullBlock()
	packed, err := Encode(fb)
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}

	eager, err := Decode(packed)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}

	view, err := NewView(packed)
	if err != nil {
		t.Fatalf("NewView: %s", err)
	}

	for _, want := range eager.Txs {
		got, ok := view.FindTx(want.Txid)
		if !ok {
			t.Fatalf("FindTx(%x) not found", want.Txid)
		}
		if len(got.Inputs) != len(want.Inputs) {
			t.Fatalf("inputs length mismatch for %x", want.Txid)
		}
		for i := range want.Inputs {
			if got.Inputs[i] != want.Inputs[i] {
				t.Errorf("input %d mismatch: got %+v want %+v", i, got.Inputs[i], want.Inputs[i])
			}
		}
		if !bytes.Equal(uint64sToBytes(got.Outputs), uint64sToBytes(want.Outputs)) {
			t.Errorf("outputs mismatch for %x: got %v want %v", want.Txid, got.Outputs, want.Outputs)
		}
	}
}

func uint64sToBytes(vs []uint64) []byte {
	buf := make([]byte, 0, len(vs)*8)
	for _, v := range vs {
		buf = append(buf,
			byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return buf
}

func TestEncodeMissingPrevout(t *testing.T) {
	fb := sampleFullBlock()
	fb.Transactions[1].Inputs[0].PrevValue = nil
	if _, err := Encode(fb); err == nil {
		t.Fatal("expected MissingPrevout error, got nil")
	}
}

func TestEncodeTxidCollision(t *testing.T) {
	fb := sampleFullBlock()
	fb.Transactions = append(fb.Transactions, fb.Transactions[1])
	if _, err := Encode(fb); err == nil {
		t.Fatal("expected ErrTxidCollision, got nil")
	}
}

func TestIteratorVisitsAllTxs(t *testing.T) {
	fb := sampleFullBlock()
	fb.Transactions = append(fb.Transactions, FullTx{
		Txid: "cccccccccccccccc000000000000000000000000000000000000000000000000",
		Inputs: []FullInput{
			{PrevTxid: "bbbbbbbbbbbbbbbb000000000000000000000000000000000000000000000000",
				PrevVout: 0, PrevBlockHeight: 100, PrevValue: value(1000000)},
		},
		Outputs: []FullOutput{{Value: 999000}},
	})

	packed, err := Encode(fb)
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	view, err := NewView(packed)
	if err != nil {
		t.Fatalf("NewView: %s", err)
	}

	count := 0
	it := view.Iterate()
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %s", err)
	}
	if count != 2 {
		t.Fatalf("visited %d txs, want 2", count)
	}
}
