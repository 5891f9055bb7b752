package traversal

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/utibeabasi6/chainhook/blockpacker"
	"github.com/utibeabasi6/chainhook/ord"
)

type fakeBlockSource struct {
	blocks map[uint32][]byte
	calls  map[uint32]int
}

func newFakeBlockSource() *fakeBlockSource {
	return &fakeBlockSource{blocks: make(map[uint32][]byte), calls: make(map[uint32]int)}
}

func (f *fakeBlockSource) put(t *testing.T, height uint32, fb blockpacker.FullBlock) {
	t.Helper()
	packed, err := blockpacker.Encode(fb)
	if err != nil {
		t.Fatalf("Encode(height=%d): %s", height, err)
	}
	f.blocks[height] = packed
}

func (f *fakeBlockSource) Get(height uint32) ([]byte, error) {
	f.calls[height]++
	return f.blocks[height], nil
}

func txidPrefix(t *testing.T, hexTxid string) blockpacker.TxidPrefix {
	t.Helper()
	decoded, err := hex.DecodeString(strings.TrimPrefix(hexTxid, "0x"))
	if err != nil {
		t.Fatalf("decoding txid %q: %s", hexTxid, err)
	}
	var prefix blockpacker.TxidPrefix
	copy(prefix[:], decoded[:8])
	return prefix
}

func value(v uint64) *uint64 { return &v }

func TestTrivialSubsidySat(t *testing.T) {
	src := newFakeBlockSource()
	height := uint32(840000)
	subsidy := ord.Height(height).Subsidy()

	coinbaseTxid := "aa00000000000000000000000000000000000000000000000000000000000000"
	src.put(t, height, blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: coinbaseTxid, Outputs: []blockpacker.FullOutput{{Value: subsidy}}},
	}})

	engine := NewEngine(src, NewCache())
	result, err := engine.Trace(Target{
		BlockHeight:       height,
		TxID:              txidPrefix(t, coinbaseTxid),
		InscriptionNumber: 1,
	})
	if err != nil {
		t.Fatalf("Trace: %s", err)
	}

	want := Result{
		InscriptionNumber: 1,
		OrdinalNumber:     ord.Height(height).StartingSat(),
		Transfers:         1,
	}
	if result != want {
		t.Errorf("Trace = %+v, want %+v", result, want)
	}
}

func TestOneHopSpend(t *testing.T) {
	src := newFakeBlockSource()

	coinbaseTxid := "bb00000000000000000000000000000000000000000000000000000000000000"
	src.put(t, 100, blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: coinbaseTxid, Outputs: []blockpacker.FullOutput{{Value: 5000000}}},
	}})

	spendTxid := "cc00000000000000000000000000000000000000000000000000000000000000"
	otherCoinbase := "dd00000000000000000000000000000000000000000000000000000000000000"
	src.put(t, 101, blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: otherCoinbase, Outputs: []blockpacker.FullOutput{{Value: 1}}},
		{
			Txid: spendTxid,
			Inputs: []blockpacker.FullInput{
				{PrevTxid: coinbaseTxid, PrevVout: 0, PrevBlockHeight: 100, PrevValue: value(5000000)},
			},
			Outputs: []blockpacker.FullOutput{{Value: 1000000}, {Value: 4000000}},
		},
	}})

	engine := NewEngine(src, NewCache())
	result, err := engine.Trace(Target{
		BlockHeight:       101,
		TxID:              txidPrefix(t, spendTxid),
		InscriptionNumber: 2,
	})
	if err != nil {
		t.Fatalf("Trace: %s", err)
	}

	if result.OrdinalNumber != ord.Height(100).StartingSat() {
		t.Errorf("OrdinalNumber = %d, want %d", result.OrdinalNumber, ord.Height(100).StartingSat())
	}
	if result.Transfers != 2 {
		t.Errorf("Transfers = %d, want 2", result.Transfers)
	}
}

func TestCacheAvoidsRefetch(t *testing.T) {
	src := newFakeBlockSource()

	coinbaseTxid := "ee00000000000000000000000000000000000000000000000000000000000000"
	src.put(t, 100, blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: coinbaseTxid, Outputs: []blockpacker.FullOutput{{Value: 5000000}}},
	}})

	spendTxid := "ff00000000000000000000000000000000000000000000000000000000000000"
	otherCoinbase := "1100000000000000000000000000000000000000000000000000000000000000"
	src.put(t, 101, blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: otherCoinbase, Outputs: []blockpacker.FullOutput{{Value: 1}}},
		{
			Txid: spendTxid,
			Inputs: []blockpacker.FullInput{
				{PrevTxid: coinbaseTxid, PrevVout: 0, PrevBlockHeight: 100, PrevValue: value(5000000)},
			},
			Outputs: []blockpacker.FullOutput{{Value: 1000000}, {Value: 4000000}},
		},
	}})

	engine := NewEngine(src, NewCache())
	target := Target{BlockHeight: 101, TxID: txidPrefix(t, spendTxid), InscriptionNumber: 1}

	if _, err := engine.Trace(target); err != nil {
		t.Fatalf("first Trace: %s", err)
	}
	if _, err := engine.Trace(target); err != nil {
		t.Fatalf("second Trace: %s", err)
	}

	if calls := src.calls[101]; calls != 1 {
		t.Errorf("Get(101) called %d times across two traversals of the same target, want 1", calls)
	}
}

func TestFeeRangeResolution(t *testing.T) {
	// A block with subsidy 500 and one fee-paying tx (fee 50); the target
	// offset 520 falls within that tx's fee range.
	ancestorTxid := "2200000000000000000000000000000000000000000000000000000000000000"
	feeTxid := "3300000000000000000000000000000000000000000000000000000000000000"
	coinbaseTxid := "4400000000000000000000000000000000000000000000000000000000000000"

	fb := blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: coinbaseTxid, Outputs: []blockpacker.FullOutput{{Value: 550}}},
		{
			Txid: feeTxid,
			Inputs: []blockpacker.FullInput{
				{PrevTxid: ancestorTxid, PrevVout: 0, PrevBlockHeight: 199, PrevValue: value(1000)},
			},
			Outputs: []blockpacker.FullOutput{{Value: 950}},
		},
	}}
	packed, err := blockpacker.Encode(fb)
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	view, err := blockpacker.NewView(packed)
	if err != nil {
		t.Fatalf("NewView: %s", err)
	}

	next, err := resolveFees(view, 520, 500)
	if err != nil {
		t.Fatalf("resolveFees: %s", err)
	}

	// accumulated(500) + fee(50) = 550 > 520, so this tx pays the sat;
	// offset_within_fee = 520-500 = 20; total_out = outputs(950)+20 = 970;
	// the single 1000-sat input covers it, landing at the ancestor's offset
	// 970 (970 - (1000-1000)).
	wantTxid := txidPrefix(t, ancestorTxid)
	if next.offset != 970 || next.height != 199 || next.vout != 0 || next.txid != wantTxid {
		t.Errorf("resolveFees = %+v, want offset=970 height=199 vout=0 txid=%x", next, wantTxid)
	}
}

func TestFeeRangeBoundaryResolvesOnCurrentInput(t *testing.T) {
	// The virtual output position lands exactly on the end of the first
	// input's range (sats_in == total_out). The fee path must resolve on
	// that input, not spill to the next one the way a general hop's strict
	// comparison would.
	firstInputTxid := "aa11000000000000000000000000000000000000000000000000000000000000"
	secondInputTxid := "bb22000000000000000000000000000000000000000000000000000000000000"
	feeTxid := "cc33000000000000000000000000000000000000000000000000000000000000"
	coinbaseTxid := "dd44000000000000000000000000000000000000000000000000000000000000"

	fb := blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: coinbaseTxid, Outputs: []blockpacker.FullOutput{{Value: 550}}},
		{
			Txid: feeTxid,
			Inputs: []blockpacker.FullInput{
				{PrevTxid: firstInputTxid, PrevVout: 0, PrevBlockHeight: 199, PrevValue: value(950)},
				{PrevTxid: secondInputTxid, PrevVout: 1, PrevBlockHeight: 198, PrevValue: value(50)},
			},
			Outputs: []blockpacker.FullOutput{{Value: 950}},
		},
	}}
	packed, err := blockpacker.Encode(fb)
	if err != nil {
		t.Fatalf("Encode: %s", err)
	}
	view, err := blockpacker.NewView(packed)
	if err != nil {
		t.Fatalf("NewView: %s", err)
	}

	// Offset 500 is the first fee sat: offset_within_fee = 0, so
	// total_out = outputs(950) + 0 = 950, exactly the first input's sum.
	next, err := resolveFees(view, 500, 500)
	if err != nil {
		t.Fatalf("resolveFees: %s", err)
	}

	wantTxid := txidPrefix(t, firstInputTxid)
	if next.txid != wantTxid {
		t.Errorf("resolveFees chose input %x, want the boundary input %x", next.txid, wantTxid)
	}
	if next.offset != 950 || next.height != 199 || next.vout != 0 {
		t.Errorf("resolveFees = %+v, want offset=950 height=199 vout=0", next)
	}
}

func TestDegenerateSentinel(t *testing.T) {
	src := newFakeBlockSource()

	coinbaseTxid := "5500000000000000000000000000000000000000000000000000000000000000"
	orphanTxid := "6600000000000000000000000000000000000000000000000000000000000000"
	src.put(t, 10, blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: coinbaseTxid, Outputs: []blockpacker.FullOutput{{Value: 100}}},
		{Txid: orphanTxid, Outputs: []blockpacker.FullOutput{{Value: 1000}}},
	}})

	engine := NewEngine(src, NewCache())
	result, err := engine.Trace(Target{
		BlockHeight:       10,
		TxID:              txidPrefix(t, orphanTxid),
		InscriptionNumber: 9,
	})
	if err != nil {
		t.Fatalf("Trace: %s", err)
	}

	want := Result{InscriptionNumber: 9, OrdinalNumber: 0, Transfers: 0}
	if result != want {
		t.Errorf("Trace = %+v, want %+v", result, want)
	}
}

func TestBlockMissingErrors(t *testing.T) {
	src := newFakeBlockSource()
	engine := NewEngine(src, NewCache())

	_, err := engine.Trace(Target{
		BlockHeight: 5,
		TxID:        txidPrefix(t, "7700000000000000000000000000000000000000000000000000000000000000"),
	})
	if err == nil {
		t.Fatal("expected ErrBlockMissing, got nil")
	}
}

func TestHopLimitExceeded(t *testing.T) {
	src := newFakeBlockSource()

	// A single block, height 1, whose only non-coinbase transaction spends
	// itself (a cycle): the hop limit of height=1 must trip before the loop
	// spins forever.
	coinbaseTxid := "8800000000000000000000000000000000000000000000000000000000000000"
	selfTxid := "9900000000000000000000000000000000000000000000000000000000000000"
	src.put(t, 1, blockpacker.FullBlock{Transactions: []blockpacker.FullTx{
		{Txid: coinbaseTxid, Outputs: []blockpacker.FullOutput{{Value: 100}}},
		{
			Txid: selfTxid,
			Inputs: []blockpacker.FullInput{
				{PrevTxid: selfTxid, PrevVout: 0, PrevBlockHeight: 1, PrevValue: value(10)},
			},
			Outputs: []blockpacker.FullOutput{{Value: 10}},
		},
	}})

	engine := NewEngine(src, NewCache())
	_, err := engine.Trace(Target{BlockHeight: 1, TxID: txidPrefix(t, selfTxid)})
	if err == nil {
		t.Fatal("expected ErrHopLimitExceeded, got nil")
	}
}
