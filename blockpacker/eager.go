package blockpacker

// Decode eagerly consumes the whole packed buffer into a Block. Used only
// by legacy paths; the traversal engine reads through View instead so it
// never pays for decoding transactions it doesn't need.
func Decode(data []byte) (*Block, error) {
	view, err := NewView(data)
	if err != nil {
		return nil, err
	}

	block := &Block{
		CoinbaseTxid: view.CoinbaseTxid(),
		CoinbaseSats: view.CoinbaseSats(),
		Txs:          make([]Tx, 0, view.txLen),
	}
	it := view.Iterate()
	for it.Next() {
		block.Txs = append(block.Txs, it.Tx())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return block, nil
}
