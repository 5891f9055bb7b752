package blockpacker

// Field widths of the packed block layout. All integers are big-endian.
const (
	// TxidLen is the number of bytes kept from a full 32-byte transaction id.
	TxidLen = 8

	// heightFieldLen, voutFieldLen and valueFieldLen are the widths of an
	// input's prevout height, vout index and value fields.
	heightFieldLen = 4
	voutFieldLen   = 2
	valueFieldLen  = 8

	// InputSize is the packed size of one transaction input:
	// prev_txid[8] || prev_block_height:u32 || prev_vout:u16 || prev_value:u64.
	InputSize = TxidLen + heightFieldLen + voutFieldLen + valueFieldLen

	// OutputSize is the packed size of one transaction output: value:u64.
	OutputSize = valueFieldLen

	// directoryEntrySize is the size of one (inputs_len, outputs_len) pair in
	// the transaction directory.
	directoryEntrySize = 2 + 2
)
