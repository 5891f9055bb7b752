// Package inscriptions is the durable catalogue of inscriptions: a
// relational store keyed by inscription id, with secondary indexes on
// outpoint, ordinal number and block height, backed by gorm over a single
// sqlite file whose schema is managed by versioned migrations.
package inscriptions

// Inscription is the persisted row for one inscription.
type Inscription struct {
	InscriptionID     string `gorm:"column:inscription_id;primary_key"`
	InscriptionNumber uint64 `gorm:"column:inscription_number"`
	OrdinalNumber     uint64 `gorm:"column:ordinal_number"`
	BlockHeight       uint64 `gorm:"column:block_height"`
	BlockHash         string `gorm:"column:block_hash"`
	OutpointToWatch   string `gorm:"column:outpoint_to_watch"`
	Offset            uint64 `gorm:"column:offset"`
}

// TableName pins the gorm model to its on-disk table name.
func (Inscription) TableName() string { return "inscriptions" }

// transfer is a marker row recording that a block height's transfers have
// already been applied to the catalogue.
type transfer struct {
	BlockHeight uint64 `gorm:"column:block_height;primary_key"`
}

func (transfer) TableName() string { return "transfers" }

// TraversalResult is the outcome of a single traversal: the sat found at
// offset 0 of the traversed output, and how many hops it took to find it.
type TraversalResult struct {
	InscriptionNumber uint64
	OrdinalNumber     uint64
	Transfers         uint32
}

// WatchedSatpoint bundles the identity and current location of one
// inscription, as returned by FindByOutpoint.
type WatchedSatpoint struct {
	InscriptionID     string
	InscriptionNumber uint64
	OrdinalNumber     uint64
	Offset            uint64
}

// GenesisSatpoint derives the satpoint at which this inscription was first
// revealed by stripping the trailing 2 characters of the inscription id
// (the vout suffix) and appending ":0".
func (w WatchedSatpoint) GenesisSatpoint() string {
	if len(w.InscriptionID) < 2 {
		return w.InscriptionID + ":0"
	}
	return w.InscriptionID[:len(w.InscriptionID)-2] + ":0"
}
