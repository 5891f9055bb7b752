package inscriptions

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/pkg/errors"
)

// Store is a handle to the inscription catalogue. It is long-lived and
// shared for reads across worker tasks; writes are single-writer in
// practice, issued only from the ingestion pipeline's augmentation hook.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite-backed catalogue at path and runs any
// pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := gorm.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening inscription store at %s", path)
	}
	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrating inscription store at %s", path)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists a new inscription record. Failures are returned to the
// caller; the augmentation hook logs and continues rather than panicking.
func (s *Store) Insert(rec Inscription) error {
	return errors.Wrap(s.db.Create(&rec).Error, "inserting inscription")
}

// UpdateOutpointAndOffset updates the watched outpoint and intra-output
// offset of an existing inscription, recording that it has transferred.
func (s *Store) UpdateOutpointAndOffset(id string, outpoint string, offset uint64) error {
	err := s.db.Model(&Inscription{}).Where("inscription_id = ?", id).
		Updates(map[string]interface{}{"outpoint_to_watch": outpoint, "offset": offset}).Error
	return errors.Wrap(err, "updating inscription outpoint/offset")
}

// UpdateNumber assigns the monotonically-increasing inscription number.
func (s *Store) UpdateNumber(id string, number uint64) error {
	err := s.db.Model(&Inscription{}).Where("inscription_id = ?", id).
		Update("inscription_number", number).Error
	return errors.Wrap(err, "updating inscription number")
}

// Delete removes a single inscription by id.
func (s *Store) Delete(id string) error {
	return errors.Wrap(s.db.Where("inscription_id = ?", id).Delete(&Inscription{}).Error,
		"deleting inscription")
}

// DeleteRange removes every inscription whose block height falls in
// [lo, hi], along with the transfer markers for those heights. This is the
// extent of reorg handling: callers re-ingest the wiped range afterward.
func (s *Store) DeleteRange(lo, hi uint64) error {
	err := s.db.Where("block_height >= ? AND block_height <= ?", lo, hi).Delete(&Inscription{}).Error
	if err != nil {
		return errors.Wrap(err, "deleting inscriptions in range")
	}
	err = s.db.Where("block_height >= ? AND block_height <= ?", lo, hi).Delete(&transfer{}).Error
	return errors.Wrap(err, "deleting transfer markers in range")
}

// MarkTransfersApplied records that height's transfers have been applied to
// the catalogue. Re-applying a height overwrites its marker idempotently.
func (s *Store) MarkTransfersApplied(height uint64) error {
	err := s.db.Where("block_height = ?", height).
		FirstOrCreate(&transfer{BlockHeight: height}).Error
	return errors.Wrap(err, "marking transfers applied")
}

// TransfersApplied reports whether height's transfers have already been
// applied.
func (s *Store) TransfersApplied(height uint64) (bool, error) {
	var rec transfer
	err := s.db.Where("block_height = ?", height).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "querying transfer marker")
	}
	return true, nil
}

// LatestBlockHeight returns the highest block height with a recorded
// inscription, or (0, false) if the catalogue is empty.
func (s *Store) LatestBlockHeight() (uint64, bool, error) {
	var rec Inscription
	err := s.db.Order("block_height desc").First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "querying latest block height")
	}
	return rec.BlockHeight, true, nil
}

// LatestNumber returns the highest assigned inscription number, or
// (0, false) if the catalogue is empty.
func (s *Store) LatestNumber() (uint64, bool, error) {
	var rec Inscription
	err := s.db.Order("inscription_number desc").First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "querying latest inscription number")
	}
	return rec.InscriptionNumber, true, nil
}

// LatestNumberBeforeHeight returns the highest inscription number assigned
// strictly below height, used by the augmentation hook to assign the next
// sequential inscription number.
func (s *Store) LatestNumberBeforeHeight(height uint64) (uint64, bool, error) {
	var rec Inscription
	err := s.db.Where("block_height < ?", height).
		Order("inscription_number desc").First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "querying latest inscription number before height")
	}
	return rec.InscriptionNumber, true, nil
}

// FindByOrdinal returns the inscription id pinned to the given ordinal
// number, if any.
func (s *Store) FindByOrdinal(ordinal uint64) (string, bool, error) {
	var rec Inscription
	err := s.db.Where("ordinal_number = ?", ordinal).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "querying inscription by ordinal")
	}
	return rec.InscriptionID, true, nil
}

// FindByID returns the traversal result recorded for id, but only if the
// stored block hash matches expectedBlockHash -- a reorg past that height
// invalidates the cached result.
func (s *Store) FindByID(id string, expectedBlockHash string) (TraversalResult, bool, error) {
	var rec Inscription
	err := s.db.Where("inscription_id = ?", id).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return TraversalResult{}, false, nil
	}
	if err != nil {
		return TraversalResult{}, false, errors.Wrap(err, "querying inscription by id")
	}
	if rec.BlockHash != expectedBlockHash {
		return TraversalResult{}, false, nil
	}
	return TraversalResult{
		InscriptionNumber: rec.InscriptionNumber,
		OrdinalNumber:     rec.OrdinalNumber,
	}, true, nil
}

// FindByOutpoint returns every inscription currently watched at outpoint,
// ordered by ascending offset.
func (s *Store) FindByOutpoint(outpoint string) ([]WatchedSatpoint, error) {
	var recs []Inscription
	err := s.db.Where("outpoint_to_watch = ?", outpoint).Order("offset asc").Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying inscriptions by outpoint")
	}
	points := make([]WatchedSatpoint, len(recs))
	for i, rec := range recs {
		points[i] = WatchedSatpoint{
			InscriptionID:     rec.InscriptionID,
			InscriptionNumber: rec.InscriptionNumber,
			OrdinalNumber:     rec.OrdinalNumber,
			Offset:            rec.Offset,
		}
	}
	return points, nil
}

// HeightEntry is one (id, traversal result) pair produced for bulk replay
// by ListByHeight. TxID holds the row's full inscription id, not a bare
// transaction id.
type HeightEntry struct {
	TxID   string
	Result TraversalResult
}

// HeightBucket groups one block height's inscriptions for bulk replay.
type HeightBucket struct {
	Height  uint64
	Entries []HeightEntry
}

// ListByHeight returns every inscription grouped by block height, with
// buckets in ascending height order and entries in ascending inscription
// number within each bucket, for bulk replay.
func (s *Store) ListByHeight() ([]HeightBucket, error) {
	var recs []Inscription
	err := s.db.Order("block_height asc, inscription_number asc").Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing inscriptions by height")
	}
	var buckets []HeightBucket
	for _, rec := range recs {
		if len(buckets) == 0 || buckets[len(buckets)-1].Height != rec.BlockHeight {
			buckets = append(buckets, HeightBucket{Height: rec.BlockHeight})
		}
		bucket := &buckets[len(buckets)-1]
		bucket.Entries = append(bucket.Entries, HeightEntry{
			TxID: rec.InscriptionID,
			Result: TraversalResult{
				InscriptionNumber: rec.InscriptionNumber,
				OrdinalNumber:     rec.OrdinalNumber,
			},
		})
	}
	return buckets, nil
}
