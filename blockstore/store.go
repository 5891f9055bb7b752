// Package blockstore is the durable ordered map from block height to packed
// block bytes: a thin wrapper around goleveldb configured with a large
// open-files cache, because the working set during bulk ingest is the
// entire chain.
package blockstore

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// lastInsertKey is the reserved metadata key holding the height of the
// highest block whose bytes are present.
var lastInsertKey = []byte("metadata::last_insert")

const (
	getRetryAttempts = 3
	getRetryDelay    = time.Second

	// flushEveryWrites is the number of puts between forced durability
	// flushes during bulk ingestion.
	flushEveryWrites = 4096

	// maxOpenFiles keeps the whole chain's file set open, since bulk ingest
	// touches most of it.
	maxOpenFiles = 2048
)

// Store is a durable, height-keyed store of packed block bytes.
type Store struct {
	db        *leveldb.DB
	numWrites uint64
}

// Open opens (or creates) the leveldb store at path.
func Open(path string) (*Store, error) {
	opts := &opt.Options{OpenFilesCacheCapacity: maxOpenFiles}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening block store at %s", path)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// heightKey encodes a block height as its 4-byte big-endian key.
func heightKey(height uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, height)
	return key
}

// Put overwrites the bytes for height idempotently and unconditionally
// advances the last-insert watermark to height. Ingestion guarantees
// monotonicity; replays overwrite with identical bytes.
func (s *Store) Put(height uint32, packed []byte) error {
	batch := new(leveldb.Batch)
	batch.Put(heightKey(height), packed)
	batch.Put(lastInsertKey, heightKey(height))
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "storing block at height %d", height)
	}

	s.numWrites++
	if s.numWrites%flushEveryWrites == 0 {
		return s.Flush()
	}
	return nil
}

// Get returns the packed bytes stored at height, retrying a bounded number
// of times to tolerate transient contention with a concurrent writer.
func (s *Store) Get(height uint32) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < getRetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(getRetryDelay)
		}
		packed, err := s.db.Get(heightKey(height), nil)
		if err == nil {
			return packed, nil
		}
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "reading block at height %d after %d attempts",
		height, getRetryAttempts)
}

// LastInserted returns the height of the highest block whose bytes are
// present, or 0 if none has been stored yet.
func (s *Store) LastInserted() (uint32, error) {
	value, err := s.db.Get(lastInsertKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading last-insert watermark")
	}
	return binary.BigEndian.Uint32(value), nil
}

// DeleteRange deletes every key in [lo, hi] and resets the last-insert
// watermark to lo-1.
func (s *Store) DeleteRange(lo, hi uint32) error {
	batch := new(leveldb.Batch)
	for h := lo; h <= hi; h++ {
		batch.Delete(heightKey(h))
	}
	batch.Put(lastInsertKey, heightKey(lo-1))
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "deleting blocks [%d, %d]", lo, hi)
	}
	return nil
}

// Flush forces durability. Called every flushEveryWrites puts during
// ingestion and once more on pipeline completion.
func (s *Store) Flush() error {
	// goleveldb durably persists each Write call; CompactRange additionally
	// forces the memtable to disk after a burst of writes.
	return s.db.CompactRange(util.Range{})
}

// Archive renames the store directory at path to archivePath. The store
// must be closed first, and the caller must not use its handle afterward.
func Archive(path, archivePath string) error {
	if err := os.Rename(path, archivePath); err != nil {
		return errors.Wrapf(err, "archiving block store from %s to %s", path, archivePath)
	}
	return nil
}
