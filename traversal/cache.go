package traversal

import (
	"hash/fnv"
	"sync"

	"github.com/utibeabasi6/chainhook/blockpacker"
)

// cacheKey identifies one recently-visited, already-decoded non-coinbase
// transaction.
type cacheKey struct {
	height uint32
	txid   blockpacker.TxidPrefix
}

// shardCount is the number of independent locked buckets the cache is split
// across, so that concurrent callers working on different keys do not
// contend on a single RWMutex over one map.
const shardCount = 32

type shard struct {
	mu sync.RWMutex
	m  map[cacheKey]blockpacker.Tx
}

// Cache is the bounded, concurrently-accessible map of recently decoded
// transactions: reads are lock-free with respect to other shards, writes
// take only their own shard's lock, and the whole cache is dropped wholesale
// every 24 block writes by the ingestion pipeline rather than maintaining
// per-entry recency.
type Cache struct {
	shards [shardCount]*shard
}

// NewCache returns an empty traversal cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{m: make(map[cacheKey]blockpacker.Tx)}
	}
	return c
}

func (c *Cache) shardFor(key cacheKey) *shard {
	h := fnv.New32a()
	var buf [4]byte
	buf[0] = byte(key.height >> 24)
	buf[1] = byte(key.height >> 16)
	buf[2] = byte(key.height >> 8)
	buf[3] = byte(key.height)
	h.Write(buf[:])
	h.Write(key.txid[:])
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the cached decoded transaction for (height, txid), if present.
func (c *Cache) Get(height uint32, txid blockpacker.TxidPrefix) (blockpacker.Tx, bool) {
	key := cacheKey{height: height, txid: txid}
	s := c.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.m[key]
	return tx, ok
}

// Put inserts or overwrites the decoded transaction for (height, txid).
// Insertions are idempotent: a second Put for the same key is a no-op in
// effect, since the decoded bytes for a given (height, txid) never change.
func (c *Cache) Put(height uint32, txid blockpacker.TxidPrefix, tx blockpacker.Tx) {
	key := cacheKey{height: height, txid: txid}
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = tx
}

// Clear empties every shard. Called by the ingestion pipeline every 24
// completed block writes to keep peak memory bounded.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.m = make(map[cacheKey]blockpacker.Tx)
		s.mu.Unlock()
	}
}
