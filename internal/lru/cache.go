package lru

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

var ErrIllegalCapacity = errors.New("illegal lru cache capacity")
var ErrInvalidSharding = errors.New("invalid sharding")

// Cache is a byte bounded LRU split into independently locked shards.
// Every shard gets an equal part of the total byte budget.
type Cache struct {
	maxBytes uint64
	shards   []*shard
	count    int64
}

func New(shards int, maxTotalBytes uint64) (*Cache, error) {
	if shards < 1 {
		return nil, errors.Wrapf(ErrInvalidSharding, "%d shards", shards)
	}

	if maxTotalBytes < uint64(shards) {
		return nil, errors.Wrapf(ErrIllegalCapacity, "%d bytes for %d shards", maxTotalBytes, shards)
	}

	c := Cache{
		maxBytes: maxTotalBytes,
		shards:   make([]*shard, shards),
	}

	perShard := maxTotalBytes / uint64(shards)
	for i := range c.shards {
		c.shards[i] = newShard(perShard)
	}

	return &c, nil
}

// Add stores value under key and reports whether older values were evicted to make room.
// Values larger than a shard budget are not cached.
func (c *Cache) Add(key uint64, value []byte) bool {
	added, evicted := c.shardFor(key).add(key, value)
	atomic.AddInt64(&c.count, int64(added-evicted))
	return evicted > 0
}

func (c *Cache) Get(key uint64) ([]byte, bool) {
	return c.shardFor(key).get(key)
}

func (c *Cache) Remove(key uint64) {
	if c.shardFor(key).remove(key) {
		atomic.AddInt64(&c.count, -1)
	}
}

func (c *Cache) Purge() {
	var wg sync.WaitGroup

	wg.Add(len(c.shards))
	for i := range c.shards {
		go func(s *shard) {
			defer wg.Done()
			s.purge()
		}(c.shards[i])
	}

	wg.Wait()
	atomic.StoreInt64(&c.count, 0)
}

func (c *Cache) Len() int {
	return int(atomic.LoadInt64(&c.count))
}

func (c *Cache) Bytes() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.bytes()
	}
	return total
}

func (c *Cache) shardFor(key uint64) *shard {
	if len(c.shards) == 1 {
		return c.shards[0]
	}

	var bs [8]byte
	binary.LittleEndian.PutUint64(bs[:], key)
	return c.shards[xxhash.Sum64(bs[:])%uint64(len(c.shards))]
}

// NullCache caches nothing
type NullCache struct{}

func (NullCache) Add(uint64, []byte) bool { return false }

func (NullCache) Get(uint64) ([]byte, bool) { return nil, false }

func (NullCache) Remove(uint64) {}

func (NullCache) Purge() {}
