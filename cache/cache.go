// Package cache implements a bounded, sharded LRU cache with pinned handles.
//
// Every entry is referenced by the cache table itself and by each
// outstanding Handle. Entries which are only referenced by the table are
// kept on an inactive list and may be evicted; entries with outstanding
// handles live on an active list and are never evicted. An entry which is
// replaced or erased while pinned stays valid for its holders until the
// last handle is released, at which point its deleter is called.
package cache

import "github.com/cespare/xxhash/v2"

// DeleterFunc is called exactly once for every inserted value, after it
// was removed from the cache and all handles to it were released.
type DeleterFunc func(key []byte, value interface{})

// Options configure a cache.
type Options struct {
	// Shards is the number of independently locked partitions.
	// Default: 16.
	Shards int
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.Shards < 1 {
		oo.Shards = 16
	}

	return &oo
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is a sharded LRU cache. It is safe for concurrent use.
type Cache struct {
	shards   []shard
	capacity int64
}

// New creates a cache with a total capacity, expressed in the same unit as
// the charges passed to Insert. Capacity is split evenly across shards.
func New(capacity int64, o *Options) *Cache {
	o = o.norm()

	perShard := (capacity + int64(o.Shards) - 1) / int64(o.Shards)
	c := &Cache{
		shards:   make([]shard, o.Shards),
		capacity: capacity,
	}
	for i := range c.shards {
		c.shards[i].init(perShard)
	}
	return c
}

// Insert adds a value to the cache, replacing any previous entry for the
// same key, and returns a handle pinning the new entry. The caller must
// release the handle.
func (c *Cache) Insert(key []byte, value interface{}, charge int64, deleter DeleterFunc) *Handle {
	s := c.shard(key)
	return &Handle{s: s, e: s.insert(key, value, charge, deleter)}
}

// Lookup returns a handle pinning the entry for key, or nil if the key is
// not cached. Non-nil handles must be released.
func (c *Cache) Lookup(key []byte) *Handle {
	s := c.shard(key)
	if e := s.lookup(key); e != nil {
		return &Handle{s: s, e: e}
	}
	return nil
}

// Release unpins an entry. Releasing a nil or an already released handle is
// a no-op.
func (c *Cache) Release(h *Handle) {
	h.Release()
}

// Erase removes the entry for key. Its deleter runs once all outstanding
// handles are released.
func (c *Cache) Erase(key []byte) {
	c.shard(key).erase(key)
}

// Value peeks at the cached value for key without pinning it or updating
// its position.
func (c *Cache) Value(key []byte) (interface{}, bool) {
	return c.shard(key).value(key)
}

// Prune drops all entries which are not pinned.
func (c *Cache) Prune() {
	for i := range c.shards {
		c.shards[i].prune()
	}
}

// Capacity returns the total capacity.
func (c *Cache) Capacity() int64 { return c.capacity }

// TotalCharge returns the combined charge of all entries in the cache.
func (c *Cache) TotalCharge() int64 {
	var n int64
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += s.usage
		s.mu.Unlock()
	}
	return n
}

// Stats returns cumulative counters.
func (c *Cache) Stats() Stats {
	var st Stats
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		st.Hits += s.stats.Hits
		st.Misses += s.stats.Misses
		st.Evictions += s.stats.Evictions
		s.mu.Unlock()
	}
	return st
}

func (c *Cache) shard(key []byte) *shard {
	return &c.shards[xxhash.Sum64(key)%uint64(len(c.shards))]
}

// --------------------------------------------------------------------

// Handle pins a cache entry.
type Handle struct {
	s *shard
	e *entry
}

// Value returns the pinned value.
func (h *Handle) Value() interface{} { return h.e.value }

// Key returns the key of the pinned entry.
func (h *Handle) Key() []byte { return []byte(h.e.key) }

// Release unpins the entry. Releasing twice is a no-op.
func (h *Handle) Release() {
	if h == nil || h.s == nil {
		return
	}
	h.s.release(h)
}
