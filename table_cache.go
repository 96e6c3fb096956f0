package lsmtable

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/bsm/lsmtable/cache"
	"go.uber.org/zap"
)

// TableCacheOptions define table cache specific options.
type TableCacheOptions struct {
	// Entries is the maximum number of open tables.
	// Default: 64.
	Entries int

	// BlockCache is shared by all tables opened through the cache.
	// Default: a cache of DefaultBlockCacheSize bytes.
	BlockCache *cache.Cache

	// Logger is passed on to every opened table.
	// Default: zap.NewNop().
	Logger *zap.Logger
}

func (o *TableCacheOptions) norm() *TableCacheOptions {
	var oo TableCacheOptions
	if o != nil {
		oo = *o
	}

	if oo.Entries < 1 {
		oo.Entries = 64
	}
	if oo.BlockCache == nil {
		oo.BlockCache = cache.New(DefaultBlockCacheSize, nil)
	}
	if oo.Logger == nil {
		oo.Logger = zap.NewNop()
	}

	return &oo
}

// TableFileName returns the name of table file num within dir.
func TableFileName(dir string, num uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.sst", num))
}

// TableCache keeps a bounded number of table readers open, keyed by file
// number. It is safe for concurrent use.
type TableCache struct {
	dir    string
	tables *cache.Cache
	blocks *cache.Cache
	log    *zap.Logger
}

// NewTableCache opens tables from dir on demand.
func NewTableCache(dir string, o *TableCacheOptions) *TableCache {
	o = o.norm()
	return &TableCache{
		dir:    dir,
		tables: cache.New(int64(o.Entries), &cache.Options{Shards: 1}),
		blocks: o.BlockCache,
		log:    o.Logger,
	}
}

// Get looks up key in table num, see Reader.Get.
func (c *TableCache) Get(num uint64, key []byte, visit func(key, value []byte)) error {
	h, err := c.findTable(num)
	if err != nil {
		return err
	}
	defer h.Release()

	return h.Value().(*Reader).Get(key, visit)
}

// NewIterator returns an iterator over table num. The table stays open
// until the iterator is released.
func (c *TableCache) NewIterator(num uint64) (Iterator, error) {
	h, err := c.findTable(num)
	if err != nil {
		return nil, err
	}
	return &pinnedIterator{
		Iterator: h.Value().(*Reader).NewIterator(),
		pin:      h,
	}, nil
}

// Evict drops table num from the cache. The table is closed once all of its
// iterators are released.
func (c *TableCache) Evict(num uint64) {
	c.tables.Erase(tableCacheKey(num))
}

// Close closes all tables which are not in use.
func (c *TableCache) Close() error {
	c.tables.Prune()
	return nil
}

func (c *TableCache) findTable(num uint64) (*cache.Handle, error) {
	key := tableCacheKey(num)
	if h := c.tables.Lookup(key); h != nil {
		return h, nil
	}

	r, err := Open(TableFileName(c.dir, num), &ReaderOptions{Cache: c.blocks, Logger: c.log})
	if err != nil {
		return nil, err
	}
	c.log.Debug("lsmtable: table cache opened table", zap.Uint64("num", num))

	return c.tables.Insert(key, r, 1, c.closeTable), nil
}

func (c *TableCache) closeTable(key []byte, v interface{}) {
	num := binary.LittleEndian.Uint64(key)
	if err := v.(*Reader).Close(); err != nil {
		c.log.Warn("lsmtable: failed to close table", zap.Uint64("num", num), zap.Error(err))
		return
	}
	c.log.Debug("lsmtable: table cache closed table", zap.Uint64("num", num))
}

func tableCacheKey(num uint64) []byte {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, num)
	return key
}

// pinnedIterator releases a cache handle with the iterator.
type pinnedIterator struct {
	Iterator
	pin *cache.Handle
}

func (i *pinnedIterator) Release() {
	i.Iterator.Release()
	i.pin.Release()
}
