package lsmtable

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/bsm/lsmtable/cache"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBlockCacheSize is the capacity of the private block cache a Reader
// creates when none is configured.
const DefaultBlockCacheSize = 8 << 20

// maxBlockLen bounds the decoded size of a single block.
const maxBlockLen = 1 << 30

// ReaderOptions define reader specific options.
type ReaderOptions struct {
	// Cache holds uncompressed blocks, charged by their size. It may be
	// shared by many readers.
	// Default: a private cache of DefaultBlockCacheSize bytes.
	Cache *cache.Cache

	// Logger is used for debug events.
	// Default: zap.NewNop().
	Logger *zap.Logger
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}

	if oo.Cache == nil {
		oo.Cache = cache.New(DefaultBlockCacheSize, nil)
	}
	if oo.Logger == nil {
		oo.Logger = zap.NewNop()
	}

	return &oo
}

// Reader instances can seek and iterate across data in tables. A Reader is
// safe for concurrent use.
type Reader struct {
	r    io.ReaderAt
	c    io.Closer // set when the reader owns the file
	size int64

	id          uuid.UUID // block cache namespace
	index       *Block
	indexOffset uint64
	cache *cache.Cache
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewReader opens a reader.
func NewReader(r io.ReaderAt, size int64, o *ReaderOptions) (*Reader, error) {
	o = o.norm()

	if size < footerLen {
		return nil, corruptionf("lsmtable: file too short for footer (%d bytes)", size)
	}

	// read footer
	var tmp [footerLen]byte
	if err := readAt(r, tmp[:], size-footerLen); err != nil {
		return nil, err
	}
	indexOffset := binary.LittleEndian.Uint64(tmp[:])
	if indexOffset > uint64(size-footerLen) {
		return nil, corruptionf("lsmtable: bad index offset %d for file of %d bytes", indexOffset, size)
	}

	// read index
	index, err := readBlock(r, BlockHandle{Offset: indexOffset, Size: uint64(size-footerLen) - indexOffset})
	if err != nil {
		return nil, err
	}

	rd := &Reader{
		r:           r,
		size:        size,
		id:          uuid.New(),
		index:       index,
		indexOffset: indexOffset,
		cache:       o.Cache,
		log:         o.Logger,
	}
	rd.log.Debug("lsmtable: opened table",
		zap.String("id", rd.id.String()),
		zap.Int64("size", size),
		zap.Int("blocks", index.NumRestarts()),
	)
	return rd, nil
}

// Open opens the named table file. The file is closed with the Reader.
func Open(name string, o *ReaderOptions) (*Reader, error) {
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil, errors.Mark(errors.Wrapf(err, "lsmtable: open %s", name), ErrNotFound)
	} else if err != nil {
		return nil, errors.Wrapf(err, "lsmtable: open %s", name)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "lsmtable: stat %s", name)
	}

	r, err := NewReader(f, fi.Size(), o)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "lsmtable: open %s", name)
	}
	r.c = f
	return r, nil
}

// NumBlocks returns the number of stored value blocks.
func (r *Reader) NumBlocks() int { return r.index.NumRestarts() }

// Size returns the size of the table file.
func (r *Reader) Size() int64 { return r.size }

// Get seeks the first entry with an internal key >= key. If that entry has
// the same user key, visit is called with its key and value, which are only
// valid for the duration of the call. Returns ErrNotFound otherwise.
func (r *Reader) Get(key []byte, visit func(key, value []byte)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	iit := r.index.NewIndexIterator(InternalKeyOrder)
	if iit.Seek(key); !iit.Valid() {
		if err := iit.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}

	h, err := iit.Handle()
	if err != nil {
		return err
	}

	ch, err := r.loadBlock(h)
	if err != nil {
		return err
	}
	defer ch.Release()

	bit := ch.Value().(*Block).NewIterator(InternalKeyOrder)
	if bit.Seek(key); !bit.Valid() {
		if err := bit.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}
	if UserKeyOrder(bit.Key(), key) != Equal {
		return ErrNotFound
	}

	visit(bit.Key(), bit.Value())
	return nil
}

// Append retrieves the newest value for a user key and appends it to dst.
// It may return an ErrNotFound error, also when the newest version is a
// deletion.
func (r *Reader) Append(dst []byte, userKey []byte) ([]byte, error) {
	var found bool
	var derr error

	err := r.Get(LookupKey(userKey), func(key, value []byte) {
		ik, err := DecodeInternalKey(key)
		if err != nil {
			derr = err
			return
		}
		if ik.Kind == KindUpdate {
			dst = append(dst, value...)
			found = true
		}
	})
	if err != nil {
		return dst, err
	} else if derr != nil {
		return dst, derr
	} else if !found {
		return dst, ErrNotFound
	}
	return dst, nil
}

// NewIterator returns an iterator over all entries of the table. The
// iterator must be released before the reader is closed.
func (r *Reader) NewIterator() Iterator {
	return &tableIterator{
		r:     r,
		index: r.index.NewIndexIterator(InternalKeyOrder),
	}
}

// Close releases the index and drops this table's blocks from the cache.
// If the reader was created by Open, the file is closed too.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.closed = true

	iit := r.index.NewIndexIterator(InternalKeyOrder)
	for iit.SeekForFirst(); iit.Valid(); iit.Next() {
		if h, err := iit.Handle(); err == nil {
			r.cache.Erase(r.cacheKey(h))
		}
	}
	iit.Release()
	r.index.Release()

	if r.c != nil {
		return r.c.Close()
	}
	return nil
}

func (r *Reader) cacheKey(h BlockHandle) []byte {
	key := make([]byte, 0, len(r.id)+handleLen)
	key = append(key, r.id[:]...)
	return h.appendTo(key)
}

// loadBlock returns a pinned cache handle to the block at h, reading it on
// a miss.
func (r *Reader) loadBlock(h BlockHandle) (*cache.Handle, error) {
	if h.Size < blockTrailerLen || h.Offset > r.indexOffset || h.Size > r.indexOffset-h.Offset {
		return nil, corruptionf("lsmtable: bad block handle %d+%d, data ends at %d", h.Offset, h.Size, r.indexOffset)
	}

	key := r.cacheKey(h)
	if ch := r.cache.Lookup(key); ch != nil {
		return ch, nil
	}

	b, err := readBlock(r.r, h)
	if err != nil {
		return nil, err
	}
	return r.cache.Insert(key, b, int64(b.Size()), releaseCachedBlock), nil
}

func releaseCachedBlock(_ []byte, v interface{}) {
	v.(*Block).Release()
}

func readBlock(r io.ReaderAt, h BlockHandle) (*Block, error) {
	if h.Size < blockTrailerLen {
		return nil, corruptionf("lsmtable: block at %d too short (%d bytes)", h.Offset, h.Size)
	}

	raw := fetchBuffer(int(h.Size))
	if err := readAt(r, raw, int64(h.Offset)); err != nil {
		releaseBuffer(raw)
		return nil, err
	}

	var data []byte
	switch cpos := len(raw) - 1; raw[cpos] {
	case blockNoCompression:
		data = raw[:cpos]
	case blockSnappyCompression:
		defer releaseBuffer(raw)

		sz, err := snappy.DecodedLen(raw[:cpos])
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "lsmtable: block at %d", h.Offset), ErrCorruption)
		} else if sz > maxBlockLen {
			return nil, corruptionf("lsmtable: block at %d decodes to %d bytes", h.Offset, sz)
		}

		plain := fetchBuffer(sz)
		if data, err = snappy.Decode(plain, raw[:cpos]); err != nil {
			releaseBuffer(plain)
			return nil, errors.Mark(errors.Wrapf(err, "lsmtable: block at %d", h.Offset), ErrCorruption)
		}
	default:
		c := raw[len(raw)-1]
		releaseBuffer(raw)
		return nil, corruptionf("lsmtable: bad compression type %d for block at %d", c, h.Offset)
	}

	b, err := parseBlock(data, true)
	if err != nil {
		releaseBuffer(data)
		return nil, err
	}
	return b, nil
}

func readAt(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return errors.Mark(errors.Newf("lsmtable: short read at %d, %d of %d bytes", off, n, len(p)), ErrShortRead)
	}
	return errors.Wrapf(err, "lsmtable: read at %d", off)
}

// --------------------------------------------------------------------

// tableIterator is a two-level iterator: the index iterator selects a value
// block, which is pinned in the cache while the data iterator walks it.
type tableIterator struct {
	r     *Reader
	index *IndexIterator

	data   *BlockIterator
	pin    *cache.Handle
	loaded BlockHandle

	err error
}

func (i *tableIterator) Valid() bool {
	return i.err == nil && i.data != nil && i.data.Valid()
}

func (i *tableIterator) Key() []byte   { return i.data.Key() }
func (i *tableIterator) Value() []byte { return i.data.Value() }
func (i *tableIterator) Err() error    { return i.err }

func (i *tableIterator) SeekForFirst() {
	if i.err != nil {
		return
	}
	i.index.SeekForFirst()
	if i.loadData() {
		i.data.SeekForFirst()
	}
	i.skipForward()
}

func (i *tableIterator) SeekForLast() {
	if i.err != nil {
		return
	}
	i.index.SeekForLast()
	if i.loadData() {
		i.data.SeekForLast()
	}
	i.skipBackward()
}

func (i *tableIterator) Seek(target []byte) {
	if i.err != nil {
		return
	}
	i.index.Seek(target)
	if i.loadData() {
		i.data.Seek(target)
	}
	i.skipForward()
}

func (i *tableIterator) Next() {
	if !i.Valid() {
		return
	}
	i.data.Next()
	i.skipForward()
}

func (i *tableIterator) Prev() {
	if !i.Valid() {
		return
	}
	i.data.Prev()
	i.skipBackward()
}

func (i *tableIterator) Release() {
	i.unpin()
	i.index.Release()
	i.err = ErrReleased
}

func (i *tableIterator) skipForward() {
	for i.err == nil && i.data != nil && !i.data.Valid() {
		if err := i.data.Err(); err != nil {
			i.err = err
			return
		}
		i.index.Next()
		if i.loadData() {
			i.data.SeekForFirst()
		}
	}
}

func (i *tableIterator) skipBackward() {
	for i.err == nil && i.data != nil && !i.data.Valid() {
		if err := i.data.Err(); err != nil {
			i.err = err
			return
		}
		i.index.Prev()
		if i.loadData() {
			i.data.SeekForLast()
		}
	}
}

// loadData points the data iterator at the block selected by the index.
// Returns false if the index is exhausted or the block cannot be loaded.
func (i *tableIterator) loadData() bool {
	if !i.index.Valid() {
		i.err = i.index.Err()
		i.unpin()
		return false
	}

	h, err := i.index.Handle()
	if err != nil {
		i.err = err
		i.unpin()
		return false
	}
	if i.data != nil && i.loaded == h {
		return true
	}

	i.r.mu.RLock()
	closed := i.r.closed
	i.r.mu.RUnlock()
	if closed {
		i.err = ErrClosed
		i.unpin()
		return false
	}

	pin, err := i.r.loadBlock(h)
	if err != nil {
		i.err = err
		i.unpin()
		return false
	}

	i.unpin()
	i.pin, i.loaded = pin, h
	i.data = pin.Value().(*Block).NewIterator(InternalKeyOrder)
	return true
}

func (i *tableIterator) unpin() {
	if i.pin != nil {
		i.pin.Release()
		i.pin = nil
	}
	i.data = nil
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
