package lsmtable

import (
	"encoding/binary"
	"sort"
)

// Block is a parsed, immutable block. A block either borrows its buffer, in
// which case the caller guarantees its lifetime, or owns a pooled buffer
// which is returned to the pool on Release.
type Block struct {
	data        []byte
	restarts    int // offset of the restart table
	numRestarts int
	owned       bool
}

// NewBlock parses a block which borrows data.
func NewBlock(data []byte) (*Block, error) {
	return parseBlock(data, false)
}

func parseBlock(data []byte, owned bool) (*Block, error) {
	if len(data) < 4 {
		return nil, corruptionf("lsmtable: block too short (%d bytes)", len(data))
	}

	n := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	if n < 0 || n > (len(data)-4)/4 {
		return nil, corruptionf("lsmtable: bad restart count %d for block of %d bytes", n, len(data))
	}

	b := &Block{
		data:        data,
		restarts:    len(data) - 4 - 4*n,
		numRestarts: n,
		owned:       owned,
	}
	if n == 0 && b.restarts != 0 {
		return nil, corruptionf("lsmtable: block has entries but no restart points")
	}

	prev := -1
	for i := 0; i < n; i++ {
		off := b.restartOffset(i)
		if off <= prev || off >= b.restarts || (i == 0 && off != 0) {
			return nil, corruptionf("lsmtable: bad restart offset %d at %d", off, i)
		}
		prev = off
	}
	return b, nil
}

// Size returns the size of the block contents in bytes.
func (b *Block) Size() int { return len(b.data) }

// NumRestarts returns the number of restart points.
func (b *Block) NumRestarts() int { return b.numRestarts }

// Release frees owned buffers. The block must not be used after this
// method is called.
func (b *Block) Release() {
	if b.owned {
		releaseBuffer(b.data)
	}
	b.data = nil
	b.restarts = 0
	b.numRestarts = 0
}

// NewIterator returns an iterator over a value block.
func (b *Block) NewIterator(cmp CompareFunc) *BlockIterator {
	return &BlockIterator{b: b, cmp: cmp}
}

// NewIndexIterator returns an iterator over an index block.
func (b *Block) NewIndexIterator(cmp CompareFunc) *IndexIterator {
	return &IndexIterator{b: b, cmp: cmp, pos: -1}
}

func (b *Block) restartOffset(i int) int {
	return int(binary.LittleEndian.Uint32(b.data[b.restarts+4*i:]))
}

// decodeEntry decodes the entry at off. Index entries carry a fixed-size
// handle instead of a length-prefixed value.
func (b *Block) decodeEntry(off int, index bool) (key, val []byte, next int, err error) {
	end := b.restarts
	if off+4 > end {
		return nil, nil, 0, corruptionf("lsmtable: truncated entry at %d", off)
	}
	klen := int(binary.LittleEndian.Uint32(b.data[off:]))
	off += 4
	if klen < 0 || klen > end-off {
		return nil, nil, 0, corruptionf("lsmtable: bad key length %d at %d", klen, off)
	}
	key = b.data[off : off+klen]
	off += klen

	vlen := handleLen
	if !index {
		if off+4 > end {
			return nil, nil, 0, corruptionf("lsmtable: truncated value length at %d", off)
		}
		vlen = int(binary.LittleEndian.Uint32(b.data[off:]))
		off += 4
	}
	if vlen < 0 || vlen > end-off {
		return nil, nil, 0, corruptionf("lsmtable: bad value length %d at %d", vlen, off)
	}
	return key, b.data[off : off+vlen], off + vlen, nil
}

// --------------------------------------------------------------------

// BlockIterator iterates over the entries of a value block. Seek binary
// searches the restart points and scans forward linearly from the closest
// one; Prev rescans from the restart point preceding the current entry.
type BlockIterator struct {
	b   *Block
	cmp CompareFunc

	offset int // current entry
	next   int // entry after the current one
	key    []byte
	val    []byte
	valid  bool

	err error
}

// Valid implements Iterator.
func (i *BlockIterator) Valid() bool { return i.valid && i.err == nil }

// Key implements Iterator.
func (i *BlockIterator) Key() []byte { return i.key }

// Value implements Iterator.
func (i *BlockIterator) Value() []byte { return i.val }

// Err implements Iterator.
func (i *BlockIterator) Err() error { return i.err }

// Release implements Iterator.
func (i *BlockIterator) Release() {
	i.valid = false
	i.key, i.val = nil, nil
	i.err = ErrReleased
}

// SeekForFirst implements Iterator.
func (i *BlockIterator) SeekForFirst() {
	if i.err != nil {
		return
	}
	if i.b.numRestarts == 0 {
		i.valid = false
		return
	}
	i.decodeAt(0)
}

// SeekForLast implements Iterator.
func (i *BlockIterator) SeekForLast() {
	if i.err != nil {
		return
	}
	if i.b.numRestarts == 0 {
		i.valid = false
		return
	}
	for i.decodeAt(i.b.restartOffset(i.b.numRestarts-1)); i.valid && i.next < i.b.restarts; {
		i.decodeAt(i.next)
	}
}

// Seek implements Iterator.
func (i *BlockIterator) Seek(target []byte) {
	if i.err != nil {
		return
	}

	// first restart point whose key is >= target
	n := sort.Search(i.b.numRestarts, func(r int) bool {
		if i.err != nil {
			return true
		}
		key, _, _, err := i.b.decodeEntry(i.b.restartOffset(r), false)
		if err != nil {
			i.err = err
			return true
		}
		return i.cmp(key, target) != Before
	})
	if i.err != nil {
		i.valid = false
		return
	}
	if n > 0 {
		n--
	}
	if n >= i.b.numRestarts {
		i.valid = false
		return
	}

	for i.decodeAt(i.b.restartOffset(n)); i.valid; i.Next() {
		if i.cmp(i.key, target) != Before {
			return
		}
	}
}

// Next implements Iterator.
func (i *BlockIterator) Next() {
	if !i.Valid() {
		return
	}
	if i.next >= i.b.restarts {
		i.valid = false
		return
	}
	i.decodeAt(i.next)
}

// Prev implements Iterator.
func (i *BlockIterator) Prev() {
	if !i.Valid() {
		return
	}
	if i.offset == 0 {
		i.valid = false
		return
	}

	target := i.offset
	r := sort.Search(i.b.numRestarts, func(r int) bool {
		return i.b.restartOffset(r) >= target
	}) - 1

	for i.decodeAt(i.b.restartOffset(r)); i.valid && i.next < target; {
		i.decodeAt(i.next)
	}
	if i.valid && i.next != target {
		i.err = corruptionf("lsmtable: entry boundary mismatch at %d", target)
		i.valid = false
	}
}

func (i *BlockIterator) decodeAt(off int) {
	key, val, next, err := i.b.decodeEntry(off, false)
	if err != nil {
		i.err = err
		i.valid = false
		return
	}
	i.offset, i.next = off, next
	i.key, i.val = key, val
	i.valid = true
}

// --------------------------------------------------------------------

// IndexIterator iterates over the entries of an index block. Since every
// entry is a restart point, all positioning is done by restart index.
type IndexIterator struct {
	b   *Block
	cmp CompareFunc

	pos int
	key []byte
	val []byte

	err error
}

// Valid implements Iterator.
func (i *IndexIterator) Valid() bool {
	return i.err == nil && i.pos >= 0 && i.pos < i.b.numRestarts
}

// Key implements Iterator.
func (i *IndexIterator) Key() []byte { return i.key }

// Value returns the raw encoded block handle.
func (i *IndexIterator) Value() []byte { return i.val }

// Handle decodes the block handle of the current entry.
func (i *IndexIterator) Handle() (BlockHandle, error) {
	return decodeBlockHandle(i.val)
}

// Err implements Iterator.
func (i *IndexIterator) Err() error { return i.err }

// Release implements Iterator.
func (i *IndexIterator) Release() {
	i.pos = -1
	i.key, i.val = nil, nil
	i.err = ErrReleased
}

// SeekForFirst implements Iterator.
func (i *IndexIterator) SeekForFirst() { i.moveTo(0) }

// SeekForLast implements Iterator.
func (i *IndexIterator) SeekForLast() { i.moveTo(i.b.numRestarts - 1) }

// Seek implements Iterator.
func (i *IndexIterator) Seek(target []byte) {
	if i.err != nil {
		return
	}
	n := sort.Search(i.b.numRestarts, func(r int) bool {
		if i.err != nil {
			return true
		}
		key, _, _, err := i.b.decodeEntry(i.b.restartOffset(r), true)
		if err != nil {
			i.err = err
			return true
		}
		return i.cmp(key, target) != Before
	})
	i.moveTo(n)
}

// Next implements Iterator.
func (i *IndexIterator) Next() {
	if i.Valid() {
		i.moveTo(i.pos + 1)
	}
}

// Prev implements Iterator.
func (i *IndexIterator) Prev() {
	if i.Valid() {
		i.moveTo(i.pos - 1)
	}
}

func (i *IndexIterator) moveTo(pos int) {
	if i.err != nil {
		return
	}
	i.pos = pos
	if pos < 0 || pos >= i.b.numRestarts {
		i.key, i.val = nil, nil
		return
	}

	key, val, _, err := i.b.decodeEntry(i.b.restartOffset(pos), true)
	if err != nil {
		i.err = err
		return
	}
	i.key, i.val = key, val
}
