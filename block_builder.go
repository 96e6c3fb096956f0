package lsmtable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// BlockBuilder assembles a single block. Entries are stored with their full
// keys; every interval-th entry is recorded as a restart point.
//
//	[keyLen u32][key][valueLen u32][value]     value block entry
//	[keyLen u32][key][offset u64][size u64]    index block entry
//	[restart u32]*n [n u32]                    restart table
type BlockBuilder struct {
	buf      []byte
	restarts []uint32
	interval int
	index    bool

	nentries int
	finished bool
	tmp      [8]byte
}

// NewBlockBuilder returns a builder for value blocks with the given restart
// interval. Intervals below 1 default to 16.
func NewBlockBuilder(interval int) *BlockBuilder {
	if interval < 1 {
		interval = 16
	}
	return &BlockBuilder{interval: interval}
}

// NewIndexBlockBuilder returns a builder for index blocks. Every index
// entry is a restart point.
func NewIndexBlockBuilder() *BlockBuilder {
	return &BlockBuilder{interval: 1, index: true}
}

// Add appends a key/value entry to a value block.
func (b *BlockBuilder) Add(key, value []byte) error {
	if b.index {
		return errors.AssertionFailedf("lsmtable: Add called on an index block builder")
	}
	if err := b.startEntry(key); err != nil {
		return err
	}
	b.appendU32(uint32(len(value)))
	b.buf = append(b.buf, value...)
	return nil
}

// AddHandle appends a key/handle entry to an index block.
func (b *BlockBuilder) AddHandle(key []byte, h BlockHandle) error {
	if !b.index {
		return errors.AssertionFailedf("lsmtable: AddHandle called on a value block builder")
	}
	if err := b.startEntry(key); err != nil {
		return err
	}
	b.buf = h.appendTo(b.buf)
	return nil
}

func (b *BlockBuilder) startEntry(key []byte) error {
	if b.finished {
		return errors.AssertionFailedf("lsmtable: block builder used after Finish without Reset")
	}
	if b.nentries%b.interval == 0 {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
	}
	b.nentries++

	b.appendU32(uint32(len(key)))
	b.buf = append(b.buf, key...)
	return nil
}

// Finish appends the restart table and returns the block contents. The
// returned slice is valid until Reset is called.
func (b *BlockBuilder) Finish() []byte {
	if b.finished {
		return b.buf
	}
	for _, o := range b.restarts {
		b.appendU32(o)
	}
	b.appendU32(uint32(len(b.restarts)))
	b.finished = true
	return b.buf
}

// Reset clears the builder for reuse.
func (b *BlockBuilder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:0]
	b.nentries = 0
	b.finished = false
}

// Empty returns true if no entries were added since the last Reset.
func (b *BlockBuilder) Empty() bool { return b.nentries == 0 }

// NumEntries returns the number of entries added since the last Reset.
func (b *BlockBuilder) NumEntries() int { return b.nentries }

// CurrentSize returns the size the block would have if finished now.
func (b *BlockBuilder) CurrentSize() int {
	if b.finished {
		return len(b.buf)
	}
	return len(b.buf) + 4*len(b.restarts) + 4
}

func (b *BlockBuilder) appendU32(v uint32) {
	binary.LittleEndian.PutUint32(b.tmp[:4], v)
	b.buf = append(b.buf, b.tmp[:4]...)
}
