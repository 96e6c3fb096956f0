package lsmtable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Error classes. Errors returned by this package are marked with one of
// these and should be tested with errors.Is.
var (
	// ErrNotFound is returned when a file or a key cannot be found.
	ErrNotFound = errors.New("lsmtable: not found")
	// ErrCorruption is returned when on-disk data is malformed.
	ErrCorruption = errors.New("lsmtable: corruption")
	// ErrShortRead is returned when the storage returns fewer bytes than requested.
	ErrShortRead = errors.New("lsmtable: short read")
	// ErrInvalidArgument is returned when the caller passes malformed input.
	ErrInvalidArgument = errors.New("lsmtable: invalid argument")
	// ErrClosed is returned when a closed writer or reader is used.
	ErrClosed = errors.New("lsmtable: is closed")
	// ErrReleased is reported by iterators after Release.
	ErrReleased = errors.New("lsmtable: iterator was released")
)

func corruptionf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

func invalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// --------------------------------------------------------------------

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1

	blockTrailerLen = 1 // compression type
	footerLen       = 8 // index block offset
	handleLen       = 16
)

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)

// --------------------------------------------------------------------

// BlockHandle locates a stored block within a table file. Size includes
// the trailing compression byte.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

func (h BlockHandle) appendTo(dst []byte) []byte {
	var tmp [handleLen]byte
	binary.LittleEndian.PutUint64(tmp[0:], h.Offset)
	binary.LittleEndian.PutUint64(tmp[8:], h.Size)
	return append(dst, tmp[:]...)
}

func decodeBlockHandle(p []byte) (BlockHandle, error) {
	if len(p) != handleLen {
		return BlockHandle{}, corruptionf("lsmtable: bad block handle length %d", len(p))
	}
	return BlockHandle{
		Offset: binary.LittleEndian.Uint64(p[0:]),
		Size:   binary.LittleEndian.Uint64(p[8:]),
	}, nil
}

// --------------------------------------------------------------------

// Iterator is the cursor contract shared by block, table and merge
// iterators.
//
// An iterator is not positioned until one of the Seek methods is called.
// Keys and values are only valid until the next cursor move and must be
// copied if used beyond that.
type Iterator interface {
	// Valid returns true if the iterator is positioned at an entry.
	Valid() bool
	// SeekForFirst positions at the first entry.
	SeekForFirst()
	// SeekForLast positions at the last entry.
	SeekForLast()
	// Seek positions at the first entry with a key >= target.
	Seek(target []byte)
	// Next moves to the next entry.
	Next()
	// Prev moves to the previous entry.
	Prev()
	// Key returns the key of the current entry.
	Key() []byte
	// Value returns the value of the current entry.
	Value() []byte
	// Err exposes iterator errors, if any.
	Err() error
	// Release releases the iterator and frees up resources. The iterator
	// must not be used after this method is called.
	Release()
}
