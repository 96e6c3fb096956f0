package lsmtable

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// BlockSize is the minimum uncompressed size in bytes of each value block.
	// Default: 4KiB.
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points
	// within a value block.
	//
	// Default: 16.
	BlockRestartInterval int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if oo.BlockRestartInterval < 1 {
		oo.BlockRestartInterval = 16
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}

	return &oo
}

// Writer instances can write a table. Keys must be encoded internal keys,
// appended in strictly increasing InternalKeyOrder.
type Writer struct {
	w io.Writer
	c io.Closer // set when the writer owns the file
	o *WriterOptions

	data  *BlockBuilder
	index *BlockBuilder

	lastKey  []byte
	nentries uint64
	offset   uint64

	snp []byte // snappy buffer
	tmp [footerLen]byte

	closed bool
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	o = o.norm()
	return &Writer{
		w:     w,
		o:     o,
		data:  NewBlockBuilder(o.BlockRestartInterval),
		index: NewIndexBlockBuilder(),
	}
}

// Create creates (or truncates) the named file and returns a Writer which
// closes it on Close.
func Create(name string, o *WriterOptions) (*Writer, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, errors.Wrapf(err, "lsmtable: create %s", name)
	}

	w := NewWriter(f, o)
	w.c = f
	return w, nil
}

// Append appends an entry to the table.
func (w *Writer) Append(key, value []byte) error {
	if w.closed {
		return ErrClosed
	}
	if _, err := DecodeInternalKey(key); err != nil {
		return err
	}
	if w.nentries != 0 && InternalKeyOrder(key, w.lastKey) != After {
		return invalidArgumentf("lsmtable: attempted an out-of-order append, %q must be after %q", key, w.lastKey)
	}

	if err := w.data.Add(key, value); err != nil {
		return err
	}
	w.lastKey = append(w.lastKey[:0], key...)
	w.nentries++

	if w.data.CurrentSize() >= w.o.BlockSize {
		return w.flush()
	}
	return nil
}

// NumEntries returns the number of appended entries.
func (w *Writer) NumEntries() uint64 { return w.nentries }

// Size returns the number of bytes written so far.
func (w *Writer) Size() uint64 { return w.offset }

// Close flushes pending data, writes the index block and the footer. If the
// underlying writer supports Sync, it is synced.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	err := w.finish()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (w *Writer) finish() error {
	if err := w.flush(); err != nil {
		return err
	}

	indexOffset := w.offset
	if _, err := w.writeBlock(w.index.Finish()); err != nil {
		return err
	}
	w.index.Reset()

	binary.LittleEndian.PutUint64(w.tmp[:], indexOffset)
	if err := w.writeRaw(w.tmp[:]); err != nil {
		return err
	}

	if s, ok := w.w.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return errors.Wrap(err, "lsmtable: sync")
		}
	}
	return nil
}

func (w *Writer) flush() error {
	if w.data.Empty() {
		return nil
	}

	h, err := w.writeBlock(w.data.Finish())
	if err != nil {
		return err
	}
	w.data.Reset()

	return w.index.AddHandle(w.lastKey, h)
}

func (w *Writer) writeBlock(raw []byte) (BlockHandle, error) {
	var block []byte
	switch w.o.Compression {
	case SnappyCompression:
		w.snp = snappy.Encode(w.snp[:cap(w.snp)], raw)
		if len(w.snp) < len(raw)-len(raw)/4 {
			block = append(w.snp, blockSnappyCompression)
		} else {
			block = append(raw, blockNoCompression)
		}
	default:
		block = append(raw, blockNoCompression)
	}

	h := BlockHandle{Offset: w.offset, Size: uint64(len(block))}
	return h, w.writeRaw(block)
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += uint64(n)
	if err != nil {
		return errors.Wrap(err, "lsmtable: write")
	}
	return nil
}
