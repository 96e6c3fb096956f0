package wal

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/bsm/lsmtable"
	"github.com/cockroachdb/errors"
)

// Writer appends records to a log. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	dst io.Writer
	c   io.Closer // set when the writer owns the file
	o   *Options

	buf    []byte
	size   int64
	closed bool
}

// NewWriter wraps a writer. If w implements Sync() error, Sync calls it
// after flushing.
func NewWriter(w io.Writer, o *Options) *Writer {
	return &Writer{
		w:   bufio.NewWriterSize(w, 64*1024),
		dst: w,
		o:   o.norm(),
	}
}

// Create creates (or truncates) the named log file.
func Create(name string, o *Options) (*Writer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "wal: create %s", name)
	}

	w := NewWriter(f, o)
	w.c = f
	return w, nil
}

// Add logs a single key/value pair.
func (w *Writer) Add(key, value []byte) error {
	return w.AddBatch([]Record{{Key: key, Value: value}})
}

// AddBatch logs several records with a single flush.
func (w *Writer) AddBatch(recs []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return lsmtable.ErrClosed
	}

	w.buf = w.buf[:0]
	for _, rec := range recs {
		w.buf = AppendRecord(w.buf, rec.Key, rec.Value)
	}

	n, err := w.w.Write(w.buf)
	w.size += int64(n)
	if err != nil {
		return errors.Wrap(err, "wal: write")
	}

	if w.o.Sync {
		return w.sync()
	}
	return w.flush()
}

// Size returns the number of bytes logged.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.size
}

// Sync flushes buffered records and syncs the underlying file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return lsmtable.ErrClosed
	}
	return w.sync()
}

// Close flushes and syncs pending records. If the writer was created by
// Create, the file is closed too.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return lsmtable.ErrClosed
	}
	w.closed = true

	err := w.sync()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "wal: close")
		}
	}
	return err
}

func (w *Writer) flush() error {
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "wal: flush")
	}
	return nil
}

func (w *Writer) sync() error {
	if err := w.flush(); err != nil {
		return err
	}
	if s, ok := w.dst.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return errors.Wrap(err, "wal: sync")
		}
	}
	return nil
}
