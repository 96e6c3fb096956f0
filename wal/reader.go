package wal

import (
	"io"
	"os"

	"github.com/bsm/lsmtable"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Reader replays a log.
type Reader struct {
	r io.Reader
	c io.Closer // set when the reader owns the file
	o *Options
}

// NewReader wraps a reader.
func NewReader(r io.Reader, o *Options) *Reader {
	return &Reader{r: r, o: o.norm()}
}

// Open opens the named log file for replay. A missing file is reported as
// lsmtable.ErrNotFound.
func Open(name string, o *Options) (*Reader, error) {
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil, errors.Mark(errors.Wrapf(err, "wal: open %s", name), lsmtable.ErrNotFound)
	} else if err != nil {
		return nil, errors.Wrapf(err, "wal: open %s", name)
	}

	r := NewReader(f, o)
	r.c = f
	return r, nil
}

// ReadAll decodes all records. If the log ends in a truncated or corrupt
// record, the records before it are returned together with an error marked
// with lsmtable.ErrShortRead or lsmtable.ErrCorruption.
func (r *Reader) ReadAll() ([]Record, error) {
	buf, err := io.ReadAll(r.r)
	if err != nil {
		return nil, errors.Wrap(err, "wal: read")
	}

	recs, n, err := Decode(buf)
	if err != nil {
		r.o.Logger.Warn("wal: replay stopped at bad record",
			zap.Int("records", len(recs)),
			zap.Int("offset", n),
			zap.Int("skipped", len(buf)-n),
			zap.Error(err),
		)
	}
	return recs, err
}

// Close closes the file opened by Open.
func (r *Reader) Close() error {
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}
