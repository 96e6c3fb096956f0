// Package wal implements a write-ahead log of key/value records.
//
// Each record is self-checksummed:
//
//	+-------------+----------------+-----+------------------+-------+
//	| crc32 (4B)  | key len (4B)   | key | value len (4B)   | value |
//	+-------------+----------------+-----+------------------+-------+
//
// The IEEE crc32 covers everything after it. All integers are
// little-endian. Replay stops at the first record that is truncated or
// fails its checksum and returns everything decoded before it.
package wal

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/bsm/lsmtable"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	crcLen    = 4
	lenLen    = 4
	headerLen = crcLen + lenLen
)

// Record is a single logged key/value pair.
type Record struct {
	Key   []byte
	Value []byte
}

// Options configure log writers and readers.
type Options struct {
	// Sync forces an fsync after every Add or AddBatch.
	Sync bool

	// Logger reports replay problems.
	// Default: zap.NewNop().
	Logger *zap.Logger
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.Logger == nil {
		oo.Logger = zap.NewNop()
	}

	return &oo
}

// Encode returns the checksummed record for a key/value pair.
func Encode(key, value []byte) []byte {
	return AppendRecord(nil, key, value)
}

// AppendRecord appends the checksummed record for a key/value pair to dst.
func AppendRecord(dst, key, value []byte) []byte {
	start := len(dst)

	var tmp [lenLen]byte
	dst = append(dst, 0, 0, 0, 0) // crc placeholder
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(key)))
	dst = append(dst, tmp[:]...)
	dst = append(dst, key...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(value)))
	dst = append(dst, tmp[:]...)
	dst = append(dst, value...)

	binary.LittleEndian.PutUint32(dst[start:], crc32.ChecksumIEEE(dst[start+crcLen:]))
	return dst
}

// Decode parses records from buf until the end of the buffer or the first
// bad record. It returns the decoded records, the number of bytes they
// occupy and, if decoding stopped early, an error marked with
// lsmtable.ErrShortRead or lsmtable.ErrCorruption. Returned records alias
// buf.
func Decode(buf []byte) ([]Record, int, error) {
	var recs []Record
	pos := 0
	for pos < len(buf) {
		rec, n, err := decodeRecord(buf[pos:])
		if err != nil {
			return recs, pos, errors.Wrapf(err, "wal: record at offset %d", pos)
		}
		recs = append(recs, rec)
		pos += n
	}
	return recs, pos, nil
}

func decodeRecord(p []byte) (Record, int, error) {
	if len(p) < headerLen {
		return Record{}, 0, errors.Mark(errors.Newf("wal: truncated header (%d bytes)", len(p)), lsmtable.ErrShortRead)
	}

	klen := int(binary.LittleEndian.Uint32(p[crcLen:]))
	pos := headerLen
	if klen > len(p)-pos-lenLen {
		return Record{}, 0, errors.Mark(errors.Newf("wal: truncated key (%d bytes)", klen), lsmtable.ErrShortRead)
	}
	key := p[pos : pos+klen]
	pos += klen

	vlen := int(binary.LittleEndian.Uint32(p[pos:]))
	pos += lenLen
	if vlen > len(p)-pos {
		return Record{}, 0, errors.Mark(errors.Newf("wal: truncated value (%d bytes)", vlen), lsmtable.ErrShortRead)
	}
	val := p[pos : pos+vlen]
	pos += vlen

	if want, got := binary.LittleEndian.Uint32(p), crc32.ChecksumIEEE(p[crcLen:pos]); want != got {
		return Record{}, 0, errors.Mark(errors.Newf("wal: checksum mismatch, stored %08x, computed %08x", want, got), lsmtable.ErrCorruption)
	}
	return Record{Key: key, Value: val}, pos, nil
}
