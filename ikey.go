package lsmtable

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Ordering is the result of a three-way key comparison. Its numeric values
// follow the on-disk convention: 1 when a orders before b, -1 when a orders
// after b. Always compare against the named constants.
type Ordering int8

// Possible orderings.
const (
	After  Ordering = -1
	Equal  Ordering = 0
	Before Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	case Equal:
		return "equal"
	}
	return fmt.Sprintf("Ordering(%d)", int8(o))
}

// CompareFunc orders two keys.
type CompareFunc func(a, b []byte) Ordering

// BytewiseOrder orders keys lexicographically.
func BytewiseOrder(a, b []byte) Ordering {
	switch bytes.Compare(a, b) {
	case -1:
		return Before
	case 1:
		return After
	}
	return Equal
}

// InternalKeyOrder orders encoded internal keys by user key ascending,
// then by trailer descending, so that newer versions of a user key come
// first. Keys shorter than the trailer are treated as bare user keys.
func InternalKeyOrder(a, b []byte) Ordering {
	ua, ta := splitInternalKey(a)
	ub, tb := splitInternalKey(b)
	if o := BytewiseOrder(ua, ub); o != Equal {
		return o
	}
	switch {
	case ta > tb:
		return Before
	case ta < tb:
		return After
	}
	return Equal
}

// UserKeyOrder orders encoded internal keys by their user key only.
func UserKeyOrder(a, b []byte) Ordering {
	ua, _ := splitInternalKey(a)
	ub, _ := splitInternalKey(b)
	return BytewiseOrder(ua, ub)
}

func splitInternalKey(k []byte) ([]byte, uint64) {
	n := len(k) - trailerLen
	if n < 0 {
		return k, 0
	}
	return k[:n], binary.LittleEndian.Uint64(k[n:])
}

// --------------------------------------------------------------------

const trailerLen = 8

// MaxSequence is the largest sequence number that fits a trailer.
const MaxSequence uint64 = 1<<56 - 1

// Kind is the operation kind of an internal key.
type Kind uint8

// Operation kinds. These values are part of the file format.
const (
	KindDelete Kind = 0
	KindUpdate Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindDelete:
		return "DEL"
	case KindUpdate:
		return "UPD"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// InternalKey is a user key combined with a sequence number and an
// operation kind.
type InternalKey struct {
	UserKey  []byte
	Sequence uint64
	Kind     Kind
}

// MakeInternalKey is a shortcut for building an InternalKey.
func MakeInternalKey(userKey []byte, seq uint64, kind Kind) InternalKey {
	return InternalKey{UserKey: userKey, Sequence: seq, Kind: kind}
}

// LookupKey returns the encoded key which orders before every version of
// userKey, for point lookups of the newest write.
func LookupKey(userKey []byte) []byte {
	return EncodeInternalKey(nil, userKey, MaxSequence, KindUpdate)
}

// Encode appends the encoded key to dst.
func (k InternalKey) Encode(dst []byte) []byte {
	return EncodeInternalKey(dst, k.UserKey, k.Sequence, k.Kind)
}

func (k InternalKey) String() string {
	return fmt.Sprintf("%q#%d,%s", k.UserKey, k.Sequence, k.Kind)
}

// Validate checks the sequence and kind of k.
func (k InternalKey) Validate() error {
	if k.Sequence > MaxSequence {
		return invalidArgumentf("lsmtable: sequence %d exceeds %d", k.Sequence, MaxSequence)
	}
	if k.Kind > KindUpdate {
		return invalidArgumentf("lsmtable: unknown key kind %d", uint8(k.Kind))
	}
	return nil
}

// AppendInternalKey is like EncodeInternalKey, but returns an
// ErrInvalidArgument error for sequences above MaxSequence or unknown kinds.
func AppendInternalKey(dst, userKey []byte, seq uint64, kind Kind) ([]byte, error) {
	if err := MakeInternalKey(userKey, seq, kind).Validate(); err != nil {
		return dst, err
	}
	return EncodeInternalKey(dst, userKey, seq, kind), nil
}

// EncodeInternalKey appends userKey || trailer(seq<<8 | kind) to dst.
// Only the low 56 bits of seq are kept, so sequences above MaxSequence
// collide with smaller ones. Use AppendInternalKey to reject them.
func EncodeInternalKey(dst, userKey []byte, seq uint64, kind Kind) []byte {
	var tmp [trailerLen]byte
	binary.LittleEndian.PutUint64(tmp[:], (seq&MaxSequence)<<8|uint64(kind))
	dst = append(dst, userKey...)
	return append(dst, tmp[:]...)
}

// DecodeInternalKey parses an encoded internal key. The returned UserKey
// aliases p.
func DecodeInternalKey(p []byte) (InternalKey, error) {
	if len(p) < trailerLen {
		return InternalKey{}, invalidArgumentf("lsmtable: internal key too short (%d bytes)", len(p))
	}

	ukey, trailer := splitInternalKey(p)
	kind := Kind(trailer & 0xff)
	if kind > KindUpdate {
		return InternalKey{}, invalidArgumentf("lsmtable: unknown key kind %d", uint8(kind))
	}
	return InternalKey{UserKey: ukey, Sequence: trailer >> 8, Kind: kind}, nil
}
