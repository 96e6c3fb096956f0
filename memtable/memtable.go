// Package memtable buffers recent writes in a sorted skip list until they
// are flushed into a table.
package memtable

import (
	"bytes"
	"sync"

	"github.com/bsm/lsmtable"
	"github.com/cockroachdb/errors"
	"github.com/huandu/skiplist"
	"go.uber.org/zap"
)

// Options configure a MemTable.
type Options struct {
	// Logger reports flushes.
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

// internalKeys orders encoded internal keys in the skip list.
type internalKeys struct{}

func (internalKeys) Compare(lhs, rhs interface{}) int {
	return -int(lsmtable.InternalKeyOrder(lhs.([]byte), rhs.([]byte)))
}

func (internalKeys) CalcScore(interface{}) float64 { return 0 }

// MemTable is a sorted in-memory write buffer keyed by internal keys. It
// accepts a single writer and many concurrent readers.
type MemTable struct {
	mu   sync.RWMutex
	list *skiplist.SkipList
	size int64
	log  *zap.Logger
}

// New returns an empty MemTable.
func New(o *Options) *MemTable {
	o = o.norm()
	return &MemTable{
		list: skiplist.New(internalKeys{}),
		log:  o.Logger,
	}
}

// Add records a write. Adding the same user key, sequence and kind twice
// replaces the earlier value.
func (m *MemTable) Add(seq uint64, kind lsmtable.Kind, key, value []byte) error {
	ikey, err := lsmtable.AppendInternalKey(nil, key, seq, kind)
	if err != nil {
		return errors.Wrap(err, "memtable: add")
	}
	val := append([]byte(nil), value...)

	m.mu.Lock()
	defer m.mu.Unlock()

	if el := m.list.Get(ikey); el != nil {
		m.size -= int64(len(el.Value.([]byte)))
		el.Value = val
	} else {
		m.list.Set(ikey, val)
		m.size += int64(len(ikey))
	}
	m.size += int64(len(val))
	return nil
}

// Get returns the newest value of a user key. ok is false when the key is
// unknown or its newest version is a deletion.
func (m *MemTable) Get(userKey []byte) (value []byte, ok bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	el := m.list.Find(lsmtable.LookupKey(userKey))
	if el == nil {
		return nil, false, nil
	}

	ik, err := lsmtable.DecodeInternalKey(el.Key().([]byte))
	if err != nil {
		return nil, false, err
	}
	if !bytes.Equal(ik.UserKey, userKey) || ik.Kind == lsmtable.KindDelete {
		return nil, false, nil
	}
	return el.Value.([]byte), true, nil
}

// Len returns the number of stored entries.
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.list.Len()
}

// ApproximateSize returns the combined size of all keys and values.
func (m *MemTable) ApproximateSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.size
}

// NewIterator returns an iterator over all entries in internal key order.
func (m *MemTable) NewIterator() lsmtable.Iterator {
	return &iterator{m: m}
}

// Flush appends all entries to a table writer. The writer is not closed.
func (m *MemTable) Flush(w *lsmtable.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for el := m.list.Front(); el != nil; el = el.Next() {
		if err := w.Append(el.Key().([]byte), el.Value.([]byte)); err != nil {
			return err
		}
	}

	m.log.Debug("memtable: flushed",
		zap.Int("entries", m.list.Len()),
		zap.Int64("size", m.size),
	)
	return nil
}
