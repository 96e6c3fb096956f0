package memtable

import (
	"github.com/bsm/lsmtable"
	"github.com/huandu/skiplist"
)

// iterator walks the skip list, holding the read lock only while moving.
// The current value is captured under the lock, as Add may replace it.
type iterator struct {
	m   *MemTable
	el  *skiplist.Element
	val []byte
	err error
}

func (i *iterator) Valid() bool { return i.err == nil && i.el != nil }

func (i *iterator) Key() []byte   { return i.el.Key().([]byte) }
func (i *iterator) Value() []byte { return i.val }
func (i *iterator) Err() error    { return i.err }

func (i *iterator) SeekForFirst() { i.move(func() *skiplist.Element { return i.m.list.Front() }) }
func (i *iterator) SeekForLast()  { i.move(func() *skiplist.Element { return i.m.list.Back() }) }

func (i *iterator) Seek(target []byte) {
	i.move(func() *skiplist.Element { return i.m.list.Find(target) })
}

func (i *iterator) Next() {
	if i.Valid() {
		i.move(i.el.Next)
	}
}

func (i *iterator) Prev() {
	if i.Valid() {
		i.move(i.el.Prev)
	}
}

func (i *iterator) Release() {
	i.el, i.val = nil, nil
	i.err = lsmtable.ErrReleased
}

func (i *iterator) move(fn func() *skiplist.Element) {
	if i.err != nil {
		return
	}

	i.m.mu.RLock()
	defer i.m.mu.RUnlock()

	if i.el = fn(); i.el != nil {
		i.val = i.el.Value.([]byte)
	} else {
		i.val = nil
	}
}
