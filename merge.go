package lsmtable

type direction uint8

const (
	forward direction = iota
	reverse
)

// NewMergeIterator combines sorted iterators into a single sorted view.
// Entries with equal keys are yielded from the first source that holds
// them first. A nil cmp defaults to InternalKeyOrder.
//
// The merge iterator takes ownership of the sources and releases them with
// itself.
func NewMergeIterator(cmp CompareFunc, iters ...Iterator) Iterator {
	if cmp == nil {
		cmp = InternalKeyOrder
	}
	return &mergeIterator{cmp: cmp, iters: iters, cur: -1}
}

type mergeIterator struct {
	cmp   CompareFunc
	iters []Iterator
	cur   int
	dir   direction
	key   []byte // scratch for direction switches
}

func (m *mergeIterator) Valid() bool {
	return m.cur >= 0 && m.iters[m.cur].Valid()
}

func (m *mergeIterator) Key() []byte   { return m.iters[m.cur].Key() }
func (m *mergeIterator) Value() []byte { return m.iters[m.cur].Value() }

func (m *mergeIterator) Err() error {
	for _, it := range m.iters {
		if err := it.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (m *mergeIterator) Release() {
	for _, it := range m.iters {
		it.Release()
	}
	m.cur = -1
}

func (m *mergeIterator) SeekForFirst() {
	for _, it := range m.iters {
		it.SeekForFirst()
	}
	m.dir = forward
	m.findSmallest()
}

func (m *mergeIterator) SeekForLast() {
	for _, it := range m.iters {
		it.SeekForLast()
	}
	m.dir = reverse
	m.findLargest()
}

func (m *mergeIterator) Seek(target []byte) {
	for _, it := range m.iters {
		it.Seek(target)
	}
	m.dir = forward
	m.findSmallest()
}

func (m *mergeIterator) Next() {
	if !m.Valid() {
		return
	}

	if m.dir != forward {
		m.key = append(m.key[:0], m.Key()...)
		for i, it := range m.iters {
			if i == m.cur {
				continue
			}
			if it.Seek(m.key); it.Valid() && m.cmp(m.key, it.Key()) == Equal {
				it.Next()
			}
		}
		m.dir = forward
	}

	m.iters[m.cur].Next()
	m.findSmallest()
}

func (m *mergeIterator) Prev() {
	if !m.Valid() {
		return
	}

	if m.dir != reverse {
		m.key = append(m.key[:0], m.Key()...)
		for i, it := range m.iters {
			if i == m.cur {
				continue
			}
			if it.Seek(m.key); it.Valid() {
				it.Prev()
			} else {
				it.SeekForLast()
			}
		}
		m.dir = reverse
	}

	m.iters[m.cur].Prev()
	m.findLargest()
}

func (m *mergeIterator) findSmallest() {
	m.cur = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.cur < 0 || m.cmp(it.Key(), m.iters[m.cur].Key()) == Before {
			m.cur = i
		}
	}
}

func (m *mergeIterator) findLargest() {
	m.cur = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.cur < 0 || m.cmp(it.Key(), m.iters[m.cur].Key()) == After {
			m.cur = i
		}
	}
}
