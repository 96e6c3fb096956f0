package cache

import "sync"

type entryState uint8

const (
	// referenced by the table only, on the inactive list
	stateInactive entryState = iota
	// referenced by the table and at least one handle, on the active list
	stateActive
	// removed from the table, waiting for its handles to be released
	stateErased
)

type entry struct {
	key     string
	value   interface{}
	deleter DeleterFunc
	charge  int64
	refs    int
	state   entryState

	prev, next *entry
}

func (e *entry) destroy() {
	if e.deleter != nil {
		e.deleter([]byte(e.key), e.value)
	}
}

// --------------------------------------------------------------------

type shard struct {
	mu sync.Mutex

	table    map[string]*entry
	active   entry // list head, most recently pinned at the back
	inactive entry // list head, least recently released at the front

	usage    int64
	capacity int64
	stats    Stats
}

func (s *shard) init(capacity int64) {
	s.table = make(map[string]*entry)
	s.active.next, s.active.prev = &s.active, &s.active
	s.inactive.next, s.inactive.prev = &s.inactive, &s.inactive
	s.capacity = capacity
}

func (s *shard) insert(key []byte, value interface{}, charge int64, deleter DeleterFunc) *entry {
	e := &entry{
		key:     string(key),
		value:   value,
		deleter: deleter,
		charge:  charge,
		refs:    2, // table + returned handle
		state:   stateActive,
	}

	var dead []*entry

	s.mu.Lock()
	if old, ok := s.table[e.key]; ok {
		if s.unlink(old) {
			dead = append(dead, old)
		}
	}
	s.table[e.key] = e
	s.usage += charge
	listAppend(&s.active, e)

	for s.usage > s.capacity && s.inactive.next != &s.inactive {
		old := s.inactive.next
		delete(s.table, old.key)
		if s.unlink(old) {
			dead = append(dead, old)
		}
		s.stats.Evictions++
	}
	s.mu.Unlock()

	for _, d := range dead {
		d.destroy()
	}
	return e
}

func (s *shard) lookup(key []byte) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.table[string(key)]
	if !ok {
		s.stats.Misses++
		return nil
	}
	s.stats.Hits++
	s.ref(e)
	return e
}

func (s *shard) release(h *Handle) {
	s.mu.Lock()
	e := h.e
	if e == nil {
		s.mu.Unlock()
		return
	}
	h.e = nil
	dead := s.unref(e)
	s.mu.Unlock()

	if dead {
		e.destroy()
	}
}

func (s *shard) erase(key []byte) {
	s.mu.Lock()
	e, ok := s.table[string(key)]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.table, e.key)
	dead := s.unlink(e)
	s.mu.Unlock()

	if dead {
		e.destroy()
	}
}

func (s *shard) value(key []byte) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.table[string(key)]; ok {
		return e.value, true
	}
	return nil, false
}

func (s *shard) prune() {
	var dead []*entry

	s.mu.Lock()
	for s.inactive.next != &s.inactive {
		e := s.inactive.next
		delete(s.table, e.key)
		if s.unlink(e) {
			dead = append(dead, e)
		}
	}
	s.mu.Unlock()

	for _, d := range dead {
		d.destroy()
	}
}

// unlink drops the table reference of an entry which was already removed
// from the map. Returns true if the entry must be destroyed.
func (s *shard) unlink(e *entry) bool {
	s.usage -= e.charge
	listRemove(e)
	e.state = stateErased
	return s.unref(e)
}

func (s *shard) ref(e *entry) {
	if e.state == stateInactive {
		listRemove(e)
		listAppend(&s.active, e)
		e.state = stateActive
	}
	e.refs++
}

// unref drops one reference. Returns true if it was the last one.
func (s *shard) unref(e *entry) bool {
	e.refs--
	switch {
	case e.refs == 0:
		return true
	case e.refs == 1 && e.state == stateActive:
		listRemove(e)
		listAppend(&s.inactive, e)
		e.state = stateInactive
	}
	return false
}

func listAppend(head, e *entry) {
	e.next = head
	e.prev = head.prev
	e.prev.next = e
	e.next.prev = e
}

func listRemove(e *entry) {
	if e.next == nil {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next, e.prev = nil, nil
}
