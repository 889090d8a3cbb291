package presence

import "container/list"

// orderedSet is a string set that remembers insertion order so snapshots are
// deterministic. Insert, Remove and Contains are O(1).
type orderedSet struct {
	order *list.List
	index map[string]*list.Element
}

func newOrderedSet() *orderedSet {
	return &orderedSet{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Insert adds v if absent. It reports whether the set changed.
func (s *orderedSet) Insert(v string) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = s.order.PushBack(v)
	return true
}

// Remove deletes v if present. It reports whether the set changed.
func (s *orderedSet) Remove(v string) bool {
	elem, ok := s.index[v]
	if !ok {
		return false
	}
	s.order.Remove(elem)
	delete(s.index, v)
	return true
}

func (s *orderedSet) Contains(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *orderedSet) Len() int { return len(s.index) }

// Snapshot returns a copy of the members in insertion order. The result is
// never nil so it encodes as [] rather than null.
func (s *orderedSet) Snapshot() []string {
	out := make([]string, 0, len(s.index))
	for e := s.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}
