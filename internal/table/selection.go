package table

import "sort"

// Selection is a set of row indices.
type Selection struct {
	set map[int]struct{}
}

func newSelection() *Selection {
	return &Selection{set: make(map[int]struct{})}
}

// Add inserts i and reports whether the set changed.
func (s *Selection) Add(i int) bool {
	if _, ok := s.set[i]; ok {
		return false
	}
	s.set[i] = struct{}{}
	return true
}

// Remove deletes i and reports whether the set changed.
func (s *Selection) Remove(i int) bool {
	if _, ok := s.set[i]; !ok {
		return false
	}
	delete(s.set, i)
	return true
}

func (s *Selection) Has(i int) bool {
	_, ok := s.set[i]
	return ok
}

func (s *Selection) Len() int { return len(s.set) }

// Fill selects 0..n-1 and reports whether the set changed.
func (s *Selection) Fill(n int) bool {
	changed := false
	for i := 0; i < n; i++ {
		if s.Add(i) {
			changed = true
		}
	}
	return changed
}

// Clear empties the set and reports whether it was non-empty.
func (s *Selection) Clear() bool {
	if len(s.set) == 0 {
		return false
	}
	clear(s.set)
	return true
}

// Indices returns the selected indices in ascending order.
func (s *Selection) Indices() []int {
	out := make([]int, 0, len(s.set))
	for i := range s.set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// DropFrom removes every index >= i. Used when the row at i is removed.
func (s *Selection) DropFrom(i int) bool {
	changed := false
	for idx := range s.set {
		if idx >= i {
			delete(s.set, idx)
			changed = true
		}
	}
	return changed
}

// DropRange removes every index in [lo, hi]. Used when a move shifts the
// rows in that span.
func (s *Selection) DropRange(lo, hi int) bool {
	if lo > hi {
		lo, hi = hi, lo
	}
	changed := false
	for idx := range s.set {
		if idx >= lo && idx <= hi {
			delete(s.set, idx)
			changed = true
		}
	}
	return changed
}
