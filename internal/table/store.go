package table

import (
	"github.com/JonMunkholm/gridedit/internal/clone"
)

// Row is one record in the edited collection.
type Row = map[string]any

const (
	// FieldDeleted is the soft-delete marker. It is part of the row's data.
	FieldDeleted = "deleted"

	// fieldNew marks a row added but not yet saved. It never leaves the package.
	fieldNew = "__gridedit_new"
)

// RowStore owns the canonical ordered rows. It has no notion of events or
// history; the Table sequences those around each mutation.
type RowStore struct {
	rows   []Row
	cloner *clone.Cloner
}

// NewRowStore returns an empty store that clones through c.
func NewRowStore(c *clone.Cloner) *RowStore {
	if c == nil {
		c = clone.Default()
	}
	return &RowStore{cloner: c}
}

// SetAll replaces the collection with a deep copy of rows. Input that is
// not a sequence yields an empty collection; sequence elements that are not
// mappings become empty rows so positions are preserved.
func (s *RowStore) SetAll(rows any) {
	s.rows = s.coerce(rows)
}

func (s *RowStore) coerce(rows any) []Row {
	var items []any
	switch v := rows.(type) {
	case []Row:
		items = make([]any, len(v))
		for i, r := range v {
			items[i] = r
		}
	case []any:
		items = v
	default:
		return []Row{}
	}

	copied, ok := s.cloner.Clone(items).([]any)
	if !ok {
		return []Row{}
	}
	out := make([]Row, len(copied))
	for i, item := range copied {
		r, ok := item.(map[string]any)
		if !ok || r == nil {
			r = Row{}
		}
		out[i] = r
	}
	return out
}

// All returns a deep copy of every row with package-internal markers removed.
func (s *RowStore) All() []Row {
	out := clone.Of(s.cloner, s.rows)
	if out == nil {
		return []Row{}
	}
	for _, r := range out {
		delete(r, fieldNew)
	}
	return out
}

// Len returns the number of rows, deleted ones included.
func (s *RowStore) Len() int {
	return len(s.rows)
}

// InRange reports whether i addresses a row.
func (s *RowStore) InRange(i int) bool {
	return i >= 0 && i < len(s.rows)
}

// at returns the live row at i. Callers must not let it escape.
func (s *RowStore) at(i int) Row {
	return s.rows[i]
}

// Get returns a deep copy of row i.
func (s *RowStore) Get(i int) (Row, bool) {
	if !s.InRange(i) {
		return nil, false
	}
	r := clone.Of(s.cloner, s.rows[i])
	delete(r, fieldNew)
	return r, true
}

// replace swaps row i for r without cloning.
func (s *RowStore) replace(i int, r Row) {
	s.rows[i] = r
}

// append adds r without cloning and returns its index.
func (s *RowStore) append(r Row) int {
	s.rows = append(s.rows, r)
	return len(s.rows) - 1
}

// remove deletes row i, shifting later rows down.
func (s *RowStore) remove(i int) {
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
}

// move takes the row at from and reinserts it at to. Both must be in range.
func (s *RowStore) move(from, to int) {
	if from == to {
		return
	}
	r := s.rows[from]
	s.rows = append(s.rows[:from], s.rows[from+1:]...)
	s.rows = append(s.rows[:to], append([]Row{r}, s.rows[to:]...)...)
}

// snapshot returns the copy recorded in history. The new-row marker only
// belongs to an open AddRow session, so it is stripped: a restored row is
// an ordinary committed row.
func (s *RowStore) snapshot() []Row {
	return s.All()
}

// restore installs a deep copy of rows.
func (s *RowStore) restore(rows []Row) {
	out := clone.Of(s.cloner, rows)
	if out == nil {
		out = []Row{}
	}
	s.rows = out
}

// IsDeleted reports whether row i carries the soft-delete marker.
func (s *RowStore) IsDeleted(i int) bool {
	if !s.InRange(i) {
		return false
	}
	return isDeleted(s.rows[i])
}

func isDeleted(r Row) bool {
	d, _ := r[FieldDeleted].(bool)
	return d
}

func isNew(r Row) bool {
	n, _ := r[fieldNew].(bool)
	return n
}
