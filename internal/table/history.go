package table

// DefaultMaxHistory bounds the undo stack when no size is configured.
const DefaultMaxHistory = 50

// History keeps snapshots of the collection. The top of past is always the
// current committed state, so undo needs at least two entries.
type History struct {
	past   [][]Row
	future [][]Row
	max    int
}

// NewHistory returns a history holding at most max snapshots. Non-positive
// values use DefaultMaxHistory.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{max: max}
}

// Push records snapshot as the new current state and clears redo.
// The caller hands over ownership of snapshot.
func (h *History) Push(snapshot []Row) {
	h.past = append(h.past, snapshot)
	if over := len(h.past) - h.max; over > 0 {
		clear(h.past[:over])
		h.past = h.past[over:]
	}
	h.future = nil
}

// Undo moves the current state to the redo stack and returns the state
// that becomes current. The returned slice is owned by History.
func (h *History) Undo() ([]Row, bool) {
	if len(h.past) < 2 {
		return nil, false
	}
	top := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, top)
	return h.past[len(h.past)-1], true
}

// Redo re-applies the most recently undone state.
func (h *History) Redo() ([]Row, bool) {
	if len(h.future) == 0 {
		return nil, false
	}
	next := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, next)
	return next, true
}

func (h *History) CanUndo() bool { return len(h.past) >= 2 }
func (h *History) CanRedo() bool { return len(h.future) > 0 }

// Len returns the number of snapshots on the undo stack.
func (h *History) Len() int { return len(h.past) }

// Max returns the configured bound.
func (h *History) Max() int { return h.max }

// Clear drops every snapshot.
func (h *History) Clear() {
	h.past = nil
	h.future = nil
}
