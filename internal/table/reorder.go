package table

// MoveTo moves the row at from so that it ends up at to. A target outside
// the collection is clamped into range; the move still happens and a
// moveerror with ReasonInvalidTo reports the adjustment. Rejected moves
// emit moveerror and return it as a *MoveError.
func (t *Table) MoveTo(from, to int) error {
	t.mu.Lock()
	defer t.unlock()
	if t.closed {
		return ErrClosed
	}
	return t.moveTo(from, to)
}

// MoveUp swaps row i with the row above it. Row 0 stays put.
func (t *Table) MoveUp(i int) error {
	t.mu.Lock()
	defer t.unlock()
	if t.closed {
		return ErrClosed
	}
	if i == 0 && t.store.InRange(i) {
		return nil
	}
	return t.moveTo(i, i-1)
}

// MoveDown swaps row i with the row below it. The last row stays put.
func (t *Table) MoveDown(i int) error {
	t.mu.Lock()
	defer t.unlock()
	if t.closed {
		return ErrClosed
	}
	if i == t.store.Len()-1 && t.store.InRange(i) {
		return nil
	}
	return t.moveTo(i, i+1)
}

func (t *Table) moveTo(from, to int) error {
	n := t.store.Len()
	if !t.store.InRange(from) {
		return t.rejectMove(newMoveError(ReasonInvalidFrom, from, to, n, t.now()))
	}
	if t.edit != nil {
		return t.rejectMove(newMoveError(ReasonEditing, from, to, n, t.now()))
	}
	if t.readOnly {
		return t.rejectMove(newMoveError(ReasonReadOnly, from, to, n, t.now()))
	}

	target := min(max(to, 0), n-1)
	if target != to {
		e := clampedMoveError(from, to, target, t.now())
		t.logger.Debug("move target clamped", "from", from, "to", to, "clamped", target)
		t.emit(EventMoveError, e)
	}
	if target == from {
		return nil
	}

	t.store.move(from, target)
	if t.sel.DropRange(from, target) {
		t.selectionChanged()
	}
	t.commit()
	t.emit(EventReorder, Reorder{FromIndex: from, ToIndex: target})
	return nil
}

func (t *Table) rejectMove(e *MoveError) error {
	t.logger.Debug("move rejected", "reason", e.Reason, "from", e.FromIndex, "to", e.ToIndex)
	t.emit(EventMoveError, e)
	return e
}
