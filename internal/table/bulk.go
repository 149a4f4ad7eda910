package table

// Select adds row i to the selection.
func (t *Table) Select(i int) error {
	t.mu.Lock()
	defer t.unlock()
	if !t.store.InRange(i) {
		return ErrRowOutOfRange
	}
	if t.sel.Add(i) {
		t.selectionChanged()
	}
	return nil
}

// Deselect removes row i from the selection.
func (t *Table) Deselect(i int) {
	t.mu.Lock()
	defer t.unlock()
	if t.sel.Remove(i) {
		t.selectionChanged()
	}
}

// ToggleSelection flips row i's membership and returns the new state.
func (t *Table) ToggleSelection(i int) (bool, error) {
	t.mu.Lock()
	defer t.unlock()
	if !t.store.InRange(i) {
		return false, ErrRowOutOfRange
	}
	selected := !t.sel.Has(i)
	if selected {
		t.sel.Add(i)
	} else {
		t.sel.Remove(i)
	}
	t.selectionChanged()
	return selected, nil
}

func (t *Table) IsSelected(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sel.Has(i)
}

// SelectAll selects every row, soft-deleted ones included.
func (t *Table) SelectAll() {
	t.mu.Lock()
	defer t.unlock()
	if t.sel.Fill(t.store.Len()) {
		t.selectionChanged()
	}
}

func (t *Table) ClearSelection() {
	t.mu.Lock()
	defer t.unlock()
	if t.sel.Clear() {
		t.selectionChanged()
	}
}

// SelectedIndices returns the selection in ascending order.
func (t *Table) SelectedIndices() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sel.Indices()
}

// SelectedData returns deep copies of the selected rows in index order.
func (t *Table) SelectedData() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, 0, t.sel.Len())
	for _, i := range t.sel.Indices() {
		if r, ok := t.store.Get(i); ok {
			out = append(out, r)
		}
	}
	return out
}

// BulkUpdate shallow-merges partial into every selected row as one
// history entry. It returns the number of rows updated.
func (t *Table) BulkUpdate(partial Row) (int, error) {
	t.mu.Lock()
	defer t.unlock()
	if err := t.guardWrite(); err != nil {
		return 0, err
	}
	indices := t.sel.Indices()
	if len(indices) == 0 || len(partial) == 0 {
		return 0, nil
	}
	for _, i := range indices {
		r := t.store.at(i)
		for k, v := range partial {
			if k == fieldNew {
				continue
			}
			r[k] = t.cloner.Clone(v)
		}
	}
	t.commit()
	return len(indices), nil
}

// DeleteSelected soft-deletes every selected row and clears the
// selection. It returns the number of rows affected.
func (t *Table) DeleteSelected() (int, error) {
	t.mu.Lock()
	defer t.unlock()
	if err := t.guardWrite(); err != nil {
		return 0, err
	}
	indices := t.sel.Indices()
	if len(indices) == 0 {
		return 0, nil
	}
	for _, i := range indices {
		t.store.at(i)[FieldDeleted] = true
	}
	t.sel.Clear()
	t.selectionChanged()
	t.commit()
	return len(indices), nil
}

// MarkSelectedDeleted is DeleteSelected.
func (t *Table) MarkSelectedDeleted() (int, error) {
	return t.DeleteSelected()
}
