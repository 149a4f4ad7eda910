package table

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/gridedit/internal/clone"
	"github.com/JonMunkholm/gridedit/internal/fieldpath"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

// editSession is the Editing(index) state. A nil session is Idle.
type editSession struct {
	id       uuid.UUID
	index    int
	isNew    bool
	snapshot Row
	runner   *validation.AsyncRunner
	errors   validation.Result
	timers   map[string]*time.Timer
}

// EditState is a point-in-time view of the edit state machine.
type EditState struct {
	Editing bool   `json:"editing"`
	Index   int    `json:"index"`
	Session string `json:"session,omitempty"`
}

// State reports whether a row is being edited. Index is -1 when idle.
func (t *Table) State() EditState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit == nil {
		return EditState{Index: -1}
	}
	return EditState{Editing: true, Index: t.edit.index, Session: t.edit.id.String()}
}

// StartEdit opens an edit session on row i.
func (t *Table) StartEdit(i int) error {
	t.mu.Lock()
	defer t.unlock()
	return t.startEdit(i)
}

func (t *Table) startEdit(i int) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	if !t.store.InRange(i) {
		return ErrRowOutOfRange
	}
	if !t.approve(BeforeToggle{Index: i, Editing: true, Action: ActionEdit}) {
		return ErrVetoed
	}
	t.beginSession(i)
	return nil
}

// ToggleEdit saves row i if it is being edited and starts editing it when
// the table is idle.
func (t *Table) ToggleEdit(i int) error {
	t.mu.Lock()
	defer t.unlock()
	if t.edit != nil && t.edit.index == i {
		_, err := t.save()
		return err
	}
	return t.startEdit(i)
}

func (t *Table) beginSession(i int) {
	id := uuid.New()
	r := t.store.at(i)
	s := &editSession{
		id:       id,
		index:    i,
		isNew:    isNew(r),
		snapshot: clone.Of(t.cloner, r),
		errors:   validation.Result{},
		timers:   make(map[string]*time.Timer),
	}
	s.runner = validation.NewAsyncRunner(t.ctx, func(res validation.Resolution) {
		t.asyncResolved(id, res)
	}, t.logger).WithLimiter(t.limiter)
	t.edit = s

	t.logger.Debug("edit session started", "index", i, "session", id)
	t.emit(EventAfterToggleMode, ToggleMode{Index: i, Editing: true, Action: ActionEdit, Session: id.String()})
}

// endSession stops validation work owned by the session and returns to
// Idle. Resolutions still in flight find a different session and are
// dropped.
func (t *Table) endSession() {
	s := t.edit
	for _, tm := range s.timers {
		tm.Stop()
	}
	s.runner.Cancel()
	t.drain.Add(1)
	go func() {
		defer t.drain.Done()
		s.runner.Wait()
	}()
	t.edit = nil
	t.logger.Debug("edit session ended", "index", s.index, "session", s.id)
}

// SetField writes value at path into the row under edit. Validation of the
// affected fields is scheduled, not run inline, when a debounce is set.
func (t *Table) SetField(path string, value any) error {
	t.mu.Lock()
	defer t.unlock()
	switch {
	case t.closed:
		return ErrClosed
	case t.readOnly:
		return ErrReadOnly
	case t.edit == nil:
		return ErrNotEditing
	}
	if path == fieldNew {
		return ErrReservedField
	}
	if err := fieldpath.Set(t.store.at(t.edit.index), path, t.cloner.Clone(value)); err != nil {
		return err
	}
	t.scheduleValidation(path)
	return nil
}

// Field returns a deep copy of the value at path in row i. While row i is
// being edited this is the live, unsaved value.
func (t *Table) Field(i int, path string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.store.InRange(i) || path == fieldNew {
		return nil, false
	}
	v, ok := fieldpath.Get(t.store.at(i), path)
	if !ok {
		return nil, false
	}
	return t.cloner.Clone(v), true
}

// FieldErrors returns the latest errors recorded for path in the open
// session.
func (t *Table) FieldErrors(path string) []validation.ErrorDescriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit == nil {
		return nil
	}
	return clone.Of(t.cloner, t.edit.errors[path])
}

// Save validates the row under edit and, if it passes, commits it. An
// invalid row stays in edit mode and the returned error is ErrInvalidRow.
func (t *Table) Save() (validation.Result, error) {
	t.mu.Lock()
	defer t.unlock()
	return t.save()
}

func (t *Table) save() (validation.Result, error) {
	switch {
	case t.closed:
		return nil, ErrClosed
	case t.readOnly:
		return nil, ErrReadOnly
	case t.edit == nil:
		return nil, ErrNotEditing
	}

	s := t.edit
	row := t.store.at(s.index)
	res := validation.Result{}
	if t.schema != nil {
		res = t.engine.ValidateRowAsync(row, t.schema, s.runner)
		for _, field := range t.schema.Fields() {
			t.record(s, field, res[field])
		}
	}
	if !res.Valid() {
		t.logger.Debug("save blocked by validation", "index", s.index, "fields", len(res))
		return res, ErrInvalidRow
	}

	delete(row, fieldNew)
	t.endSession()
	t.commit()
	t.emit(EventAfterToggleMode, ToggleMode{Index: s.index, Editing: false, Action: ActionSave, Session: s.id.String()})
	return res, nil
}

// Cancel discards the edit. The row is restored from its snapshot, or
// removed if it was added by AddRow and never saved.
func (t *Table) Cancel() error {
	t.mu.Lock()
	defer t.unlock()
	switch {
	case t.closed:
		return ErrClosed
	case t.readOnly:
		return ErrReadOnly
	case t.edit == nil:
		return ErrNotEditing
	}
	if !t.approve(BeforeToggle{Index: t.edit.index, Editing: false, Action: ActionCancel}) {
		return ErrVetoed
	}

	s := t.edit
	t.endSession()
	if s.isNew {
		t.store.remove(s.index)
		if t.sel.DropFrom(s.index) {
			t.selectionChanged()
		}
		t.commit()
	} else {
		t.store.replace(s.index, s.snapshot)
	}
	t.emit(EventAfterToggleMode, ToggleMode{Index: s.index, Editing: false, Action: ActionCancel, Session: s.id.String()})
	return nil
}

// scheduleValidation validates every schema field that path touches,
// either now or once per field after the debounce delay. Edits landing
// inside the delay are coalesced; the timer reads the value current when
// it fires. Caller holds mu.
func (t *Table) scheduleValidation(path string) {
	s := t.edit
	for _, field := range affectedFields(t.schema, path) {
		if t.debounce <= 0 {
			t.validateField(s, field)
			continue
		}
		if _, pending := s.timers[field]; pending {
			continue
		}
		id := s.id
		s.timers[field] = time.AfterFunc(t.debounce, func() {
			t.debounced(id, field)
		})
	}
}

func (t *Table) debounced(id uuid.UUID, field string) {
	t.mu.Lock()
	defer t.unlock()
	s := t.edit
	if s == nil || s.id != id {
		return
	}
	delete(s.timers, field)
	t.validateField(s, field)
}

func (t *Table) asyncResolved(id uuid.UUID, res validation.Resolution) {
	t.mu.Lock()
	defer t.unlock()
	s := t.edit
	if t.closed || s == nil || s.id != id {
		return
	}
	t.validateField(s, res.Field)
}

func (t *Table) validateField(s *editSession, field string) {
	rules, ok := t.schema[field]
	if !ok {
		return
	}
	errs := t.engine.ValidateFieldAsync(t.store.at(s.index), field, rules, s.runner)
	t.record(s, field, errs)
}

// record stores a field's errors and notifies listeners. Validator defects
// additionally raise validationfailed.
func (t *Table) record(s *editSession, field string, errs []validation.ErrorDescriptor) {
	if len(errs) == 0 {
		delete(s.errors, field)
	} else {
		s.errors[field] = errs
	}
	for _, e := range errs {
		if e.IsDefect() {
			t.emit(EventValidationFailed, ValidationFailed{Field: field, Index: s.index, Message: e.Cause})
		}
	}
	if errs == nil {
		errs = []validation.ErrorDescriptor{}
	}
	t.emit(EventValidationChanged, ValidationChanged{
		Index:  s.index,
		Field:  field,
		Errors: clone.Of(t.cloner, errs),
	})
}

// affectedFields returns the schema fields whose value may change when
// path is written: the field itself, fields nested below it and fields it
// is nested in.
func affectedFields(schema validation.Schema, path string) []string {
	var out []string
	for _, field := range schema.Fields() {
		if field == path ||
			strings.HasPrefix(field, path+".") ||
			strings.HasPrefix(path, field+".") {
			out = append(out, field)
		}
	}
	return out
}
