// Package table implements the state engine of an editable data table:
// the row collection, undo history, selection, the single-row edit session
// and row reordering. Every mutation is serialized by the Table and
// reported to listeners as ordered events.
package table

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/gridedit/internal/clone"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

// DefaultName prefixes form field names when Options.Name is empty.
const DefaultName = "rows"

// Options configures a Table. The zero value is usable.
type Options struct {
	// Name prefixes form encoding keys: "<Name>[<i>].<path>".
	Name string

	Schema validation.Schema
	Engine *validation.Engine
	Cloner *clone.Cloner

	// NewRow builds rows for AddRow when no factory is passed.
	NewRow func() Row

	MaxHistory int

	// Debounce delays per-field validation during edits. Zero validates
	// on every SetField call.
	Debounce time.Duration

	ReadOnly bool

	// AsyncLimiter, when set, bounds async validators across every table
	// sharing it.
	AsyncLimiter *validation.Limiter

	// Context bounds async validators. Defaults to context.Background.
	Context context.Context
	Logger  *slog.Logger
	Clock   func() time.Time
}

type listenerEntry struct {
	id int
	fn Listener
}

type vetoEntry struct {
	id int
	fn Vetoer
}

// Table is safe for concurrent use. Listeners are invoked one event at a
// time in emission order, never while the table is locked, so they may call
// back into the Table.
type Table struct {
	mu sync.Mutex

	name     string
	store    *RowStore
	history  *History
	sel      *Selection
	schema   validation.Schema
	engine   *validation.Engine
	cloner   *clone.Cloner
	newRow   func() Row
	debounce time.Duration
	readOnly bool
	limiter  *validation.Limiter
	ctx      context.Context
	logger   *slog.Logger
	now      func() time.Time

	edit *editSession

	listeners []listenerEntry
	vetoers   []vetoEntry
	nextID    int
	queue     []Event
	seq       uint64
	flushing  bool

	renderErr error
	closed    bool
	drain     sync.WaitGroup
}

// New creates an empty table.
func New(opts Options) *Table {
	t := &Table{
		name:     opts.Name,
		schema:   opts.Schema,
		engine:   opts.Engine,
		cloner:   opts.Cloner,
		newRow:   opts.NewRow,
		debounce: opts.Debounce,
		readOnly: opts.ReadOnly,
		limiter:  opts.AsyncLimiter,
		ctx:      opts.Context,
		logger:   opts.Logger,
		now:      opts.Clock,
	}
	if t.name == "" {
		t.name = DefaultName
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.cloner == nil {
		t.cloner = clone.New(clone.Options{Logger: t.logger})
	}
	if t.engine == nil {
		t.engine = validation.NewEngine(nil, t.logger)
	}
	if t.newRow == nil {
		t.newRow = func() Row { return Row{} }
	}
	if t.ctx == nil {
		t.ctx = context.Background()
	}
	if t.now == nil {
		t.now = time.Now
	}
	t.store = NewRowStore(t.cloner)
	t.history = NewHistory(opts.MaxHistory)
	t.sel = newSelection()
	return t
}

// Name returns the form encoding prefix.
func (t *Table) Name() string { return t.name }

// Schema returns the validation schema. It must not be modified.
func (t *Table) Schema() validation.Schema { return t.schema }

// Engine returns the validation engine.
func (t *Table) Engine() *validation.Engine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.engine
}

// SetMessages overrides validation messages for this table only.
func (t *Table) SetMessages(m validation.Messages) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.engine = t.engine.WithLocalizer(t.engine.Localizer().WithOverrides(m))
}

// ---- event dispatch ----

// Subscribe registers fn for every event and returns a function that
// removes it.
func (t *Table) Subscribe(fn Listener) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.listeners = slices.DeleteFunc(t.listeners, func(e listenerEntry) bool { return e.id == id })
	}
}

// OnBeforeToggle registers a vetoer for edit-mode transitions.
func (t *Table) OnBeforeToggle(fn Vetoer) (remove func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.vetoers = append(t.vetoers, vetoEntry{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.vetoers = slices.DeleteFunc(t.vetoers, func(e vetoEntry) bool { return e.id == id })
	}
}

// emit queues an event. Caller holds mu.
func (t *Table) emit(typ EventType, payload any) {
	t.seq++
	t.queue = append(t.queue, Event{
		Seq:       t.seq,
		Type:      typ,
		Payload:   payload,
		Timestamp: t.now(),
	})
}

// unlock releases mu and delivers queued events. If another call is already
// delivering, the events are left for it so order is kept.
func (t *Table) unlock() {
	if t.flushing {
		t.mu.Unlock()
		return
	}
	t.flushing = true
	for len(t.queue) > 0 {
		batch := t.queue
		t.queue = nil
		listeners := slices.Clone(t.listeners)
		t.mu.Unlock()
		for _, ev := range batch {
			for _, l := range listeners {
				t.deliver(l.fn, ev)
			}
		}
		t.mu.Lock()
	}
	t.flushing = false
	t.mu.Unlock()
}

func (t *Table) deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event listener panicked",
				"event", ev.Type,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn(ev)
}

// approve asks vetoers about a transition. Caller holds mu.
func (t *Table) approve(bt BeforeToggle) bool {
	for _, v := range t.vetoers {
		if !t.ask(v.fn, bt) {
			t.logger.Debug("edit transition vetoed",
				"index", bt.Index,
				"action", bt.Action,
			)
			return false
		}
	}
	t.emit(EventBeforeToggleMode, bt)
	return true
}

func (t *Table) ask(fn Vetoer, bt BeforeToggle) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("before-toggle handler panicked", "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return fn(bt)
}

// ---- mutation helpers, caller holds mu ----

// commit emits datachanged and records the new state in history. Listeners
// run only after unlock, so they always observe a state history already has.
func (t *Table) commit() {
	t.history.Push(t.store.snapshot())
	t.emit(EventDataChanged, DataChanged{Data: t.store.All()})
}

func (t *Table) selectionChanged() {
	t.emit(EventSelectionChanged, SelectionChanged{SelectedIndices: t.sel.Indices()})
}

func (t *Table) guardWrite() error {
	switch {
	case t.closed:
		return ErrClosed
	case t.readOnly:
		return ErrReadOnly
	case t.edit != nil:
		return ErrEditInProgress
	}
	return nil
}

// ---- collection ----

// SetData replaces the collection with a deep copy of rows. An active edit
// session is discarded and the selection cleared.
func (t *Table) SetData(rows any) error {
	t.mu.Lock()
	defer t.unlock()
	if t.closed {
		return ErrClosed
	}
	t.replaceAll(rows)
	return nil
}

func (t *Table) replaceAll(rows any) {
	if t.edit != nil {
		idx := t.edit.index
		t.endSession()
		t.emit(EventAfterToggleMode, ToggleMode{Index: idx, Editing: false, Action: ActionReset})
	}
	t.store.SetAll(rows)
	if t.sel.Clear() {
		t.selectionChanged()
	}
	t.commit()
}

// Data returns a deep copy of the collection.
func (t *Table) Data() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.All()
}

// Len returns the row count, soft-deleted rows included.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Len()
}

// Row returns a deep copy of row i.
func (t *Table) Row(i int) (Row, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Get(i)
}

// IsDeleted reports whether row i is soft-deleted.
func (t *Table) IsDeleted(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.IsDeleted(i)
}

// AddRow appends a row built by factory, or Options.NewRow when factory is
// nil, and opens an edit session on it. Cancelling that session removes
// the row again.
func (t *Table) AddRow(factory func() Row) (int, error) {
	t.mu.Lock()
	defer t.unlock()
	if err := t.guardWrite(); err != nil {
		return -1, err
	}
	if factory == nil {
		factory = t.newRow
	}
	idx := t.store.Len()
	if !t.approve(BeforeToggle{Index: idx, Editing: true, Action: ActionEdit}) {
		return -1, ErrVetoed
	}

	r := clone.Of(t.cloner, factory())
	if r == nil {
		r = Row{}
	}
	r[fieldNew] = true
	t.store.append(r)
	t.commit()
	t.beginSession(idx)
	return idx, nil
}

// DeleteRow soft-deletes row i. Deleting an already deleted row is a no-op
// that still notifies listeners.
func (t *Table) DeleteRow(i int) error {
	return t.setDeleted(i, true)
}

// RestoreRow clears the soft-delete marker on row i.
func (t *Table) RestoreRow(i int) error {
	return t.setDeleted(i, false)
}

func (t *Table) setDeleted(i int, deleted bool) error {
	t.mu.Lock()
	defer t.unlock()
	if err := t.guardWrite(); err != nil {
		return err
	}
	if !t.store.InRange(i) {
		return ErrRowOutOfRange
	}
	r := t.store.at(i)
	if isDeleted(r) == deleted {
		t.emit(EventDataChanged, DataChanged{Data: t.store.All()})
		return nil
	}
	if deleted {
		r[FieldDeleted] = true
	} else {
		delete(r, FieldDeleted)
	}
	t.commit()
	return nil
}

// PurgeDeleted removes soft-deleted rows for good and returns how many
// were removed.
func (t *Table) PurgeDeleted() (int, error) {
	t.mu.Lock()
	defer t.unlock()
	if err := t.guardWrite(); err != nil {
		return 0, err
	}
	removed := 0
	for i := t.store.Len() - 1; i >= 0; i-- {
		if isDeleted(t.store.at(i)) {
			t.store.remove(i)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if t.sel.Clear() {
		t.selectionChanged()
	}
	t.commit()
	return removed, nil
}

// ---- history ----

// Undo restores the previous committed state.
func (t *Table) Undo() error {
	return t.travel(t.history.Undo, EventUndo, ErrNothingToUndo)
}

// Redo re-applies the most recently undone state.
func (t *Table) Redo() error {
	return t.travel(t.history.Redo, EventRedo, ErrNothingToRedo)
}

func (t *Table) travel(step func() ([]Row, bool), typ EventType, none error) error {
	t.mu.Lock()
	defer t.unlock()
	if err := t.guardWrite(); err != nil {
		return err
	}
	state, ok := step()
	if !ok {
		return none
	}
	t.store.restore(state)
	if t.sel.Clear() {
		t.selectionChanged()
	}
	data := t.store.All()
	t.emit(EventDataChanged, DataChanged{Data: data})
	t.emit(typ, HistoryApplied{Data: t.store.All()})
	return nil
}

func (t *Table) CanUndo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.readOnly && t.history.CanUndo()
}

func (t *Table) CanRedo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.readOnly && t.history.CanRedo()
}

// ClearHistory drops every undo and redo snapshot.
func (t *Table) ClearHistory() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readOnly {
		return ErrReadOnly
	}
	t.history.Clear()
	return nil
}

// HistoryLen returns the number of snapshots on the undo stack.
func (t *Table) HistoryLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Len()
}

// ---- mode ----

// SetReadOnly toggles read-only mode. An open edit session survives but
// cannot be saved, cancelled or edited until read-only is lifted.
func (t *Table) SetReadOnly(ro bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readOnly = ro
}

func (t *Table) ReadOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readOnly
}

// ---- render errors ----

// ReportRenderError records a presentation failure and emits rendererror.
func (t *Table) ReportRenderError(err error, context string) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.unlock()
	t.renderErr = err
	t.logger.Error("render failed", "error", err, "context", context)
	t.emit(EventRenderError, RenderError{Error: err.Error(), Context: context})
}

func (t *Table) HasError() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderErr != nil
}

func (t *Table) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderErr
}

func (t *Table) ClearError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renderErr = nil
}

// ---- validation ----

// Validation returns the current result for row i. For the row under edit
// this includes async outcomes known so far.
func (t *Table) Validation(i int) (validation.Result, error) {
	t.mu.Lock()
	defer t.unlock()
	if !t.store.InRange(i) {
		return nil, ErrRowOutOfRange
	}
	return t.validateRow(i), nil
}

// CheckValidity reports whether every row that is not soft-deleted passes
// validation. Pending async checks count as failures.
func (t *Table) CheckValidity() bool {
	t.mu.Lock()
	defer t.unlock()
	for i := 0; i < t.store.Len(); i++ {
		if isDeleted(t.store.at(i)) {
			continue
		}
		if !t.validateRow(i).Valid() {
			return false
		}
	}
	return true
}

// ValidateAll returns results for every invalid row that is not
// soft-deleted, keyed by index.
func (t *Table) ValidateAll() map[int]validation.Result {
	t.mu.Lock()
	defer t.unlock()
	out := make(map[int]validation.Result)
	for i := 0; i < t.store.Len(); i++ {
		if isDeleted(t.store.at(i)) {
			continue
		}
		if res := t.validateRow(i); !res.Valid() {
			out[i] = res
		}
	}
	return out
}

// validateRow evaluates row i and raises validationfailed for every
// validator defect. Caller holds mu and releases it through unlock.
func (t *Table) validateRow(i int) validation.Result {
	if t.schema == nil {
		return validation.Result{}
	}
	var res validation.Result
	if t.edit != nil && t.edit.index == i {
		res = t.engine.ValidateRowAsync(t.store.at(i), t.schema, t.edit.runner)
	} else {
		res = t.engine.ValidateRow(t.store.at(i), t.schema)
	}
	defects := res.Defects()
	for _, field := range slices.Sorted(maps.Keys(defects)) {
		for _, e := range defects[field] {
			t.emit(EventValidationFailed, ValidationFailed{Field: field, Index: i, Message: e.Cause})
		}
	}
	return res
}

// ---- lifecycle ----

// Close ends any edit session, drops listeners and waits for in-flight
// async validators. Later mutations return ErrClosed.
func (t *Table) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.edit != nil {
		t.endSession()
	}
	t.closed = true
	t.listeners = nil
	t.vetoers = nil
	t.queue = nil
	t.mu.Unlock()
	t.drain.Wait()
}
