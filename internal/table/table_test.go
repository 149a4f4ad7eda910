package table

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects every event a table emits.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(tbl *Table) *recorder {
	r := &recorder{}
	tbl.Subscribe(r.add)
	return r
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) last(typ EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func people() []Row {
	return []Row{
		{"name": "Alice", "status": "active"},
		{"name": "Bob", "status": "active"},
		{"name": "Carol", "status": "active"},
	}
}

func TestSetData_RoundTrip(t *testing.T) {
	tbl := New(Options{})
	in := []Row{{"name": "Alice", "tags": []any{"a", "b"}, "address": map[string]any{"city": "Oslo"}}}

	require.NoError(t, tbl.SetData(in))
	out := tbl.Data()
	require.Equal(t, in, out)

	// Neither the input nor the output alias internal state.
	in[0]["name"] = "Mallory"
	out[0]["address"].(map[string]any)["city"] = "Nowhere"
	require.Equal(t, "Alice", tbl.Data()[0]["name"])
	require.Equal(t, "Oslo", tbl.Data()[0]["address"].(map[string]any)["city"])
}

func TestSetData_NonSequenceBecomesEmpty(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData(people()))

	require.NoError(t, tbl.SetData("not rows"))
	require.Empty(t, tbl.Data())
	require.NotNil(t, tbl.Data())

	require.NoError(t, tbl.SetData([]any{map[string]any{"name": "x"}, 42}))
	require.Equal(t, []Row{{"name": "x"}, {}}, tbl.Data())
}

func TestSetData_EmitsClonedSnapshot(t *testing.T) {
	tbl := New(Options{})
	rec := record(tbl)

	require.NoError(t, tbl.SetData(people()))
	ev, ok := rec.last(EventDataChanged)
	require.True(t, ok)
	payload := ev.Payload.(DataChanged)
	require.Len(t, payload.Data, 3)

	payload.Data[0]["name"] = "changed"
	require.Equal(t, "Alice", tbl.Data()[0]["name"])
}

func TestListenerSeesCommittedHistory(t *testing.T) {
	tbl := New(Options{})
	var seen []int
	tbl.Subscribe(func(ev Event) {
		if ev.Type == EventDataChanged {
			seen = append(seen, tbl.HistoryLen())
		}
	})

	require.NoError(t, tbl.SetData(people()))
	require.NoError(t, tbl.SetData(people()[:1]))
	require.Equal(t, []int{1, 2}, seen)
}

func TestListenerMayCallBack(t *testing.T) {
	tbl := New(Options{})
	rec := record(tbl)
	once := false
	tbl.Subscribe(func(ev Event) {
		if ev.Type == EventDataChanged && !once {
			once = true
			require.NoError(t, tbl.Select(0))
		}
	})

	require.NoError(t, tbl.SetData(people()))
	require.Equal(t, []EventType{EventDataChanged, EventSelectionChanged}, rec.types())
}

func TestEventsAreSequenced(t *testing.T) {
	tbl := New(Options{})
	rec := record(tbl)
	require.NoError(t, tbl.SetData(people()))
	require.NoError(t, tbl.Select(1))
	require.NoError(t, tbl.DeleteRow(2))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, ev := range rec.events {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestListenerPanicIsContained(t *testing.T) {
	tbl := New(Options{})
	tbl.Subscribe(func(Event) { panic("listener bug") })
	rec := record(tbl)

	require.NotPanics(t, func() { _ = tbl.SetData(people()) })
	require.Equal(t, 1, rec.count(EventDataChanged))
}

func TestUnsubscribe(t *testing.T) {
	tbl := New(Options{})
	n := 0
	unsub := tbl.Subscribe(func(Event) { n++ })
	require.NoError(t, tbl.SetData(people()))
	unsub()
	require.NoError(t, tbl.SetData(people()))
	require.Equal(t, 1, n)
}

func TestDeleteAndRestoreRow(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData(people()))
	rec := record(tbl)

	require.NoError(t, tbl.DeleteRow(1))
	require.True(t, tbl.IsDeleted(1))
	require.Equal(t, true, tbl.Data()[1][FieldDeleted])
	require.Equal(t, 2, tbl.HistoryLen())

	// Idempotent: notifies again but records nothing new.
	require.NoError(t, tbl.DeleteRow(1))
	require.Equal(t, 2, rec.count(EventDataChanged))
	require.Equal(t, 2, tbl.HistoryLen())

	require.NoError(t, tbl.RestoreRow(1))
	require.False(t, tbl.IsDeleted(1))
	require.NotContains(t, tbl.Data()[1], FieldDeleted)

	require.ErrorIs(t, tbl.DeleteRow(7), ErrRowOutOfRange)
}

func TestDeleteRow_RefusedWhileEditingOrReadOnly(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData(people()))
	require.NoError(t, tbl.StartEdit(0))
	require.ErrorIs(t, tbl.DeleteRow(2), ErrEditInProgress)
	require.NoError(t, tbl.Cancel())

	tbl.SetReadOnly(true)
	require.ErrorIs(t, tbl.DeleteRow(2), ErrReadOnly)
	require.False(t, tbl.IsDeleted(2))
}

func TestPurgeDeleted(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData(people()))
	require.NoError(t, tbl.DeleteRow(0))
	require.NoError(t, tbl.DeleteRow(2))

	n, err := tbl.PurgeDeleted()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []Row{{"name": "Bob", "status": "active"}}, tbl.Data())

	n, err = tbl.PurgeDeleted()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUndoRedo(t *testing.T) {
	tbl := New(Options{})
	rec := record(tbl)
	require.NoError(t, tbl.SetData([]Row{{"name": "Alice"}}))
	require.NoError(t, tbl.SetData([]Row{{"name": "Bob"}}))

	require.NoError(t, tbl.Undo())
	require.Equal(t, []Row{{"name": "Alice"}}, tbl.Data())
	ev, ok := rec.last(EventUndo)
	require.True(t, ok)
	require.Equal(t, []Row{{"name": "Alice"}}, ev.Payload.(HistoryApplied).Data)

	require.NoError(t, tbl.Redo())
	require.Equal(t, []Row{{"name": "Bob"}}, tbl.Data())
	require.Equal(t, 1, rec.count(EventRedo))

	require.ErrorIs(t, tbl.Redo(), ErrNothingToRedo)
}

func TestUndo_NeedsPriorState(t *testing.T) {
	tbl := New(Options{})
	require.ErrorIs(t, tbl.Undo(), ErrNothingToUndo)
	require.NoError(t, tbl.SetData(people()))
	require.ErrorIs(t, tbl.Undo(), ErrNothingToUndo)
	require.False(t, tbl.CanUndo())
}

func TestUndo_NewChangeClearsRedo(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData([]Row{{"v": "1"}}))
	require.NoError(t, tbl.SetData([]Row{{"v": "2"}}))
	require.NoError(t, tbl.Undo())
	require.True(t, tbl.CanRedo())

	require.NoError(t, tbl.SetData([]Row{{"v": "3"}}))
	require.False(t, tbl.CanRedo())
}

func TestHistoryBound(t *testing.T) {
	tbl := New(Options{MaxHistory: 3})
	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.SetData([]Row{{"v": i}}))
	}
	undos := 0
	for tbl.Undo() == nil {
		undos++
	}
	require.LessOrEqual(t, undos, 3)
	require.Equal(t, []Row{{"v": 2}}, tbl.Data())
	require.ErrorIs(t, tbl.Undo(), ErrNothingToUndo)
}

func TestHistory_RefusedWhenReadOnly(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData([]Row{{"v": "1"}}))
	require.NoError(t, tbl.SetData([]Row{{"v": "2"}}))
	tbl.SetReadOnly(true)

	require.ErrorIs(t, tbl.Undo(), ErrReadOnly)
	require.ErrorIs(t, tbl.ClearHistory(), ErrReadOnly)
	require.False(t, tbl.CanUndo())

	tbl.SetReadOnly(false)
	require.NoError(t, tbl.ClearHistory())
	require.Zero(t, tbl.HistoryLen())
}

func TestHistoryEntriesAreImmutable(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData([]Row{{"name": "Alice"}}))
	require.NoError(t, tbl.SetData([]Row{{"name": "Bob"}}))
	require.NoError(t, tbl.Undo())

	require.NoError(t, tbl.StartEdit(0))
	require.NoError(t, tbl.SetField("name", "Eve"))
	_, err := tbl.Save()
	require.NoError(t, err)

	require.NoError(t, tbl.Undo())
	require.Equal(t, []Row{{"name": "Alice"}}, tbl.Data())
}

func TestRenderErrorState(t *testing.T) {
	tbl := New(Options{})
	rec := record(tbl)
	require.False(t, tbl.HasError())

	tbl.ReportRenderError(errors.New("template exploded"), "row 3")
	require.True(t, tbl.HasError())
	require.EqualError(t, tbl.LastError(), "template exploded")
	ev, ok := rec.last(EventRenderError)
	require.True(t, ok)
	require.Equal(t, RenderError{Error: "template exploded", Context: "row 3"}, ev.Payload)

	// The engine keeps working.
	require.NoError(t, tbl.SetData(people()))

	tbl.ClearError()
	require.False(t, tbl.HasError())
	require.NoError(t, tbl.LastError())
}

func TestClose(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData(people()))
	require.NoError(t, tbl.StartEdit(0))
	n := 0
	tbl.Subscribe(func(Event) { n++ })

	tbl.Close()
	tbl.Close()
	require.ErrorIs(t, tbl.SetData(people()), ErrClosed)
	require.ErrorIs(t, tbl.StartEdit(1), ErrClosed)
	require.False(t, tbl.State().Editing)
	require.Zero(t, n)
}

func TestClockIsUsedForEvents(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tbl := New(Options{Clock: func() time.Time { return at }})
	rec := record(tbl)
	require.NoError(t, tbl.SetData(people()))
	ev, _ := rec.last(EventDataChanged)
	require.Equal(t, at, ev.Timestamp)
}

func TestConcurrentUse(t *testing.T) {
	tbl := New(Options{})
	require.NoError(t, tbl.SetData(people()))
	rec := record(tbl)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = tbl.Select(i % 3)
				_ = tbl.MoveTo(i%3, (i+g)%3)
				_ = tbl.StartEdit(g % 3)
				_ = tbl.SetField("note", i)
				_, _ = tbl.Save()
				tbl.Deselect(i % 3)
			}
		}(g)
	}
	wg.Wait()

	require.Len(t, tbl.Data(), 3)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, ev := range rec.events {
		require.Equal(t, uint64(i+2), ev.Seq, "events delivered in order")
	}
}
