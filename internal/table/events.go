package table

import (
	"time"

	"github.com/JonMunkholm/gridedit/internal/validation"
)

// EventType names a notification emitted by a Table.
type EventType string

const (
	EventDataChanged       EventType = "datachanged"
	EventBeforeToggleMode  EventType = "beforetogglemode"
	EventAfterToggleMode   EventType = "aftertogglemode"
	EventReorder           EventType = "reorder"
	EventMoveError         EventType = "moveerror"
	EventSelectionChanged  EventType = "selectionchanged"
	EventUndo              EventType = "undo"
	EventRedo              EventType = "redo"
	EventValidationFailed  EventType = "validationfailed"
	EventValidationChanged EventType = "validationchanged"
	EventRenderError       EventType = "rendererror"
)

// Event is one notification. Seq increases by one per event emitted by the
// same Table and gives listeners a total order.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// DataChanged carries a snapshot of the committed collection.
type DataChanged struct {
	Data []Row `json:"data"`
}

// ToggleAction says which operation triggered an edit-mode transition.
type ToggleAction string

const (
	ActionEdit   ToggleAction = "edit"
	ActionSave   ToggleAction = "save"
	ActionCancel ToggleAction = "cancel"
	ActionReset  ToggleAction = "reset"
)

// BeforeToggle describes a pending edit-mode transition. Editing is the
// state the row would enter.
type BeforeToggle struct {
	Index   int          `json:"index"`
	Editing bool         `json:"editing"`
	Action  ToggleAction `json:"action"`
}

// ToggleMode reports a completed edit-mode transition.
type ToggleMode struct {
	Index   int          `json:"index"`
	Editing bool         `json:"editing"`
	Action  ToggleAction `json:"action"`
	Session string       `json:"session,omitempty"`
}

// Reorder reports a completed move.
type Reorder struct {
	FromIndex int `json:"fromIndex"`
	ToIndex   int `json:"toIndex"`
}

// SelectionChanged carries the selected indices in ascending order.
type SelectionChanged struct {
	SelectedIndices []int `json:"selectedIndices"`
}

// HistoryApplied is the payload of undo and redo events.
type HistoryApplied struct {
	Data []Row `json:"data"`
}

// ValidationFailed reports a validator that could not produce a verdict.
type ValidationFailed struct {
	Field   string `json:"field"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ValidationChanged asks the presentation layer to refresh one field's
// error display.
type ValidationChanged struct {
	Index  int                          `json:"index"`
	Field  string                       `json:"field"`
	Errors []validation.ErrorDescriptor `json:"errors"`
}

// RenderError reports a failure in the presentation layer.
type RenderError struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}

// Listener receives events after the operation that produced them has
// released the table.
type Listener func(Event)

// Vetoer is consulted synchronously before an edit-mode transition.
// Returning false cancels it. Vetoers run while the table is locked and
// must not call back into it.
type Vetoer func(BeforeToggle) bool
