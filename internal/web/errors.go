package web

// errors.go maps engine and request errors to API responses.
//
// Every error answer carries a stable code for support reference:
//
//	TBL001-TBL099  refused table operations (read-only, editing, range)
//	SES001-SES099  table session lookup and limits
//	REQ001-REQ099  malformed requests
//	ERR000         anything unexpected
//
// The technical error is logged with the request ID; clients receive the
// mapped message and action.

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/gridedit/internal/fieldpath"
	"github.com/JonMunkholm/gridedit/internal/logging"
	"github.com/JonMunkholm/gridedit/internal/sessions"
	"github.com/JonMunkholm/gridedit/internal/table"
)

var (
	errSessionNotFound = errors.New("table session not found")
	errFieldNotFound   = errors.New("field not set on row")
)

// UserMessage is the client-facing description of an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type errorMapping struct {
	target error
	status int
	msg    UserMessage
}

var errorMappings = []errorMapping{
	{table.ErrReadOnly, http.StatusConflict, UserMessage{
		"The table is read-only", "Turn off read-only mode before editing", "TBL001"}},
	{table.ErrNotEditing, http.StatusConflict, UserMessage{
		"No row is being edited", "Start editing a row first", "TBL002"}},
	{table.ErrEditInProgress, http.StatusConflict, UserMessage{
		"Another row is being edited", "Save or cancel the open edit first", "TBL003"}},
	{table.ErrRowOutOfRange, http.StatusNotFound, UserMessage{
		"That row does not exist", "Reload the table and try again", "TBL004"}},
	{table.ErrVetoed, http.StatusConflict, UserMessage{
		"The edit was refused", "", "TBL005"}},
	{table.ErrInvalidRow, http.StatusUnprocessableEntity, UserMessage{
		"The row has validation errors", "Fix the highlighted fields and save again", "TBL006"}},
	{table.ErrNothingToUndo, http.StatusConflict, UserMessage{
		"Nothing to undo", "", "TBL007"}},
	{table.ErrNothingToRedo, http.StatusConflict, UserMessage{
		"Nothing to redo", "", "TBL008"}},
	{table.ErrReservedField, http.StatusBadRequest, UserMessage{
		"That field name is reserved", "Use a different field name", "TBL009"}},
	{table.ErrClosed, http.StatusGone, UserMessage{
		"The table has been closed", "Create a new table", "TBL010"}},
	{fieldpath.ErrEmptyPath, http.StatusBadRequest, UserMessage{
		"Field path is empty", "Name the field to change, e.g. address.city", "TBL012"}},
	{errFieldNotFound, http.StatusNotFound, UserMessage{
		"That field is not set on the row", "Check the field path", "TBL013"}},
	{errSessionNotFound, http.StatusNotFound, UserMessage{
		"Table not found", "It may have expired; create a new table", "SES001"}},
	{sessions.ErrLimitReached, http.StatusServiceUnavailable, UserMessage{
		"Too many open tables", "Please try again in a few minutes", "SES002"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again",
	Code:    "ERR000",
}

// requestError is a client mistake whose text is safe to return.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string) error { return &requestError{msg: msg} }

func badRequestf(err error, format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...), err: err}
}

// mapError resolves err to a status, a message and optional details.
func mapError(err error) (int, UserMessage, any) {
	var moveErr *table.MoveError
	if errors.As(err, &moveErr) {
		return http.StatusConflict, UserMessage{
			Message: moveErr.Message,
			Action:  "Finish editing or leave read-only mode, then move the row",
			Code:    "TBL011",
		}, moveErr
	}

	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, UserMessage{
			Message: reqErr.Error(),
			Action:  "Check the request body and parameters",
			Code:    "REQ001",
		}, nil
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.msg, nil
		}
	}
	return http.StatusInternalServerError, defaultMessage, nil
}

// respondError logs err and answers in the client's format. HTML view
// requests get an error fragment; everything else gets JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorDetails(w, r, err, nil)
}

// respondErrorDetails is respondError with an explicit details payload,
// used for validation results.
func (s *Server) respondErrorDetails(w http.ResponseWriter, r *http.Request, err error, details any) {
	status, msg, mapped := mapError(err)
	if details == nil {
		details = mapped
	}

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= 500 {
		logger.Error("request error", args...)
	} else {
		logger.Debug("request refused", args...)
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = errorFragment(msg).Render(r.Context(), w)
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Details: details,
	})
}

// wantsHTML reports whether the client asked for a page fragment.
func wantsHTML(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/tables/")
}
