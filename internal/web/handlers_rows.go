package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gridedit/internal/sessions"
	"github.com/JonMunkholm/gridedit/internal/table"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

type addRowRequest struct {
	Row table.Row `json:"row"`
}

type moveRequest struct {
	To int `json:"to"`
}

// rowResponse is a table view plus the row the request acted on.
type rowResponse struct {
	tableView
	Index int `json:"index"`
}

// handleAddRow appends a row and opens an edit session on it. The body is
// optional; without a row the table's default factory is used.
func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req addRowRequest
	if err := s.decodeJSON(w, r, &req); err != nil && !isEmptyBody(err) {
		s.respondError(w, r, err)
		return
	}

	var factory func() table.Row
	if req.Row != nil {
		factory = func() table.Row { return req.Row }
	}
	i, err := sess.Table.AddRow(factory)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rowResponse{tableView: viewOf(sess), Index: i})
}

// handleRowAction runs one of the single-row operations named in the URL.
func (s *Server) handleRowAction(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	i, err := rowIndex(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	action := chi.URLParam(r, "action")
	op, ok := rowActions[action]
	if !ok {
		s.respondError(w, r, badRequest("unknown row action "+action))
		return
	}
	if err := op(sess.Table, i); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rowResponse{tableView: viewOf(sess), Index: i})
}

var rowActions = map[string]func(*table.Table, int) error{
	"edit":      (*table.Table).StartEdit,
	"toggle":    (*table.Table).ToggleEdit,
	"delete":    (*table.Table).DeleteRow,
	"restore":   (*table.Table).RestoreRow,
	"move-up":   (*table.Table).MoveUp,
	"move-down": (*table.Table).MoveDown,
}

func (s *Server) handleMoveRow(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	i, err := rowIndex(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req moveRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := sess.Table.MoveTo(i, req.To); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type fieldResponse struct {
	Index  int                          `json:"index"`
	Path   string                       `json:"path"`
	Value  any                          `json:"value"`
	Errors []validation.ErrorDescriptor `json:"errors,omitempty"`
}

// handleGetField reads one bound value. Errors are included while the
// row is under edit.
func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	i, err := rowIndex(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, r, badRequest("path query parameter is required"))
		return
	}
	if _, ok := sess.Table.Row(i); !ok {
		s.respondError(w, r, table.ErrRowOutOfRange)
		return
	}

	v, ok := sess.Table.Field(i, path)
	if !ok {
		s.respondError(w, r, errFieldNotFound)
		return
	}
	resp := fieldResponse{Index: i, Path: path, Value: v}
	if st := sess.Table.State(); st.Editing && st.Index == i {
		resp.Errors = sess.Table.FieldErrors(path)
	}
	writeJSON(w, http.StatusOK, resp)
}

func isEmptyBody(err error) bool {
	var reqErr *requestError
	return errors.As(err, &reqErr) && reqErr.msg == "request body is empty"
}

// viewWith is a helper for handlers that only need the refreshed view.
func (s *Server) viewWith(w http.ResponseWriter, r *http.Request, sess *sessions.Session, err error) {
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}
