package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/gridedit/internal/table"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

type editFieldRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type editFieldResponse struct {
	Edit   table.EditState              `json:"edit"`
	Path   string                       `json:"path"`
	Errors []validation.ErrorDescriptor `json:"errors"`
}

// handleEditField writes one field of the row under edit. Errors reflect
// validation state at response time; with a debounce they may still
// change, and the event stream carries the final result.
func (s *Server) handleEditField(w http.ResponseWriter, r *http.Request) {
	t := sessionFrom(r.Context()).Table
	var req editFieldRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := t.SetField(req.Path, req.Value); err != nil {
		s.respondError(w, r, err)
		return
	}
	errs := t.FieldErrors(req.Path)
	if errs == nil {
		errs = []validation.ErrorDescriptor{}
	}
	writeJSON(w, http.StatusOK, editFieldResponse{Edit: t.State(), Path: req.Path, Errors: errs})
}

// handleEditSave answers 422 with the validation result when the row is
// invalid; the row stays in edit mode.
func (s *Server) handleEditSave(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	res, err := sess.Table.Save()
	if errors.Is(err, table.ErrInvalidRow) {
		s.respondErrorDetails(w, r, err, res)
		return
	}
	s.viewWith(w, r, sess, err)
}

func (s *Server) handleEditCancel(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.viewWith(w, r, sess, sess.Table.Cancel())
}
