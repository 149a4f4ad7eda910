package web

import (
	"net/http"
)

type readOnlyRequest struct {
	ReadOnly bool `json:"readOnly"`
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.viewWith(w, r, sess, sess.Table.Undo())
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.viewWith(w, r, sess, sess.Table.Redo())
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.viewWith(w, r, sess, sess.Table.ClearHistory())
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	n, err := sess.Table.PurgeDeleted()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{tableView: viewOf(sess), Affected: n})
}

func (s *Server) handleReadOnly(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var req readOnlyRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess.Table.SetReadOnly(req.ReadOnly)
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.Table.ClearError()
	writeJSON(w, http.StatusOK, viewOf(sess))
}
