package web

import (
	"net/http"

	"github.com/JonMunkholm/gridedit/internal/table"
)

type selectionRequest struct {
	Op    string `json:"op"`
	Index int    `json:"index"`
}

type selectionResponse struct {
	Selected []int       `json:"selected"`
	Data     []table.Row `json:"data,omitempty"`
}

type bulkUpdateRequest struct {
	Fields table.Row `json:"fields"`
}

type countResponse struct {
	tableView
	Affected int `json:"affected"`
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	t := sessionFrom(r.Context()).Table
	writeJSON(w, http.StatusOK, selectionResponse{Selected: t.SelectedIndices(), Data: t.SelectedData()})
}

// handleSelection applies op: select, deselect, toggle, all or clear.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	t := sessionFrom(r.Context()).Table
	var req selectionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var err error
	switch req.Op {
	case "select":
		err = t.Select(req.Index)
	case "deselect":
		t.Deselect(req.Index)
	case "toggle":
		_, err = t.ToggleSelection(req.Index)
	case "all":
		t.SelectAll()
	case "clear":
		t.ClearSelection()
	default:
		err = badRequest("op must be one of select, deselect, toggle, all, clear")
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionResponse{Selected: t.SelectedIndices()})
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var req bulkUpdateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.Fields) == 0 {
		s.respondError(w, r, badRequest("fields must name at least one field"))
		return
	}
	n, err := sess.Table.BulkUpdate(req.Fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{tableView: viewOf(sess), Affected: n})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	n, err := sess.Table.DeleteSelected()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{tableView: viewOf(sess), Affected: n})
}
