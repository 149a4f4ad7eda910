package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/JonMunkholm/gridedit/internal/logging"
	"github.com/JonMunkholm/gridedit/internal/sessions"
	"github.com/JonMunkholm/gridedit/internal/table"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

// createTableRequest is the body of POST /api/tables. Schema is a schema
// document in the format validation.DecodeSchema reads.
type createTableRequest struct {
	Name        string              `json:"name"`
	Schema      json.RawMessage     `json:"schema"`
	Rows        []any               `json:"rows"`
	ReadOnly    bool                `json:"readOnly"`
	HistorySize int                 `json:"historySize"`
	Locale      string              `json:"locale"`
	Messages    validation.Messages `json:"messages"`
}

// tableView is the JSON projection of a table returned by most routes.
type tableView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Data       []table.Row     `json:"data"`
	Edit       table.EditState `json:"edit"`
	Selected   []int           `json:"selected"`
	ReadOnly   bool            `json:"readOnly"`
	CanUndo    bool            `json:"canUndo"`
	CanRedo    bool            `json:"canRedo"`
	HistoryLen int             `json:"historyLen"`
	HasError   bool            `json:"hasError"`
	LastError  string          `json:"lastError,omitempty"`
}

func viewOf(sess *sessions.Session) tableView {
	t := sess.Table
	v := tableView{
		ID:         sess.ID.String(),
		Name:       t.Name(),
		Data:       t.Data(),
		Edit:       t.State(),
		Selected:   t.SelectedIndices(),
		ReadOnly:   t.ReadOnly(),
		CanUndo:    t.CanUndo(),
		CanRedo:    t.CanRedo(),
		HistoryLen: t.HistoryLen(),
		HasError:   t.HasError(),
	}
	if err := t.LastError(); err != nil {
		v.LastError = err.Error()
	}
	return v
}

// decodeJSON reads a JSON body of at most the configured size into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return badRequestf(err, "request body exceeds %d bytes", maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequestf(err, "invalid JSON body")
	}
	return nil
}

// localizer picks messages for the explicit locale, then Accept-Language,
// then the configured default.
func (s *Server) localizer(r *http.Request, locale string) *validation.Localizer {
	if locale == "" {
		locale = r.Header.Get("Accept-Language")
	}
	if strings.TrimSpace(locale) == "" {
		locale = s.cfg.Engine.Locale
	}
	return s.catalog.LocalizerFor(locale)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var schema validation.Schema
	if raw := strings.TrimSpace(string(req.Schema)); raw != "" && raw != "null" {
		decoded, err := validation.DecodeSchema(req.Schema, s.validators)
		if err != nil {
			s.respondError(w, r, badRequestf(err, "invalid schema"))
			return
		}
		schema = decoded
	}

	history := req.HistorySize
	if history <= 0 {
		history = s.cfg.Engine.HistorySize
	}

	sess, err := s.sessions.Create(table.Options{
		Name:         req.Name,
		Schema:       schema,
		Engine:       validation.NewEngine(s.localizer(r, req.Locale), s.logger),
		Cloner:       s.cloner,
		MaxHistory:   history,
		Debounce:     s.cfg.Engine.Debounce,
		ReadOnly:     req.ReadOnly,
		AsyncLimiter: s.limiter,
		Context:      s.ctx,
		Logger:       s.logger,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if len(req.Messages) > 0 {
		sess.Table.SetMessages(req.Messages)
	}
	if err := sess.Table.SetData(req.Rows); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.ForTable(r.Context(), sess.ID.String()).Info("table created",
		"rows", sess.Table.Len(),
		"fields", len(schema),
		"read_only", req.ReadOnly,
	)
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(sessionFrom(r.Context())))
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.sessions.Delete(sess.ID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r.Context()).Table.Data())
}

// handleSetData accepts any JSON value. Non-arrays reset the table to
// empty, as SetData does for non-sequence input.
func (s *Server) handleSetData(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var rows any
	if err := s.decodeJSON(w, r, &rows); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := sess.Table.SetData(rows); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleGetJSON(w http.ResponseWriter, r *http.Request) {
	out, err := sessionFrom(r.Context()).Table.JSON()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, out)
}

// handleSetJSON takes the raw body as the JSON document. A malformed
// document still resets the table, and the parse error is reported.
func (s *Server) handleSetJSON(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		s.respondError(w, r, badRequestf(err, "could not read body"))
		return
	}
	if err := sess.Table.SetJSON(string(body)); err != nil {
		if errors.Is(err, table.ErrClosed) {
			s.respondError(w, r, err)
			return
		}
		s.respondErrorDetails(w, r, badRequestf(err, "malformed rows JSON; table was reset"), viewOf(sess))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form := sessionFrom(r.Context()).Table.Form()
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, form)
		return
	}
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	_, _ = io.WriteString(w, form.Encode())
}

// handleSetForm replaces the rows from an urlencoded body in the table's
// form encoding, the same shape GET /form returns.
func (s *Server) handleSetForm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/x-www-form-urlencoded" {
		s.respondError(w, r, badRequest("body must be application/x-www-form-urlencoded"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, badRequestf(err, "invalid form body"))
		return
	}
	if err := sess.Table.SetForm(r.PostForm); err != nil {
		if errors.Is(err, table.ErrClosed) {
			s.respondError(w, r, err)
			return
		}
		s.respondError(w, r, badRequestf(err, "invalid form rows"))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleValidateAll(w http.ResponseWriter, r *http.Request) {
	t := sessionFrom(r.Context()).Table
	invalid := t.ValidateAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   len(invalid) == 0,
		"invalid": invalid,
	})
}
