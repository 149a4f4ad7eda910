package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/gridedit/internal/sessions"
	"github.com/JonMunkholm/gridedit/internal/table"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

// handleTableView renders the table as an HTML fragment. A render failure
// is recorded on the table (hasError, lastError and a rendererror event)
// and answered with an error fragment instead of a half-written table.
func (s *Server) handleTableView(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var buf bytes.Buffer
	if err := tableFragment(sess).Render(r.Context(), &buf); err != nil {
		sess.Table.ReportRenderError(err, "table view")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_ = errorFragment(UserMessage{
			Message: "The table could not be displayed",
			Action:  "Fix the offending value, then clear the error",
			Code:    "TBL014",
		}).Render(r.Context(), w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// columns lists schema fields first, then any other keys found in rows,
// each group sorted.
func columns(schema validation.Schema, rows []table.Row) []string {
	cols := schema.Fields()
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	var extra []string
	for _, row := range rows {
		for k := range row {
			if k != table.FieldDeleted && !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	slices.Sort(extra)
	return append(cols, extra...)
}

// cellText formats a bound value for display. Nested values are shown as
// JSON.
func cellText(v any) (string, error) {
	switch v.(type) {
	case nil, string, bool, int, int64, float64, json.Number:
		return validation.Stringify(v), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("format cell: %w", err)
	}
	return string(b), nil
}

func tableFragment(sess *sessions.Session) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t := sess.Table
		rows := t.Data()
		edit := t.State()
		cols := columns(t.Schema(), rows)

		p := &htmlWriter{w: w}
		p.printf(`<div class="gridedit" id="table-%s" data-readonly="%t">`, sess.ID, t.ReadOnly())
		p.print(`<table><thead><tr><th>#</th>`)
		for _, c := range cols {
			p.printf(`<th>%s</th>`, templ.EscapeString(c))
		}
		p.print(`<th></th></tr></thead><tbody>`)

		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			deleted := t.IsDeleted(i)
			class := "row"
			if deleted {
				class += " deleted"
			}
			if edit.Editing && edit.Index == i {
				class += " editing"
			}
			if t.IsSelected(i) {
				class += " selected"
			}
			p.printf(`<tr class="%s" data-index="%d"><td>%d</td>`, class, i, i+1)
			for _, c := range cols {
				text, err := cellText(row[c])
				if err != nil {
					return fmt.Errorf("row %d field %s: %w", i, c, err)
				}
				p.printf(`<td data-field="%s">%s</td>`, templ.EscapeString(c), templ.EscapeString(text))
			}
			p.printf(`<td>%s</td></tr>`, rowStatus(deleted))
		}

		p.print(`</tbody></table>`)
		if t.HasError() {
			p.printf(`<p class="render-error">%s</p>`, templ.EscapeString(t.LastError().Error()))
		}
		p.print(`</div>`)
		return p.err
	})
}

func rowStatus(deleted bool) string {
	if deleted {
		return "deleted"
	}
	return ""
}

func errorFragment(msg UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.printf(`<div class="alert alert-error" role="alert" data-code="%s"><p>%s</p>`,
			templ.EscapeString(msg.Code), templ.EscapeString(msg.Message))
		if msg.Action != "" {
			p.printf(`<p class="action">%s</p>`, templ.EscapeString(msg.Action))
		}
		p.printf(`<small>Code: %s</small></div>`, templ.EscapeString(msg.Code))
		return p.err
	})
}

// htmlWriter keeps the first write error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) print(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *htmlWriter) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

