package table

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/JonMunkholm/gridedit/internal/fieldpath"
	"github.com/JonMunkholm/gridedit/internal/validation"
)

// EncodeForm flattens rows into form values keyed "<name>[<i>].<path>".
// Nested maps contribute dotted paths; sequences are written as JSON. The
// new-row marker is never written and the delete marker only when set.
func EncodeForm(name string, rows []Row) url.Values {
	out := url.Values{}
	for i, r := range rows {
		prefix := fmt.Sprintf("%s[%d]", name, i)
		flatten(out, prefix, "", r)
	}
	return out
}

func flatten(out url.Values, prefix, path string, m map[string]any) {
	for k, v := range m {
		if path == "" {
			if k == fieldNew {
				continue
			}
			if k == FieldDeleted {
				if d, _ := v.(bool); !d {
					continue
				}
			}
		}
		p := k
		if path != "" {
			p = fieldpath.Join(path, k)
		}
		if child, ok := v.(map[string]any); ok {
			flatten(out, prefix, p, child)
			continue
		}
		out.Set(prefix+"."+p, formValue(v))
	}
}

func formValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format(time.RFC3339Nano)
	case []any, []map[string]any, []string:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return validation.Stringify(v)
	}
}

var formKey = regexp.MustCompile(`^(.+)\[(\d+)\]\.(.+)$`)

// DecodeForm rebuilds rows from values produced by EncodeForm. Keys for
// other names are ignored. Values stay strings, except "deleted" which is
// parsed as a boolean. Gaps in the indices become empty rows. An index
// can never exceed the number of keys, which bounds the result.
func DecodeForm(name string, values url.Values) ([]Row, error) {
	byIndex := map[int]Row{}
	maxIdx := -1
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		m := formKey.FindStringSubmatch(k)
		if m == nil || m[1] != name {
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("form key %q: %w", k, err)
		}
		if idx >= len(values) {
			return nil, fmt.Errorf("form key %q: row index %d exceeds %d keys", k, idx, len(values))
		}
		r, ok := byIndex[idx]
		if !ok {
			r = Row{}
			byIndex[idx] = r
		}
		var v any = values.Get(k)
		if m[3] == FieldDeleted {
			d, err := strconv.ParseBool(values.Get(k))
			if err != nil {
				return nil, fmt.Errorf("form key %q: %w", k, err)
			}
			v = d
		}
		if err := fieldpath.Set(r, m[3], v); err != nil {
			return nil, fmt.Errorf("form key %q: %w", k, err)
		}
		maxIdx = max(maxIdx, idx)
	}

	rows := make([]Row, maxIdx+1)
	for i := range rows {
		if r, ok := byIndex[i]; ok {
			rows[i] = r
		} else {
			rows[i] = Row{}
		}
	}
	return rows, nil
}

// SetForm replaces the collection with rows decoded from the table's form
// encoding. Nothing changes when the values do not decode.
func (t *Table) SetForm(values url.Values) error {
	rows, err := DecodeForm(t.name, values)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.unlock()
	if t.closed {
		return ErrClosed
	}
	t.replaceAll(rows)
	return nil
}

// Form returns the committed collection in form encoding.
func (t *Table) Form() url.Values {
	t.mu.Lock()
	defer t.mu.Unlock()
	return EncodeForm(t.name, t.store.All())
}

// JSON returns the collection as a JSON array.
func (t *Table) JSON() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, err := json.Marshal(t.store.All())
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return string(b), nil
}

// SetJSON replaces the collection from a JSON array. Malformed input
// resets the collection to empty; the parse error is still returned.
func (t *Table) SetJSON(s string) error {
	var rows []any
	parseErr := json.Unmarshal([]byte(s), &rows)
	if parseErr != nil {
		rows = nil
		t.logger.Warn("malformed row JSON, resetting table", "error", parseErr)
	}

	t.mu.Lock()
	defer t.unlock()
	if t.closed {
		return ErrClosed
	}
	if rows == nil {
		t.replaceAll([]Row{})
	} else {
		t.replaceAll(rows)
	}
	if parseErr != nil {
		return fmt.Errorf("decode rows: %w", parseErr)
	}
	return nil
}
