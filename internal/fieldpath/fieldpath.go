// Package fieldpath reads and writes dot-separated paths such as
// "address.city" inside nested string-keyed maps.
package fieldpath

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPath is returned for a path with no segments.
var ErrEmptyPath = errors.New("fieldpath: empty path")

// Split returns the segments of path. Empty segments are rejected.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("fieldpath: empty segment in %q", path)
		}
	}
	return parts, nil
}

// Get returns the value at path and whether every segment was present.
func Get(m map[string]any, path string) (any, bool) {
	parts, err := Split(path)
	if err != nil {
		return nil, false
	}
	var cur any = m
	for _, p := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set assigns value at path, creating intermediate maps as needed.
// An intermediate segment holding a non-map value is an error.
func Set(m map[string]any, path string, value any) error {
	if m == nil {
		return fmt.Errorf("fieldpath: set %q on nil map", path)
	}
	parts, err := Split(path)
	if err != nil {
		return err
	}
	node := m
	for _, p := range parts[:len(parts)-1] {
		next, exists := node[p]
		if !exists || next == nil {
			child := make(map[string]any)
			node[p] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("fieldpath: segment %q of %q is %T, not a map", p, path, next)
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
	return nil
}

// Join builds a path from segments.
func Join(parts ...string) string {
	return strings.Join(parts, ".")
}
