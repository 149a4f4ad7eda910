// Package clone duplicates arbitrary structured values without sharing
// mutable substructure with the source.
//
// A single Clone call keeps an identity-keyed map of every map, slice and
// pointer it has already copied, so reference cycles in the input reappear
// as the same cycles in the output instead of recursing forever. Two policy
// limits bound the work done per call:
//
//   - MaxDepth: below this nesting level subtrees are copied one level deep
//     and not recursed further.
//   - MaxProperties: once this many map entries, slice elements and struct
//     fields have been visited, remaining siblings are omitted.
//
// Clone never panics. If the reflective copy fails the cloner falls back to a
// shallow copy of the top-level value, and if even that fails it returns the
// input unchanged.
package clone

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"
)

const (
	// DefaultMaxDepth is the nesting level past which subtrees are copied shallowly.
	DefaultMaxDepth = 50

	// DefaultMaxProperties is the total number of entries visited per call
	// before remaining siblings are dropped.
	DefaultMaxProperties = 10000
)

// Limit names a policy limit reported in diagnostics.
type Limit string

const (
	LimitDepth      Limit = "max_depth"
	LimitProperties Limit = "max_properties"
)

// Options configures a Cloner. Zero values select the defaults.
type Options struct {
	MaxDepth      int
	MaxProperties int

	// Diagnostics enables a warning log record the first time a call hits
	// each limit, and whenever the fallback path is taken.
	Diagnostics bool
	Logger      *slog.Logger
}

// Cloner performs deep copies under fixed limits. It is safe for concurrent
// use; each Clone call carries its own visited map.
type Cloner struct {
	maxDepth      int
	maxProperties int
	diagnostics   bool
	logger        *slog.Logger
}

// New creates a Cloner from opts.
func New(opts Options) *Cloner {
	c := &Cloner{
		maxDepth:      opts.MaxDepth,
		maxProperties: opts.MaxProperties,
		diagnostics:   opts.Diagnostics,
		logger:        opts.Logger,
	}
	if c.maxDepth <= 0 {
		c.maxDepth = DefaultMaxDepth
	}
	if c.maxProperties <= 0 {
		c.maxProperties = DefaultMaxProperties
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

var defaultCloner = New(Options{})

// Default returns a Cloner with the default limits and diagnostics off.
func Default() *Cloner {
	return defaultCloner
}

// MaxDepth returns the configured depth limit.
func (c *Cloner) MaxDepth() int { return c.maxDepth }

// MaxProperties returns the configured breadth limit.
func (c *Cloner) MaxProperties() int { return c.maxProperties }

// Clone returns a deep copy of v.
func (c *Cloner) Clone(v any) (out any) {
	if v == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			c.warn("clone: deep copy failed, falling back to shallow copy", "panic", fmt.Sprint(r))
			out = c.shallowFallback(v)
		}
	}()

	s := &state{
		cloner:  c,
		visited: make(map[visitKey]reflect.Value),
	}
	return s.copy(reflect.ValueOf(v), 0).Interface()
}

// Of deep-copies v and returns it with its static type. When the copy cannot
// be expressed as T the input is returned.
func Of[T any](c *Cloner, v T) T {
	out, ok := c.Clone(v).(T)
	if !ok {
		return v
	}
	return out
}

// shallowFallback copies only the top-level container. The original value
// is returned when even that fails.
func (c *Cloner) shallowFallback(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			c.warn("clone: shallow fallback failed, returning original value", "panic", fmt.Sprint(r))
			out = v
		}
	}()
	return shallow(reflect.ValueOf(v)).Interface()
}

func (c *Cloner) warn(msg string, args ...any) {
	if !c.diagnostics {
		return
	}
	c.logger.Warn(msg, args...)
}

// visitKey identifies a reference-bearing value by type and address.
// Slices also include their length, since two headers over the same
// backing array address distinct values.
type visitKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type state struct {
	cloner  *Cloner
	visited map[visitKey]reflect.Value
	count   int

	depthWarned   bool
	breadthWarned bool
	exhausted     bool
}

var timeType = reflect.TypeOf(time.Time{})

// tick accounts for one visited property. It reports false once the
// breadth limit is exceeded.
func (s *state) tick() bool {
	if s.exhausted {
		return false
	}
	s.count++
	if s.count > s.cloner.maxProperties {
		s.exhausted = true
		if !s.breadthWarned {
			s.breadthWarned = true
			s.cloner.warn("clone: property limit reached, omitting remaining values",
				"limit", LimitProperties, "max_properties", s.cloner.maxProperties)
		}
		return false
	}
	return true
}

func (s *state) depthExceeded(depth int) bool {
	if depth < s.cloner.maxDepth {
		return false
	}
	if !s.depthWarned {
		s.depthWarned = true
		s.cloner.warn("clone: depth limit reached, copying subtree shallowly",
			"limit", LimitDepth, "max_depth", s.cloner.maxDepth)
	}
	return true
}

func (s *state) copy(v reflect.Value, depth int) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(s.copy(v.Elem(), depth))
		return out

	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		key := visitKey{typ: v.Type(), ptr: v.Pointer()}
		if seen, ok := s.visited[key]; ok {
			return seen
		}
		out := reflect.New(v.Type().Elem())
		s.visited[key] = out
		if s.depthExceeded(depth) {
			out.Elem().Set(v.Elem())
			return out
		}
		out.Elem().Set(s.copy(v.Elem(), depth+1))
		return out

	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		key := visitKey{typ: v.Type(), ptr: v.Pointer()}
		if seen, ok := s.visited[key]; ok {
			return seen
		}
		if s.depthExceeded(depth) {
			out := shallow(v)
			s.visited[key] = out
			return out
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		s.visited[key] = out
		for _, k := range sortedKeys(v) {
			if !s.tick() {
				break
			}
			out.SetMapIndex(k, s.copy(v.MapIndex(k), depth+1))
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		key := visitKey{typ: v.Type(), ptr: v.Pointer(), len: v.Len()}
		if seen, ok := s.visited[key]; ok {
			return seen
		}
		if s.depthExceeded(depth) {
			out := shallow(v)
			s.visited[key] = out
			return out
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		s.visited[key] = out
		n := 0
		for ; n < v.Len(); n++ {
			if !s.tick() {
				break
			}
			out.Index(n).Set(s.copy(v.Index(n), depth+1))
		}
		if n < v.Len() {
			return out.Slice(0, n)
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		if s.depthExceeded(depth) {
			out.Set(v)
			return out
		}
		for i := 0; i < v.Len(); i++ {
			if !s.tick() {
				break
			}
			out.Index(i).Set(s.copy(v.Index(i), depth+1))
		}
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		if v.Type() == timeType || s.depthExceeded(depth) {
			return out
		}
		// Unexported fields keep the shallow copy made by Set above.
		for i := 0; i < v.NumField(); i++ {
			f := out.Field(i)
			if !f.CanSet() {
				continue
			}
			if !s.tick() {
				break
			}
			f.Set(s.copy(v.Field(i), depth+1))
		}
		return out

	default:
		// Scalars, strings, funcs and channels are copied by value.
		return v
	}
}

// shallow copies a single level of v.
func shallow(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(out, v)
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(v.Elem())
		return out
	default:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out
	}
}

// sortedKeys returns map keys in a stable order so that breadth truncation
// drops the same entries on every call.
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	if v.Type().Key().Kind() == reflect.String {
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].String() < keys[j].String()
		})
	}
	return keys
}
