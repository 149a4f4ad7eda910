package validation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FieldSpec is the document form of a field's rules, as written in YAML or
// JSON schema files. Custom and Async name functions in a Registry.
type FieldSpec struct {
	Required  bool     `yaml:"required,omitempty" json:"required,omitempty"`
	MinLength *int     `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength *int     `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Min       *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Email     bool     `yaml:"email,omitempty" json:"email,omitempty"`
	URL       bool     `yaml:"url,omitempty" json:"url,omitempty"`
	Custom    string   `yaml:"custom,omitempty" json:"custom,omitempty"`
	Async     string   `yaml:"async,omitempty" json:"async,omitempty"`
}

// Registry holds named custom and async validators that schema documents
// refer to.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]CustomFunc
	async  map[string]AsyncFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		custom: make(map[string]CustomFunc),
		async:  make(map[string]AsyncFunc),
	}
}

// RegisterCustom adds a synchronous validator under name.
// Panics if the name is already taken.
func (r *Registry) RegisterCustom(name string, fn CustomFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.custom[name]; exists {
		panic(fmt.Sprintf("custom validator already registered: %s", name))
	}
	r.custom[name] = fn
}

// RegisterAsync adds an async validator under name.
// Panics if the name is already taken.
func (r *Registry) RegisterAsync(name string, fn AsyncFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.async[name]; exists {
		panic(fmt.Sprintf("async validator already registered: %s", name))
	}
	r.async[name] = fn
}

// Names returns the registered validator names, custom first, each sorted.
func (r *Registry) Names() (custom, async []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := range r.custom {
		custom = append(custom, n)
	}
	for n := range r.async {
		async = append(async, n)
	}
	sort.Strings(custom)
	sort.Strings(async)
	return custom, async
}

func (r *Registry) lookupCustom(name string) (CustomFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.custom[name]
	return fn, ok
}

func (r *Registry) lookupAsync(name string) (AsyncFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.async[name]
	return fn, ok
}

// DecodeSchema parses a YAML (or JSON) document mapping field paths to
// FieldSpecs.
func DecodeSchema(data []byte, reg *Registry) (Schema, error) {
	var doc map[string]FieldSpec
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return Build(doc, reg)
}

// Build converts FieldSpecs into a Schema. All problems are reported
// together.
func Build(doc map[string]FieldSpec, reg *Registry) (Schema, error) {
	schema := make(Schema, len(doc))
	var errs []string

	fields := make([]string, 0, len(doc))
	for f := range doc {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		rules, err := doc[field].rules(reg)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
			continue
		}
		if len(rules) > 0 {
			schema[field] = rules
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid schema:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return schema, nil
}

// rules expands s into rules in the fixed evaluation order.
func (s FieldSpec) rules(reg *Registry) ([]Rule, error) {
	var rules []Rule
	var errs []error

	if s.Required {
		rules = append(rules, Required{})
	}
	if s.MinLength != nil {
		if *s.MinLength < 0 {
			errs = append(errs, errors.New("minLength must be non-negative"))
		}
		rules = append(rules, MinLength{N: *s.MinLength})
	}
	if s.MaxLength != nil {
		if *s.MaxLength < 0 {
			errs = append(errs, errors.New("maxLength must be non-negative"))
		}
		rules = append(rules, MaxLength{N: *s.MaxLength})
	}
	if s.MinLength != nil && s.MaxLength != nil && *s.MinLength > *s.MaxLength {
		errs = append(errs, fmt.Errorf("minLength (%d) exceeds maxLength (%d)", *s.MinLength, *s.MaxLength))
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern: %w", err))
		} else {
			rules = append(rules, Pattern{Re: re})
		}
	}
	if s.Min != nil {
		rules = append(rules, Min{N: *s.Min})
	}
	if s.Max != nil {
		rules = append(rules, Max{N: *s.Max})
	}
	if s.Email {
		rules = append(rules, Email{})
	}
	if s.URL {
		rules = append(rules, URL{})
	}
	if s.Custom != "" {
		fn, ok := reg.lookupCustom(s.Custom)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown custom validator %q", s.Custom))
		} else {
			rules = append(rules, Custom{Name: s.Custom, Fn: fn})
		}
	}
	if s.Async != "" {
		fn, ok := reg.lookupAsync(s.Async)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown async validator %q", s.Async))
		} else {
			rules = append(rules, Async{Name: s.Async, Fn: fn})
		}
	}

	return rules, errors.Join(errs...)
}
