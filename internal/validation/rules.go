package validation

// rules.go defines the closed set of field rules.
//
// Each rule is its own type so evaluation in the engine is an exhaustive
// type switch. Rules carry their own parameters, which also feed the
// {min}/{max} placeholders in localized messages.

import (
	"context"
	"regexp"
	"sort"
	"strconv"
)

// RuleKind names a rule. The names double as keys in message tables.
type RuleKind string

const (
	KindRequired  RuleKind = "required"
	KindMinLength RuleKind = "minLength"
	KindMaxLength RuleKind = "maxLength"
	KindPattern   RuleKind = "pattern"
	KindMin       RuleKind = "min"
	KindMax       RuleKind = "max"
	KindEmail     RuleKind = "email"
	KindURL       RuleKind = "url"
	KindCustom    RuleKind = "custom"
	KindAsync     RuleKind = "async"
)

// Rule is one constraint on a field value.
type Rule interface {
	Kind() RuleKind
	placeholders() map[string]string
}

// Required fails for missing, nil and empty-string values.
type Required struct{}

// MinLength fails when the string form of the value has fewer than N characters.
type MinLength struct{ N int }

// MaxLength fails when the string form of the value has more than N characters.
type MaxLength struct{ N int }

// Pattern fails when the string form of the value does not match Re.
type Pattern struct{ Re *regexp.Regexp }

// Min fails when the numeric value is below N.
type Min struct{ N float64 }

// Max fails when the numeric value is above N.
type Max struct{ N float64 }

// Email fails when the value is not syntactically an email address.
type Email struct{}

// URL fails when the value is not an absolute http or https URL.
type URL struct{}

// CustomFunc reports whether value is acceptable. A non-nil error marks the
// validator itself as broken rather than the value as invalid.
type CustomFunc func(value any) (bool, error)

// Custom runs a caller-supplied synchronous check.
type Custom struct {
	Name string
	Fn   CustomFunc
}

// AsyncFunc is a check that may block. Implementations should return
// promptly once ctx is done.
type AsyncFunc func(ctx context.Context, value any) (bool, error)

// Async runs a caller-supplied check off the calling goroutine.
type Async struct {
	Name string
	Fn   AsyncFunc
}

func (Required) Kind() RuleKind  { return KindRequired }
func (MinLength) Kind() RuleKind { return KindMinLength }
func (MaxLength) Kind() RuleKind { return KindMaxLength }
func (Pattern) Kind() RuleKind   { return KindPattern }
func (Min) Kind() RuleKind       { return KindMin }
func (Max) Kind() RuleKind       { return KindMax }
func (Email) Kind() RuleKind     { return KindEmail }
func (URL) Kind() RuleKind       { return KindURL }
func (Custom) Kind() RuleKind    { return KindCustom }
func (Async) Kind() RuleKind     { return KindAsync }

func (Required) placeholders() map[string]string { return nil }
func (r MinLength) placeholders() map[string]string {
	return map[string]string{"min": strconv.Itoa(r.N)}
}
func (r MaxLength) placeholders() map[string]string {
	return map[string]string{"max": strconv.Itoa(r.N)}
}
func (Pattern) placeholders() map[string]string { return nil }
func (r Min) placeholders() map[string]string {
	return map[string]string{"min": formatNumber(r.N)}
}
func (r Max) placeholders() map[string]string {
	return map[string]string{"max": formatNumber(r.N)}
}
func (Email) placeholders() map[string]string  { return nil }
func (URL) placeholders() map[string]string    { return nil }
func (Custom) placeholders() map[string]string { return nil }
func (Async) placeholders() map[string]string  { return nil }

// Schema maps a field path to the rules that apply to it.
type Schema map[string][]Rule

// Fields returns the schema's field paths in sorted order.
func (s Schema) Fields() []string {
	fields := make([]string, 0, len(s))
	for f := range s {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// HasAsync reports whether any field carries an async rule.
func (s Schema) HasAsync() bool {
	for _, rules := range s {
		for _, r := range rules {
			if _, ok := r.(Async); ok {
				return true
			}
		}
	}
	return false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
