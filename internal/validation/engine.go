// Package validation evaluates declarative per-field rules against rows.
//
// Evaluation is exhaustive: every rule on a field runs and every failure is
// reported, so a field can carry several errors at once. Synchronous rules
// are checked inline. Async rules are delegated to an AsyncRunner that
// caches resolved results per value and reports in-flight checks as pending.
package validation

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/gridedit/internal/fieldpath"
)

// ErrorDescriptor is one failed rule on one field.
type ErrorDescriptor struct {
	Rule    RuleKind `json:"rule"`
	Message string   `json:"message"`

	// Cause is set when the validator itself failed (returned an error or
	// panicked) and holds the original error text.
	Cause string `json:"cause,omitempty"`
}

// IsDefect reports whether the descriptor came from a misbehaving validator.
func (d ErrorDescriptor) IsDefect() bool {
	return d.Cause != ""
}

// IsPending reports whether the descriptor marks an unresolved async rule.
func (d ErrorDescriptor) IsPending() bool {
	return d.Rule == MessagePending
}

// Result maps a field path to its errors. Fields without errors are absent.
type Result map[string][]ErrorDescriptor

// Valid reports whether no field has errors.
func (r Result) Valid() bool {
	return len(r) == 0
}

// Defects returns every descriptor raised by a broken validator, keyed by field.
func (r Result) Defects() map[string][]ErrorDescriptor {
	out := make(map[string][]ErrorDescriptor)
	for field, errs := range r {
		for _, e := range errs {
			if e.IsDefect() {
				out[field] = append(out[field], e)
			}
		}
	}
	return out
}

// Engine evaluates rules. It holds no per-row state and is safe for
// concurrent use.
type Engine struct {
	localizer *Localizer
	logger    *slog.Logger
}

// NewEngine creates an engine that renders messages through l. A nil
// localizer uses the built-in English messages.
func NewEngine(l *Localizer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{localizer: l, logger: logger}
}

// Localizer returns the engine's localizer.
func (e *Engine) Localizer() *Localizer {
	return e.localizer
}

// WithLocalizer returns a copy of e using l.
func (e *Engine) WithLocalizer(l *Localizer) *Engine {
	return &Engine{localizer: l, logger: e.logger}
}

// ValidateField checks the synchronous rules for path against row.
// Async rules are skipped; use ValidateFieldAsync to include them.
func (e *Engine) ValidateField(row map[string]any, path string, rules []Rule) []ErrorDescriptor {
	return e.ValidateFieldAsync(row, path, rules, nil)
}

// ValidateFieldAsync checks every rule for path. Async rules are resolved
// through runner; when runner is nil they are skipped.
func (e *Engine) ValidateFieldAsync(row map[string]any, path string, rules []Rule, runner *AsyncRunner) []ErrorDescriptor {
	value, _ := fieldpath.Get(row, path)

	var errs []ErrorDescriptor
	for _, rule := range rules {
		if d, failed := e.check(path, value, rule, runner); failed {
			errs = append(errs, d)
		}
	}
	return errs
}

// ValidateRow checks every field in schema against row, synchronously.
func (e *Engine) ValidateRow(row map[string]any, schema Schema) Result {
	return e.ValidateRowAsync(row, schema, nil)
}

// ValidateRowAsync checks every field in schema, resolving async rules
// through runner.
func (e *Engine) ValidateRowAsync(row map[string]any, schema Schema, runner *AsyncRunner) Result {
	result := make(Result)
	for _, field := range schema.Fields() {
		if errs := e.ValidateFieldAsync(row, field, schema[field], runner); len(errs) > 0 {
			result[field] = errs
		}
	}
	return result
}

func (e *Engine) fail(rule Rule) ErrorDescriptor {
	return ErrorDescriptor{
		Rule:    rule.Kind(),
		Message: e.localizer.Message(rule.Kind(), rule.placeholders()),
	}
}

// check evaluates one rule. The boolean is true when the rule failed.
func (e *Engine) check(path string, value any, rule Rule, runner *AsyncRunner) (ErrorDescriptor, bool) {
	switch r := rule.(type) {
	case Required:
		return e.fail(r), isEmpty(value)

	case MinLength:
		if isEmpty(value) {
			return ErrorDescriptor{}, false
		}
		return e.fail(r), utf8.RuneCountInString(Stringify(value)) < r.N

	case MaxLength:
		if isEmpty(value) {
			return ErrorDescriptor{}, false
		}
		return e.fail(r), utf8.RuneCountInString(Stringify(value)) > r.N

	case Pattern:
		if isEmpty(value) || r.Re == nil {
			return ErrorDescriptor{}, false
		}
		return e.fail(r), !r.Re.MatchString(Stringify(value))

	case Min:
		n, ok := toNumber(value)
		if !ok {
			return ErrorDescriptor{}, false
		}
		return e.fail(r), n < r.N

	case Max:
		n, ok := toNumber(value)
		if !ok {
			return ErrorDescriptor{}, false
		}
		return e.fail(r), n > r.N

	case Email:
		if isEmpty(value) {
			return ErrorDescriptor{}, false
		}
		return e.fail(r), !IsEmail(Stringify(value))

	case URL:
		if isEmpty(value) {
			return ErrorDescriptor{}, false
		}
		return e.fail(r), !IsURL(Stringify(value))

	case Custom:
		ok, err := runCustom(r.Fn, value)
		if err != nil {
			e.logger.Warn("custom validator failed",
				"field", path,
				"validator", r.Name,
				"error", err,
			)
			d := e.fail(r)
			d.Cause = err.Error()
			return d, true
		}
		return e.fail(r), !ok

	case Async:
		if runner == nil {
			return ErrorDescriptor{}, false
		}
		status := runner.Check(path, r, value)
		switch status.State {
		case AsyncPending:
			return ErrorDescriptor{
				Rule:    MessagePending,
				Message: e.localizer.Message(MessagePending, nil),
			}, true
		case AsyncFailed:
			d := e.fail(r)
			d.Cause = status.Err
			return d, true
		case AsyncInvalid:
			return e.fail(r), true
		default:
			return ErrorDescriptor{}, false
		}

	default:
		return ErrorDescriptor{}, false
	}
}

// runCustom calls fn, converting a panic into an error.
func runCustom(fn CustomFunc, value any) (ok bool, err error) {
	if fn == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(value)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail performs a conservative syntactic email check.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsURL reports whether s is an absolute http or https URL with a host.
func IsURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// Stringify converts a field value to the string form used by the length,
// pattern and format rules.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case *time.Time:
		return v == nil
	default:
		return false
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
