package validation

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/JonMunkholm/gridedit/internal/clone"
)

// AsyncState is the resolution state of one async rule for one value.
type AsyncState int

const (
	AsyncValid AsyncState = iota
	AsyncInvalid
	AsyncPending
	AsyncFailed
)

func (s AsyncState) String() string {
	switch s {
	case AsyncValid:
		return "valid"
	case AsyncInvalid:
		return "invalid"
	case AsyncPending:
		return "pending"
	case AsyncFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AsyncStatus is returned by AsyncRunner.Check.
type AsyncStatus struct {
	State AsyncState
	Err   string // set for AsyncFailed
}

// Resolution describes a finished async check.
type Resolution struct {
	Field string
	Rule  string
	State AsyncState
	Err   string
}

type asyncKey struct {
	field string
	rule  string
}

type asyncEntry struct {
	fingerprint string
	state       AsyncState
	err         string
}

// AsyncRunner schedules async rules and remembers their results for the
// value they were run against. A result for a value that has since changed
// is discarded. Once the runner's context is done, results are dropped and
// onResolve is no longer called.
type AsyncRunner struct {
	ctx       context.Context
	cancel    context.CancelFunc
	onResolve func(Resolution)
	logger    *slog.Logger
	limiter   *Limiter

	mu      sync.Mutex
	entries map[asyncKey]*asyncEntry
	wg      sync.WaitGroup
}

// NewAsyncRunner creates a runner bound to parent. onResolve is called from
// the validator's goroutine after each accepted result and must not block
// on the runner.
func NewAsyncRunner(parent context.Context, onResolve func(Resolution), logger *slog.Logger) *AsyncRunner {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &AsyncRunner{
		ctx:       ctx,
		cancel:    cancel,
		onResolve: onResolve,
		logger:    logger,
		entries:   make(map[asyncKey]*asyncEntry),
	}
}

// WithLimiter makes every validator this runner starts take a slot from l
// first. Call it before the first Check.
func (r *AsyncRunner) WithLimiter(l *Limiter) *AsyncRunner {
	r.limiter = l
	return r
}

// Check returns the known outcome of rule for value, scheduling the rule if
// it has not run against this value yet.
func (r *AsyncRunner) Check(field string, rule Async, value any) AsyncStatus {
	if rule.Fn == nil {
		return AsyncStatus{State: AsyncValid}
	}
	fp := fingerprint(value)
	key := asyncKey{field: field, rule: rule.Name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok && e.fingerprint == fp {
		return AsyncStatus{State: e.state, Err: e.err}
	}
	r.entries[key] = &asyncEntry{fingerprint: fp, state: AsyncPending}
	if r.ctx.Err() != nil {
		return AsyncStatus{State: AsyncPending}
	}

	r.wg.Add(1)
	go r.run(key, fp, rule, clone.Default().Clone(value))
	return AsyncStatus{State: AsyncPending}
}

func (r *AsyncRunner) run(key asyncKey, fp string, rule Async, value any) {
	defer r.wg.Done()

	var ok bool
	var err error
	if r.limiter != nil {
		if err = r.limiter.Acquire(r.ctx); err == nil {
			ok, err = callAsync(r.ctx, rule.Fn, value)
			r.limiter.Release()
		}
	} else {
		ok, err = callAsync(r.ctx, rule.Fn, value)
	}

	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	e, exists := r.entries[key]
	if !exists || e.fingerprint != fp {
		// The field changed while this check was in flight.
		r.mu.Unlock()
		return
	}
	switch {
	case err != nil:
		e.state = AsyncFailed
		e.err = err.Error()
		r.logger.Warn("async validator failed",
			"field", key.field,
			"validator", key.rule,
			"error", err,
		)
	case ok:
		e.state = AsyncValid
	default:
		e.state = AsyncInvalid
	}
	res := Resolution{Field: key.field, Rule: key.rule, State: e.state, Err: e.err}
	r.mu.Unlock()

	if r.onResolve != nil {
		r.onResolve(res)
	}
}

// Pending returns the number of checks still in flight.
func (r *AsyncRunner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.state == AsyncPending {
			n++
		}
	}
	return n
}

// Cancel stops accepting results. In-flight validators see their context
// cancelled.
func (r *AsyncRunner) Cancel() {
	r.cancel()
}

// Done reports whether the runner has been cancelled.
func (r *AsyncRunner) Done() bool {
	return r.ctx.Err() != nil
}

// Wait blocks until every scheduled validator has returned.
func (r *AsyncRunner) Wait() {
	r.wg.Wait()
}

func callAsync(ctx context.Context, fn AsyncFunc, value any) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, value)
}

// fingerprint identifies a value for result caching. Reference kinds are
// identified by address, since printing them could recurse through cycles.
func fingerprint(value any) string {
	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Chan, reflect.Func:
		return fmt.Sprintf("%T|%p", value, value)
	default:
		return fmt.Sprintf("%T|%s", value, Stringify(value))
	}
}
