package validation

// limiter.go bounds how many async validators run at once across every
// table in the process. Async rules often call remote services; without a
// bound, one burst of edits fans out into unbounded outbound requests.
//
// A validator that cannot get a slot within maxWait resolves as failed
// with ErrValidatorsBusy, which the row shows as a defect rather than
// blocking the edit indefinitely.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrValidatorsBusy is the failure recorded when no slot frees up in time.
var ErrValidatorsBusy = errors.New("too many async validations in flight")

const (
	DefaultMaxConcurrentValidators = 16
	DefaultValidatorWait           = 5 * time.Second
)

// Limiter is a counting semaphore for async validator calls.
type Limiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewLimiter allows maxConcurrent validators at once. Non-positive values
// take the defaults.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentValidators
	}
	if maxWait <= 0 {
		maxWait = DefaultValidatorWait
	}
	return &Limiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. It returns ctx's error if ctx ends first and
// ErrValidatorsBusy if maxWait passes. The caller must Release a slot it
// acquired.
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrValidatorsBusy
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// LimiterStatus is a point-in-time view for health reporting.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status reports current slot usage.
func (l *Limiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()
	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
