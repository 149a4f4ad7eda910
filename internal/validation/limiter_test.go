package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireRelease(t *testing.T) {
	l := NewLimiter(2, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.Equal(t, LimiterStatus{Active: 2, Available: 0, MaxConcurrent: 2}, l.Status())

	require.ErrorIs(t, l.Acquire(ctx), ErrValidatorsBusy)

	l.Release()
	require.NoError(t, l.Acquire(ctx))
	l.Release()
	l.Release()
	require.Equal(t, 0, l.Status().Active)
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestLimiter_Defaults(t *testing.T) {
	l := NewLimiter(0, 0)
	require.Equal(t, DefaultMaxConcurrentValidators, l.Status().MaxConcurrent)
	require.Equal(t, DefaultValidatorWait, l.maxWait)
}

func TestAsyncRunner_LimiterBusyFails(t *testing.T) {
	l := NewLimiter(1, 20*time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	resolved := make(chan Resolution, 1)
	r := NewAsyncRunner(context.Background(), func(res Resolution) { resolved <- res }, nil).WithLimiter(l)
	g := newGate(true)
	close(g.release)

	require.Equal(t, AsyncPending, r.Check("name", Async{Name: "available", Fn: g.fn}, "alice").State)

	select {
	case res := <-resolved:
		require.Equal(t, AsyncFailed, res.State)
		require.Equal(t, ErrValidatorsBusy.Error(), res.Err)
	case <-time.After(time.Second):
		require.Fail(t, "timeout waiting for resolution")
	}
	require.Zero(t, g.callCount(), "validator never ran without a slot")
}

func TestAsyncRunner_LimiterSerializes(t *testing.T) {
	l := NewLimiter(1, time.Second)
	resolved := make(chan Resolution, 2)
	r := NewAsyncRunner(context.Background(), func(res Resolution) { resolved <- res }, nil).WithLimiter(l)

	g := newGate(true)
	r.Check("a", Async{Name: "v", Fn: g.fn}, 1)
	r.Check("b", Async{Name: "v", Fn: g.fn}, 2)

	require.Eventually(t, func() bool { return g.callCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return g.callCount() > 1 }, 30*time.Millisecond, 5*time.Millisecond)

	close(g.release)
	for i := 0; i < 2; i++ {
		select {
		case res := <-resolved:
			require.Equal(t, AsyncValid, res.State)
		case <-time.After(time.Second):
			require.Fail(t, "timeout waiting for resolution")
		}
	}
	r.Wait()
	require.Equal(t, 0, l.Status().Active)
}
