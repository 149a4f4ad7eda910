package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gridedit/internal/pubsub"
	"github.com/JonMunkholm/gridedit/internal/table"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry(Config{}, nil)
	defer r.Close()

	s, err := r.Create(table.Options{Name: "people"})
	require.NoError(t, err)
	require.Equal(t, "people", s.Table.Name())

	got, ok := r.Get(s.ID.String())
	require.True(t, ok)
	require.Same(t, s, got)
	require.Equal(t, 1, r.Len())

	_, ok = r.Get("missing")
	require.False(t, ok)
}

func TestRegistry_ForwardsTableEvents(t *testing.T) {
	r := NewRegistry(Config{}, nil)
	defer r.Close()

	s, err := r.Create(table.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch := s.Events.Subscribe(ctx)

	require.NoError(t, s.Table.SetData([]table.Row{{"name": "Alice"}}))

	ev, ok := pubsub.Next(ctx, ch)
	require.True(t, ok)
	require.Equal(t, pubsub.EventType(table.EventDataChanged), ev.Type)
	require.Equal(t, uint64(1), ev.Payload.Seq)
}

func TestRegistry_DeleteClosesSession(t *testing.T) {
	r := NewRegistry(Config{}, nil)
	defer r.Close()

	s, err := r.Create(table.Options{})
	require.NoError(t, err)
	ch := s.Events.Subscribe(context.Background())

	require.True(t, r.Delete(s.ID.String()))
	require.False(t, r.Delete(s.ID.String()))

	_, open := <-ch
	require.False(t, open, "event stream is closed")
	require.ErrorIs(t, s.Table.SetData(nil), table.ErrClosed)
}

func TestRegistry_Limit(t *testing.T) {
	r := NewRegistry(Config{MaxSessions: 2}, nil)
	defer r.Close()

	for i := 0; i < 2; i++ {
		_, err := r.Create(table.Options{})
		require.NoError(t, err)
	}
	_, err := r.Create(table.Options{})
	require.ErrorIs(t, err, ErrLimitReached)
}

func TestRegistry_ExpiredSessionsAreClosed(t *testing.T) {
	r := NewRegistry(Config{TTL: 20 * time.Millisecond, CleanupInterval: 10 * time.Millisecond}, nil)
	defer r.Close()

	s, err := r.Create(table.Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Table.SetData(nil) == table.ErrClosed
	}, time.Second, 10*time.Millisecond)

	_, ok := r.Get(s.ID.String())
	require.False(t, ok)
}

func TestRegistry_CloseClosesEverything(t *testing.T) {
	r := NewRegistry(Config{}, nil)
	a, err := r.Create(table.Options{})
	require.NoError(t, err)
	b, err := r.Create(table.Options{})
	require.NoError(t, err)

	r.Close()
	require.Zero(t, r.Len())
	require.ErrorIs(t, a.Table.StartEdit(0), table.ErrClosed)
	require.ErrorIs(t, b.Table.StartEdit(0), table.ErrClosed)
}
