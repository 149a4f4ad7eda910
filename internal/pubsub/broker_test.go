package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testChanged EventType = "changed"
	testMoved   EventType = "moved"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	broker.Publish(testChanged, "hello")

	ev, ok := Next(ctx, ch)
	require.True(t, ok)
	require.Equal(t, "hello", ev.Payload)
	require.Equal(t, testChanged, ev.Type)
	require.False(t, ev.Timestamp.IsZero())
}

func TestBroker_PublishEventKeepsTimestamp(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	broker.PublishEvent(Event[int]{Type: testMoved, Payload: 7, Timestamp: at})

	ev := <-ch
	require.Equal(t, at, ev.Timestamp)
	require.Equal(t, 7, ev.Payload)
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()
	chans := []<-chan Event[int]{broker.Subscribe(ctx), broker.Subscribe(ctx), broker.Subscribe(ctx)}
	require.Equal(t, 3, broker.SubscriberCount())

	broker.Publish(testChanged, 42)

	for i, ch := range chans {
		select {
		case ev := <-ch:
			require.Equal(t, 42, ev.Payload, "subscriber %d", i)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for event", "subscriber %d", i)
		}
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_NonBlocking(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	broker.Publish(testChanged, 1)

	done := make(chan struct{})
	go func() {
		broker.Publish(testChanged, 2)
		broker.Publish(testChanged, 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "Publish blocked")
	}

	require.Equal(t, 1, (<-ch).Payload)
	require.Equal(t, uint64(2), broker.Dropped())
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()
	ctx := context.Background()
	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx)

	broker.Close()
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
	require.Zero(t, broker.SubscriberCount())

	ch3 := broker.Subscribe(ctx)
	_, ok3 := <-ch3
	require.False(t, ok3, "subscribe after close returns a closed channel")

	broker.Publish(testChanged, "ignored")
}

func TestNext_ContextDone(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(context.Background())
	cancel()

	_, ok := Next(ctx, ch)
	require.False(t, ok)
}
