package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server/internal/domain"
	"server/internal/notify"
)

func TestMemoryBusFanOut(t *testing.T) {
	bus := notify.NewMemoryBus()
	ctx := context.Background()

	first, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	defer first.Close()
	second, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	defer second.Close()

	event := notify.JobEvent{
		RequestID: "req-1",
		Status:    domain.JobStatusCompleted,
		ResultURL: "https://x/out.png",
	}
	require.NoError(t, bus.Publish(ctx, event))

	for _, sub := range []notify.Subscription{first, second} {
		select {
		case got := <-sub.Events():
			assert.Equal(t, event, got)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestMemoryBusScopedByRequestID(t *testing.T) {
	bus := notify.NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, notify.JobEvent{
		RequestID: "req-2",
		Status:    domain.JobStatusFailed,
	}))

	select {
	case ev := <-sub.Events():
		t.Fatalf("received foreign event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusCloseStopsDelivery(t *testing.T) {
	bus := notify.NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	sub.Close()
	sub.Close() // idempotent

	require.NoError(t, bus.Publish(ctx, notify.JobEvent{
		RequestID: "req-1",
		Status:    domain.JobStatusCompleted,
	}))

	_, open := <-sub.Events()
	assert.False(t, open, "events channel must be closed after Close")
}

func TestMemoryBusPublishWithoutSubscribers(t *testing.T) {
	bus := notify.NewMemoryBus()
	assert.NoError(t, bus.Publish(context.Background(), notify.JobEvent{
		RequestID: "req-1",
		Status:    domain.JobStatusInProgress,
	}))
}

func TestMemoryBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := notify.NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the subscriber buffer; Publish must never block.
		for i := 0; i < 100; i++ {
			_ = bus.Publish(ctx, notify.JobEvent{RequestID: "req-1", Status: domain.JobStatusInProgress})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
