package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"server/internal/domain"
	"server/internal/notify"
)

// setupRedis spins up a Redis container and returns a connected RedisBus.
func setupRedis(t *testing.T) *notify.RedisBus {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	bus, err := notify.NewRedisBus("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	require.NoError(t, bus.Ping(ctx))
	return bus
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bus := setupRedis(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	defer sub.Close()

	event := notify.JobEvent{
		RequestID: "req-1",
		Status:    domain.JobStatusCompleted,
		ResultURL: "https://x/out.png",
	}
	require.NoError(t, bus.Publish(ctx, event))

	select {
	case got := <-sub.Events():
		assert.Equal(t, event, got)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered over redis")
	}
}

func TestRedisBusScopedByRequestID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bus := setupRedis(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, notify.JobEvent{
		RequestID: "req-2",
		Status:    domain.JobStatusFailed,
		Error:     "boom",
	}))

	select {
	case ev := <-sub.Events():
		t.Fatalf("received foreign event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBusCloseEndsEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	bus := setupRedis(t)

	sub, err := bus.Subscribe(context.Background(), "req-1")
	require.NoError(t, err)
	sub.Close()

	select {
	case _, open := <-sub.Events():
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed")
	}
}
