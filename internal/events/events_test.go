package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestLocalBusFanOut(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Kind: KindCapabilitiesChanged, UserID: "u1"}))

	for _, ch := range []<-chan Event{a, b} {
		evt := receive(t, ch)
		assert.Equal(t, "u1", evt.UserID)
		assert.False(t, evt.At.IsZero())
	}
}

func TestLocalBusClosesOnCancel(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := NewRedisClient(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	bus := NewRedisBus(client, "")
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Kind: KindCapabilitiesChanged, UserID: "u7", Action: "admin.grant"}))

	evt := receive(t, ch)
	assert.Equal(t, "u7", evt.UserID)
	assert.Equal(t, "admin.grant", evt.Action)
	assert.Equal(t, KindCapabilitiesChanged, evt.Kind)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "invalid://url")
	assert.Error(t, err)
}
