package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "r1"
	ch := b.Subscribe(rid)
	assert.Equal(t, 1, b.Subscribers(rid))

	evt := RouteEvent{Type: "test.event", Data: map[string]any{"x": 1}}
	b.Publish(rid, evt)
	b.Publish("other", RouteEvent{Type: "ignored"})

	select {
	case got := <-ch:
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.Subscribers(rid))

	// a second unsubscribe must not panic on the closed channel
	b.Unsubscribe(rid, ch)
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	defer b.Unsubscribe("r1", ch)
	for i := 0; i < 20; i++ {
		b.Publish("r1", RouteEvent{Type: "tick"})
	}
	assert.Len(t, ch, cap(ch))
}

func TestRedisBrokerPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	b, err := NewRedisBroker(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	require.NoError(t, b.Ping(ctx))

	ch := b.Subscribe("route_1")
	b.Publish("route_1", RouteEvent{Type: "route.status", Data: map[string]any{"status": "active"}})

	select {
	case got := <-ch:
		assert.Equal(t, "route.status", got.Type)
		assert.Equal(t, "active", got.Data["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	b.Unsubscribe("route_1", ch)
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestNewRedisBrokerBadURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), "not-a-url")
	assert.Error(t, err)
}
