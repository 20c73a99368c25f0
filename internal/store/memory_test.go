package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

func sampleRoute(crew string) model.Route {
	return model.Route{
		Algorithm: "hybrid",
		Start:     geo.Point{Lat: 21.1458, Lng: 79.0882},
		Waypoints: []model.Waypoint{
			{BinID: "b1", Location: geo.Point{Lat: 21.15, Lng: 79.09}, FillLevel: 80, Order: 1, EstimatedCollectionMinutes: 13},
			{BinID: "b2", Location: geo.Point{Lat: 21.16, Lng: 79.10}, FillLevel: 40, Order: 2, EstimatedCollectionMinutes: 9},
		},
		BinCount:             2,
		TotalDistanceKm:      2.5,
		EstimatedTimeMinutes: 27,
		EfficiencyScore:      0.8,
		CrewID:               crew,
	}
}

func TestMemoryRouteLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	saved, err := m.SaveRoute(ctx, sampleRoute("crew-1"))
	require.NoError(t, err)
	assert.Contains(t, saved.ID, "route_")
	assert.Equal(t, model.StatusPending, saved.Status)
	require.NotNil(t, saved.CreatedAt)

	got, err := m.GetRoute(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	// mutating a returned copy must not reach the store
	got.Waypoints[0].BinID = "tampered"
	again, _ := m.GetRoute(ctx, saved.ID)
	assert.Equal(t, "b1", again.Waypoints[0].BinID)

	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r, changed, err := m.UpdateRouteStatus(ctx, saved.ID, model.StatusUpdate{Status: model.StatusActive}, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusActive, r.Status)
	require.NotNil(t, r.StartedAt)
	assert.Equal(t, t0, *r.StartedAt)

	// repeating the current status succeeds without a change
	r, changed, err = m.UpdateRouteStatus(ctx, saved.ID, model.StatusUpdate{Status: model.StatusActive}, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, t0, *r.StartedAt)

	actual := 42.0
	r, changed, err = m.UpdateRouteStatus(ctx, saved.ID, model.StatusUpdate{Status: model.StatusCompleted, ActualTimeMinutes: &actual, Notes: "bin b2 blocked"}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusCompleted, r.Status)
	assert.Equal(t, t0, *r.StartedAt)
	assert.Equal(t, t0.Add(time.Hour), *r.CompletedAt)
	assert.Equal(t, 42.0, *r.ActualTimeMinutes)
	assert.Equal(t, "bin b2 blocked", r.Notes)

	_, _, err = m.UpdateRouteStatus(ctx, saved.ID, model.StatusUpdate{Status: model.StatusActive}, t0)
	require.ErrorIs(t, err, ErrInvalidTransition)

	done, err := m.ListCompletedRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, done, 1)

	require.NoError(t, m.DeleteRoute(ctx, saved.ID))
	_, err = m.GetRoute(ctx, saved.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.DeleteRoute(ctx, saved.ID), ErrNotFound)
	_, _, err = m.UpdateRouteStatus(ctx, saved.ID, model.StatusUpdate{Status: model.StatusActive}, t0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListRoutesFilterAndCursor(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var ids []string
	for _, crew := range []string{"a", "b", "a", "a"} {
		r, err := m.SaveRoute(ctx, sampleRoute(crew))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	_, _, err := m.UpdateRouteStatus(ctx, ids[2], model.StatusUpdate{Status: model.StatusActive}, time.Now())
	require.NoError(t, err)

	page, next, err := m.ListRoutes(ctx, model.RouteFilter{CrewID: "a"}, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
	assert.Equal(t, ids[2], next)

	page, next, err = m.ListRoutes(ctx, model.RouteFilter{CrewID: "a"}, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Empty(t, next)

	page, _, err = m.ListRoutes(ctx, model.RouteFilter{Status: model.StatusActive}, "", 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[2], page[0].ID)
}

func TestMemoryUnknownCursor(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var ids []string
	for _, crew := range []string{"a", "a", "a"} {
		r, err := m.SaveRoute(ctx, sampleRoute(crew))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{"route.created"}})
	require.NoError(t, err)
	_, err = m.EnqueueWebhook(ctx, "", "route.created", "http://a", "", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)

	// a cursor naming a deleted route must not restart from the first page
	_, next, err := m.ListRoutes(ctx, model.RouteFilter{}, "", 1)
	require.NoError(t, err)
	require.Equal(t, ids[0], next)
	require.NoError(t, m.DeleteRoute(ctx, ids[0]))
	page, _, err := m.ListRoutes(ctx, model.RouteFilter{}, next, 1)
	require.ErrorIs(t, err, ErrInvalidCursor)
	assert.Empty(t, page)

	_, _, err = m.ListRoutes(ctx, model.RouteFilter{}, "route_nope", 10)
	require.ErrorIs(t, err, ErrInvalidCursor)
	_, _, err = m.ListWebhookDeliveries(ctx, "", "not-a-delivery", 10)
	require.ErrorIs(t, err, ErrInvalidCursor)
	_, _, err = m.ListSubscriptions(ctx, "not-a-sub", 10)
	require.ErrorIs(t, err, ErrInvalidCursor)

	subs, _, err := m.ListSubscriptions(ctx, sub.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestMemorySubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s1, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{"route.created"}})
	require.NoError(t, err)
	_, err = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{"route.completed"}})
	require.NoError(t, err)

	subs, err := m.GetSubscriptionsForEvent(ctx, "route.created")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, s1.ID, subs[0].ID)

	list, next, err := m.ListSubscriptions(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, s1.ID, next)

	require.NoError(t, m.DeleteSubscription(ctx, s1.ID))
	require.ErrorIs(t, m.DeleteSubscription(ctx, s1.ID), ErrNotFound)
	list, _, _ = m.ListSubscriptions(ctx, "", 10)
	assert.Len(t, list, 1)
}

func TestMemoryWebhookQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	payload := []byte(`{"id":"evt_1","type":"route.created"}`)
	id, err := m.EnqueueWebhook(ctx, "sub", "route.created", "http://hook", "s3cret", payload)
	require.NoError(t, err)

	// same event id to the same url is not queued twice
	dup, err := m.EnqueueWebhook(ctx, "sub", "route.created", "http://hook", "s3cret", payload)
	require.NoError(t, err)
	assert.Equal(t, id, dup)

	// payloads without an id dedup on content
	anon := []byte(`{"type":"route.created","data":{"route_id":"r1"}}`)
	a1, err := m.EnqueueWebhook(ctx, "sub", "route.created", "http://hook", "s3cret", anon)
	require.NoError(t, err)
	a2, err := m.EnqueueWebhook(ctx, "sub", "route.created", "http://hook", "s3cret", append([]byte(nil), anon...))
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, id, a1)

	// a different url or event type is a separate delivery
	other, err := m.EnqueueWebhook(ctx, "sub", "route.created", "http://other", "s3cret", payload)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
	other, err = m.EnqueueWebhook(ctx, "sub", "route.deleted", "http://hook", "s3cret", payload)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 4)
	assert.Equal(t, id, due[0].ID)
	assert.Equal(t, "evt_1", due[0].DedupKey)
	assert.Equal(t, computeDedupKey(anon), due[1].DedupKey)

	later := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &later, "HTTP 500", 500, 12))
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	assert.Len(t, due, 3)
	for _, d := range due {
		assert.NotEqual(t, id, d.ID)
	}

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "HTTP 500", 500, 10))
	failed, _, err := m.ListWebhookDeliveries(ctx, DeliveryFailed, "", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)
	assert.Equal(t, "HTTP 500", failed[0].LastError)
}
