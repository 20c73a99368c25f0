package store

import (
	"context"
	"errors"
	"time"

	"wasteroute/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Routes
	SaveRoute(ctx context.Context, r model.Route) (model.Route, error)
	GetRoute(ctx context.Context, routeID string) (model.Route, error)
	ListRoutes(ctx context.Context, f model.RouteFilter, cursor string, limit int) ([]model.Route, string, error)
	// UpdateRouteStatus applies upd atomically. changed reports whether the
	// stored status differs from the status the route held before the call.
	UpdateRouteStatus(ctx context.Context, routeID string, upd model.StatusUpdate, now time.Time) (r model.Route, changed bool, err error)
	DeleteRoute(ctx context.Context, routeID string) error
	ListCompletedRoutes(ctx context.Context) ([]model.Route, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error)

	Ping(ctx context.Context) error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status change would move a route backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidCursor is returned by list calls whose cursor names no listed item.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// DefaultLimit and MaxLimit bound list page sizes.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// applyStatus moves r to upd.Status, stamping lifecycle timestamps. It is shared
// by every Store implementation.
func applyStatus(r *model.Route, upd model.StatusUpdate, now time.Time) error {
	if !r.Status.CanTransition(upd.Status) {
		return ErrInvalidTransition
	}
	r.Status = upd.Status
	now = now.UTC()
	switch upd.Status {
	case model.StatusActive:
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
	case model.StatusCompleted:
		r.CompletedAt = &now
		if upd.ActualTimeMinutes != nil {
			v := *upd.ActualTimeMinutes
			r.ActualTimeMinutes = &v
		}
	}
	if upd.Notes != "" {
		r.Notes = upd.Notes
	}
	return nil
}
