package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"wasteroute/internal/store"
)

// Route lifecycle events a subscription may ask for.
const (
	EventRouteCreated   = "route.created"
	EventRouteStarted   = "route.started"
	EventRouteCompleted = "route.completed"
)

// KnownEvents lists every event type a subscription may name.
var KnownEvents = []string{EventRouteCreated, EventRouteStarted, EventRouteCompleted}

// IsKnownEvent reports whether t is a supported event type.
func IsKnownEvent(t string) bool {
	for _, e := range KnownEvents {
		if e == t {
			return true
		}
	}
	return false
}

// Event is the JSON body POSTed to subscribers.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`
	Data any       `json:"data"`
}

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues one delivery per subscription to eventType and returns how many were queued.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		return 0, fmt.Errorf("subscriptions for %s: %w", eventType, err)
	}
	if len(subs) == 0 {
		return 0, nil
	}
	body, err := json.Marshal(Event{ID: "evt_" + uuid.New().String(), Type: eventType, TS: time.Now().UTC(), Data: data})
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", eventType, err)
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.WithError(err).WithFields(log.Fields{"event": eventType, "subscription": s.ID}).Warn("enqueue webhook")
			continue
		}
		n++
	}
	return n, nil
}
