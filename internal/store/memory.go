package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"wasteroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	routes   map[string]model.Route // id -> route
	routeIDs []string               // insertion order
	subs     []model.Subscription
	// Webhooks queue state
	deliveries  map[string]*WebhookDelivery
	deliveryIDs []string
	dedup       map[string]string // dedupIndex -> delivery id
}

func NewMemory() *Memory {
	return &Memory{
		routes:     map[string]model.Route{},
		deliveries: map[string]*WebhookDelivery{},
		dedup:      map[string]string{},
	}
}

// cloneRoute copies the slices and pointers of r so callers cannot reach stored state.
func cloneRoute(r model.Route) model.Route {
	r.Waypoints = append([]model.Waypoint(nil), r.Waypoints...)
	r.CreatedAt = cloneTime(r.CreatedAt)
	r.StartedAt = cloneTime(r.StartedAt)
	r.CompletedAt = cloneTime(r.CompletedAt)
	if r.ActualTimeMinutes != nil {
		v := *r.ActualTimeMinutes
		r.ActualTimeMinutes = &v
	}
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// cursorStart returns the index after cursor in ids. An empty cursor starts at 0.
func cursorStart(ids []string, cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1, nil
		}
	}
	return 0, ErrInvalidCursor
}

func (m *Memory) SaveRoute(ctx context.Context, r model.Route) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = "route_" + uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	if r.CreatedAt == nil {
		now := time.Now().UTC()
		r.CreatedAt = &now
	}
	if _, exists := m.routes[r.ID]; !exists {
		m.routeIDs = append(m.routeIDs, r.ID)
	}
	m.routes[r.ID] = cloneRoute(r)
	return cloneRoute(r), nil
}

func (m *Memory) GetRoute(ctx context.Context, routeID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return cloneRoute(r), nil
}

func (m *Memory) ListRoutes(ctx context.Context, f model.RouteFilter, cursor string, limit int) ([]model.Route, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	start, err := cursorStart(m.routeIDs, cursor)
	if err != nil {
		return nil, "", err
	}
	out := []model.Route{}
	next := ""
	for i := start; i < len(m.routeIDs); i++ {
		r := m.routes[m.routeIDs[i]]
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.CrewID != "" && r.CrewID != f.CrewID {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, cloneRoute(r))
	}
	return out, next, nil
}

func (m *Memory) UpdateRouteStatus(ctx context.Context, routeID string, upd model.StatusUpdate, now time.Time) (model.Route, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return model.Route{}, false, ErrNotFound
	}
	prev := r.Status
	r = cloneRoute(r)
	if err := applyStatus(&r, upd, now); err != nil {
		return model.Route{}, false, err
	}
	m.routes[routeID] = r
	return cloneRoute(r), r.Status != prev, nil
}

func (m *Memory) DeleteRoute(ctx context.Context, routeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[routeID]; !ok {
		return ErrNotFound
	}
	delete(m.routes, routeID)
	ids := m.routeIDs[:0]
	for _, id := range m.routeIDs {
		if id != routeID {
			ids = append(ids, id)
		}
	}
	m.routeIDs = ids
	return nil
}

func (m *Memory) ListCompletedRoutes(ctx context.Context) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Route{}
	for _, id := range m.routeIDs {
		if r := m.routes[id]; r.Status == model.StatusCompleted {
			out = append(out, cloneRoute(r))
		}
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: append([]string(nil), req.Events...), Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs
	ids := make([]string, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	start, err := cursorStart(ids, cursor)
	if err != nil {
		return nil, "", err
	}
	limit = clampLimit(limit)
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription{}, list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	found := false
	for _, s := range m.subs {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		return ErrNotFound
	}
	m.subs = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dk := computeDedupKey(payload)
	idx := dedupIndex(eventType, url, dk)
	if id, ok := m.dedup[idx]; ok {
		return id, nil
	}
	id := uuid.New().String()
	m.deliveries[id] = &WebhookDelivery{
		ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret,
		Payload: payload, DedupKey: dk, Status: DeliveryPending, NextAttemptAt: time.Now(),
	}
	m.deliveryIDs = append(m.deliveryIDs, id)
	m.dedup[idx] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	start, err := cursorStart(m.deliveryIDs, cursor)
	if err != nil {
		return nil, "", err
	}
	out := []WebhookDelivery{}
	next := ""
	for i := start; i < len(m.deliveryIDs); i++ {
		d := m.deliveries[m.deliveryIDs[i]]
		if status != "" && d.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, *d)
	}
	return out, next, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }
