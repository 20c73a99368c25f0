package api

import (
	"sync"
)

// RouteEvent is pushed to SSE and WebSocket subscribers of a route.
type RouteEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans route events out to live subscribers.
type EventBroker interface {
	Subscribe(routeID string) chan RouteEvent
	Unsubscribe(routeID string, ch chan RouteEvent)
	Publish(routeID string, evt RouteEvent)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan RouteEvent]struct{} // routeID -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan RouteEvent]struct{}{}}
}

func (b *Broker) Subscribe(routeID string) chan RouteEvent {
	ch := make(chan RouteEvent, 8)
	b.mu.Lock()
	if b.subs[routeID] == nil {
		b.subs[routeID] = map[chan RouteEvent]struct{}{}
	}
	b.subs[routeID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(routeID string, ch chan RouteEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[routeID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, routeID)
	}
	close(ch)
}

func (b *Broker) Publish(routeID string, evt RouteEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[routeID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers returns how many channels are listening on routeID.
func (b *Broker) Subscribers(routeID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[routeID])
}
