package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so several API
// replicas share route events.
type RedisBroker struct {
	rdb *redis.Client

	mu  sync.Mutex
	pss map[chan RouteEvent]*redis.PubSub
}

// NewRedisBroker connects to url (redis://host:port/db) and verifies it with a PING.
func NewRedisBroker(ctx context.Context, url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBroker{rdb: rdb, pss: map[chan RouteEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(routeID string) chan RouteEvent {
	ch := make(chan RouteEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(routeID))
	// wait for the subscription confirmation so events published right after are not lost
	if _, err := ps.Receive(ctx); err != nil {
		log.WithError(err).WithField("route", routeID).Warn("redis subscribe")
	}
	b.mu.Lock()
	b.pss[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt RouteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying PubSub; the forwarding goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(routeID string, ch chan RouteEvent) {
	b.mu.Lock()
	ps, ok := b.pss[ch]
	delete(b.pss, ch)
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(routeID string, evt RouteEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(routeID), data).Err(); err != nil {
		log.WithError(err).WithField("route", routeID).Warn("redis publish")
	}
}

// Ping reports whether Redis is reachable.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(routeID string) string { return "route:" + routeID }
