package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"wasteroute/internal/config"
	"wasteroute/internal/metrics"
	"wasteroute/internal/opt"
	"wasteroute/internal/store"
	"wasteroute/internal/webhooks"
)

type Server struct {
	Store     store.Store
	Pub       *webhooks.Publisher
	Broker    EventBroker
	Optimizer *opt.Optimizer
	Crews     *LocationCache
	Cfg       config.Config

	limiter *rate.Limiter
	closers []io.Closer
}

// NewServer wires a Server from cfg. An empty DATABASE_URL selects the in-memory
// store and an empty REDIS_URL the in-process broker.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	var (
		s       store.Store
		closers []io.Closer
	)
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.DBMigrate {
			if err := sp.Migrate(ctx); err != nil {
				_ = sp.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		s = sp
		closers = append(closers, sp)
	}

	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, using in-process event broker")
		} else {
			broker = rb
			closers = append(closers, rb)
		}
	}

	srv, err := New(cfg, s, broker)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	srv.closers = closers
	return srv, nil
}

// New builds a Server over an existing store and broker.
func New(cfg config.Config, s store.Store, broker EventBroker) (*Server, error) {
	o, err := opt.New(cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	if broker == nil {
		broker = NewBroker()
	}
	var lim *rate.Limiter
	if cfg.RateRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RateRPS), burst)
	}
	return &Server{
		Store:     s,
		Pub:       webhooks.NewPublisher(s),
		Broker:    broker,
		Optimizer: o,
		Crews:     NewLocationCache(),
		Cfg:       cfg,
		limiter:   lim,
	}, nil
}

// Routes returns the HTTP handler with every endpoint and middleware mounted.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	limited := rateLimit(s.limiter)

	// Optimization
	mux.Handle("POST /v1/routes/optimize", limited(http.HandlerFunc(s.OptimizeHandler)))
	mux.Handle("POST /v1/routes/compare", limited(http.HandlerFunc(s.CompareHandler)))
	mux.HandleFunc("GET /v1/routes/analytics/performance", s.AnalyticsHandler)

	// Persisted routes
	mux.HandleFunc("GET /v1/routes", s.ListRoutesHandler)
	mux.HandleFunc("GET /v1/routes/{id}", s.GetRouteHandler)
	mux.HandleFunc("DELETE /v1/routes/{id}", s.DeleteRouteHandler)
	mux.HandleFunc("PATCH /v1/routes/{id}/status", s.UpdateRouteStatusHandler)
	mux.HandleFunc("GET /v1/routes/{id}/events/stream", s.RouteEventsStreamHandler)
	mux.HandleFunc("GET /v1/routes/{id}/events/ws", s.RouteEventsWSHandler)

	// Crews
	mux.HandleFunc("POST /v1/crews/{id}/location", s.CrewLocationHandler)
	mux.HandleFunc("GET /v1/crews/{id}/location", s.GetCrewLocationHandler)

	// Webhooks
	mux.HandleFunc("POST /v1/subscriptions", s.CreateSubscriptionHandler)
	mux.HandleFunc("GET /v1/subscriptions", s.ListSubscriptionsHandler)
	mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.DeleteSubscriptionHandler)
	mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Ops
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.HandleFunc("GET /debug/info", s.DebugJSON)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	return logMiddleware(metricsMiddleware(mux))
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.WebhookMaxAttempts)
}

// Close releases the database and Redis connections opened by NewServer.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
