package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"wasteroute/internal/analytics"
	"wasteroute/internal/geo"
	"wasteroute/internal/metrics"
	"wasteroute/internal/model"
	"wasteroute/internal/opt"
	"wasteroute/internal/store"
	"wasteroute/internal/webhooks"
)

// Route event types pushed over SSE and WebSocket.
const (
	EventTypeCreated = "route.created"
	EventTypeStatus  = "route.status"
)

// optimizeContext bounds an optimization by OPTIMIZER_TIMEOUT.
func (s *Server) optimizeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.Cfg.OptimizerTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.Cfg.OptimizerTimeout)
}

func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req model.OptimizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cands, err := toCandidates(req.Bins)
	if err != nil {
		writeError(w, r, err)
		return
	}
	algo, err := opt.ParseAlgorithm(req.Algorithm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := s.optimizeContext(r)
	defer cancel()
	route, err := s.Optimizer.Optimize(ctx, opt.Request{
		Candidates: cands,
		Start:      s.resolveStart(req.Start, req.CrewID),
		Algorithm:  algo,
		CrewID:     req.CrewID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !req.SaveRoute {
		writeJSON(w, http.StatusOK, route)
		return
	}
	saved, err := s.Store.SaveRoute(r.Context(), route)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Broker.Publish(saved.ID, RouteEvent{Type: EventTypeCreated, Data: routeEventData(saved)})
	s.emit(r.Context(), webhooks.EventRouteCreated, saved)
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) CompareHandler(w http.ResponseWriter, r *http.Request) {
	var req model.CompareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cands, err := toCandidates(req.Bins)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := s.optimizeContext(r)
	defer cancel()
	cmp, err := s.Optimizer.Compare(ctx, opt.Request{
		Candidates: cands,
		Start:      s.resolveStart(req.Start, req.CrewID),
		CrewID:     req.CrewID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) ListRoutesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.RouteFilter{CrewID: q.Get("crew_id")}
	if v := q.Get("status"); v != "" {
		f.Status = model.RouteStatus(v)
		if !f.Status.Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be one of pending, active, completed", r.URL.Path)
			return
		}
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, next, err := s.Store.ListRoutes(r.Context(), f, q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetRouteHandler(w http.ResponseWriter, r *http.Request) {
	rt, err := s.Store.GetRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) DeleteRouteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteRoute(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) UpdateRouteStatusHandler(w http.ResponseWriter, r *http.Request) {
	var upd model.StatusUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	if !upd.Status.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be one of pending, active, completed", r.URL.Path)
		return
	}
	if upd.ActualTimeMinutes != nil && *upd.ActualTimeMinutes < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid actual time", "actual_time_minutes must be >= 0", r.URL.Path)
		return
	}
	rt, changed, err := s.Store.UpdateRouteStatus(r.Context(), r.PathValue("id"), upd, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	// only the request that moved the route announces it
	if changed {
		metrics.RouteTransitions.WithLabelValues(string(rt.Status)).Inc()
		s.Broker.Publish(rt.ID, RouteEvent{Type: EventTypeStatus, Data: routeEventData(rt)})
		switch rt.Status {
		case model.StatusActive:
			s.emit(r.Context(), webhooks.EventRouteStarted, rt)
		case model.StatusCompleted:
			s.emit(r.Context(), webhooks.EventRouteCompleted, rt)
		}
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	routes, err := s.Store.ListCompletedRoutes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Aggregate(routes))
}

type crewLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	TS        string  `json:"ts,omitempty"`
}

func (s *Server) CrewLocationHandler(w http.ResponseWriter, r *http.Request) {
	crewID := strings.TrimSpace(r.PathValue("id"))
	var req crewLocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := geo.NewPoint(req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ts := req.TS
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	s.Crews.Upsert(crewID, p, ts)
	loc, _ := s.Crews.Get(crewID)
	writeJSON(w, http.StatusAccepted, loc)
}

func (s *Server) GetCrewLocationHandler(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.Crews.Get(r.PathValue("id"))
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not found", "no location reported for crew", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req model.SubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateSubscription(req); err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, next, err := s.Store.ListSubscriptions(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range items {
		items[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteSubscription(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	switch status {
	case "", store.DeliveryPending, store.DeliveryRetry, store.DeliveryDelivered, store.DeliveryFailed:
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be one of pending, retry, delivered, failed", r.URL.Path)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), status, q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.Broker.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

// emit enqueues webhooks for a route event; failures are logged, not returned.
func (s *Server) emit(ctx context.Context, eventType string, rt model.Route) {
	if s.Pub == nil {
		return
	}
	if _, err := s.Pub.Emit(ctx, eventType, rt); err != nil {
		log.WithError(err).WithFields(log.Fields{"event": eventType, "route": rt.ID}).Warn("emit webhook")
	}
}

func routeEventData(rt model.Route) map[string]any {
	return map[string]any{
		"route_id":  rt.ID,
		"status":    string(rt.Status),
		"crew_id":   rt.CrewID,
		"algorithm": rt.Algorithm,
		"ts":        time.Now().UTC().Format(time.RFC3339),
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a non-negative integer", r.URL.Path)
		return 0, false
	}
	return n, true
}
