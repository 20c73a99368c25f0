package model

import (
	"time"

	"wasteroute/internal/geo"
)

// RouteStatus is the lifecycle state of a persisted route.
type RouteStatus string

const (
	StatusPending   RouteStatus = "pending"
	StatusActive    RouteStatus = "active"
	StatusCompleted RouteStatus = "completed"
)

// Valid reports whether s is a known status.
func (s RouteStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle; transitions never move backwards.
func (s RouteStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// CanTransition reports whether a route in status s may move to next.
func (s RouteStatus) CanTransition(next RouteStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == StatusCompleted {
		return false
	}
	return next.rank() >= s.rank()
}

// Waypoint is one stop of a built route. It is a copy of the candidate it came from.
type Waypoint struct {
	BinID                      string    `json:"bin_id"`
	Location                   geo.Point `json:"location"`
	FillLevel                  float64   `json:"fill_level_percent"`
	Order                      int       `json:"order"`
	EstimatedCollectionMinutes float64   `json:"estimated_collection_time_minutes"`
}

// Route is an ordered collection tour plus its summary metrics.
type Route struct {
	ID                   string      `json:"route_id,omitempty"`
	Algorithm            string      `json:"algorithm"`
	Start                geo.Point   `json:"start"`
	Waypoints            []Waypoint  `json:"waypoints"`
	BinCount             int         `json:"bin_count"`
	TotalDistanceKm      float64     `json:"total_distance_km"`
	EstimatedTimeMinutes float64     `json:"estimated_time_minutes"`
	EfficiencyScore      float64     `json:"efficiency_score"`
	CrewID               string      `json:"crew_id,omitempty"`
	Status               RouteStatus `json:"status,omitempty"`
	// Truncated is set when two-opt refinement hit its deadline and returned its best tour so far.
	Truncated         bool       `json:"truncated,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ActualTimeMinutes *float64   `json:"actual_time_minutes,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// BinIDs returns the bin ids in visiting order.
func (r Route) BinIDs() []string {
	out := make([]string, len(r.Waypoints))
	for i, w := range r.Waypoints {
		out[i] = w.BinID
	}
	return out
}

// RouteComparison holds one route per algorithm and the recommended algorithm name.
type RouteComparison struct {
	Algorithms  []Route `json:"algorithms"`
	Recommended string  `json:"recommended"`
}

// RouteAnalytics summarizes completed routes.
type RouteAnalytics struct {
	TotalRoutesCompleted int     `json:"total_routes_completed"`
	TotalBinsCollected   int     `json:"total_bins_collected"`
	TotalDistanceKm      float64 `json:"total_distance_km"`
	AverageEfficiency    float64 `json:"average_efficiency"`
	AverageTimeMinutes   float64 `json:"average_time_minutes"`
}

// RouteFilter narrows route listings.
type RouteFilter struct {
	Status RouteStatus
	CrewID string
}

// StatusUpdate is the body of PATCH /v1/routes/{id}/status.
type StatusUpdate struct {
	Status            RouteStatus `json:"status"`
	ActualTimeMinutes *float64    `json:"actual_time_minutes,omitempty"`
	Notes             string      `json:"notes,omitempty"`
}

// BinInput is a bin record as supplied by the external bin store.
type BinInput struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	FillLevel float64 `json:"fill_level_percent"`
	Priority  string  `json:"priority,omitempty"`
}

// OptimizeRequest is the body of POST /v1/routes/optimize.
type OptimizeRequest struct {
	Bins      []BinInput `json:"bins"`
	Start     *geo.Point `json:"start,omitempty"`
	CrewID    string     `json:"crew_id,omitempty"`
	Algorithm string     `json:"algorithm,omitempty"`
	SaveRoute bool       `json:"save_route,omitempty"`
}

// CompareRequest is the body of POST /v1/routes/compare.
type CompareRequest struct {
	Bins   []BinInput `json:"bins"`
	Start  *geo.Point `json:"start,omitempty"`
	CrewID string     `json:"crew_id,omitempty"`
}

// CrewLocation is the latest reported position of a crew.
type CrewLocation struct {
	CrewID   string    `json:"crew_id"`
	Location geo.Point `json:"location"`
	TS       string    `json:"ts"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
