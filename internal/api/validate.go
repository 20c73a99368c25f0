package api

import (
	"fmt"
	"net/url"
	"strings"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
	"wasteroute/internal/opt"
	"wasteroute/internal/webhooks"
)

const (
	// MaxBins bounds a single optimize or compare request.
	MaxBins      = 1000
	maxBodyBytes = 4 << 20
)

// toCandidates converts wire bins into optimizer candidates. Coordinate and fill
// checks are left to opt.Validate.
func toCandidates(bins []model.BinInput) ([]opt.Candidate, error) {
	if len(bins) > MaxBins {
		return nil, &opt.ValidationError{Field: "bins", Reason: fmt.Sprintf("at most %d bins per request, got %d", MaxBins, len(bins))}
	}
	out := make([]opt.Candidate, len(bins))
	for i, b := range bins {
		hint, err := opt.ParsePriority(b.Priority)
		if err != nil {
			return nil, fmt.Errorf("bins[%d]: %w", i, err)
		}
		out[i] = opt.Candidate{
			BinID:     strings.TrimSpace(b.ID),
			Location:  geo.Point{Lat: b.Latitude, Lng: b.Longitude},
			FillLevel: b.FillLevel,
			Hint:      hint,
		}
	}
	return out, nil
}

// resolveStart picks the route start: the explicit point, then the crew's last
// known location, then the configured depot. Nil leaves the choice to the optimizer.
func (s *Server) resolveStart(explicit *geo.Point, crewID string) *geo.Point {
	if explicit != nil {
		p := *explicit
		return &p
	}
	if crewID != "" {
		if l, ok := s.Crews.Get(crewID); ok {
			p := l.Location
			return &p
		}
	}
	if s.Cfg.Depot != nil {
		p := *s.Cfg.Depot
		return &p
	}
	return nil
}

func validateSubscription(req model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &opt.ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}
	if len(req.Events) == 0 {
		return &opt.ValidationError{Field: "events", Reason: "at least one event required"}
	}
	for _, e := range req.Events {
		if !webhooks.IsKnownEvent(e) {
			return &opt.ValidationError{Field: "events", Reason: fmt.Sprintf("unknown event %q (allowed: %s)", e, strings.Join(webhooks.KnownEvents, ", "))}
		}
	}
	return nil
}
