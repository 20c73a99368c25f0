package opt

import (
	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

// Builder turns an ordered candidate list into a Route with distance, time and
// efficiency metrics.
type Builder struct {
	BaseCollectionMinutes           float64
	CollectionMinutesPerFillPercent float64
	AverageSpeedKmh                 float64
}

// NewBuilder takes the builder constants from p.
func NewBuilder(p Params) Builder {
	return Builder{
		BaseCollectionMinutes:           p.BaseCollectionMinutes,
		CollectionMinutesPerFillPercent: p.CollectionMinutesPerFillPercent,
		AverageSpeedKmh:                 p.AverageSpeedKmh,
	}
}

// CollectionMinutes is the time spent emptying one bin.
func (b Builder) CollectionMinutes(fill float64) float64 {
	return b.BaseCollectionMinutes + fill*b.CollectionMinutesPerFillPercent
}

// Build measures the open path start -> ordered[0] -> ... and returns a pending route.
// Waypoints are copies; later changes to ordered do not reach the route.
func (b Builder) Build(algo Algorithm, ordered []Candidate, start geo.Point) model.Route {
	wps := make([]model.Waypoint, len(ordered))
	dist := 0.0
	collect := 0.0
	prev := start
	for i, c := range ordered {
		dist += geo.Haversine(prev, c.Location)
		prev = c.Location
		ct := b.CollectionMinutes(c.FillLevel)
		collect += ct
		wps[i] = model.Waypoint{
			BinID:                      c.BinID,
			Location:                   c.Location,
			FillLevel:                  c.FillLevel,
			Order:                      i + 1,
			EstimatedCollectionMinutes: ct,
		}
	}
	speed := b.AverageSpeedKmh
	if speed <= 0 {
		speed = DefaultParams().AverageSpeedKmh
	}
	travel := dist / speed * 60

	n := len(ordered)
	eff := float64(n)
	if dist > 0 {
		eff = float64(n) / dist
	}
	return model.Route{
		Algorithm:            string(algo),
		Start:                start,
		Waypoints:            wps,
		BinCount:             n,
		TotalDistanceKm:      dist,
		EstimatedTimeMinutes: travel + collect,
		EfficiencyScore:      eff,
		Status:               model.StatusPending,
	}
}
