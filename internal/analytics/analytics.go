// Package analytics reduces completed routes into performance figures.
package analytics

import (
	"gonum.org/v1/gonum/stat"

	"wasteroute/internal/model"
)

// Aggregate summarizes the completed routes in routes. Records in any other
// status are skipped. The time of a route is its actual time when recorded and
// its estimate otherwise. No completed routes yields the zero value.
func Aggregate(routes []model.Route) model.RouteAnalytics {
	var out model.RouteAnalytics
	effs := make([]float64, 0, len(routes))
	times := make([]float64, 0, len(routes))
	for _, r := range routes {
		if r.Status != model.StatusCompleted {
			continue
		}
		out.TotalRoutesCompleted++
		out.TotalBinsCollected += r.BinCount
		out.TotalDistanceKm += r.TotalDistanceKm
		effs = append(effs, r.EfficiencyScore)
		times = append(times, RouteTime(r))
	}
	if out.TotalRoutesCompleted == 0 {
		return model.RouteAnalytics{}
	}
	out.AverageEfficiency = stat.Mean(effs, nil)
	out.AverageTimeMinutes = stat.Mean(times, nil)
	return out
}

// RouteTime is the actual time of r when recorded, else its estimate.
func RouteTime(r model.Route) float64 {
	if r.ActualTimeMinutes != nil {
		return *r.ActualTimeMinutes
	}
	return r.EstimatedTimeMinutes
}
