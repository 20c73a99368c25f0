package opt

import (
	"errors"
	"fmt"
	"math"
)

// Params are the tunable constants of the optimizer.
type Params struct {
	UrgencyWeight                   float64
	DistanceWeight                  float64
	TwoOptMaxPasses                 int
	BaseCollectionMinutes           float64
	CollectionMinutesPerFillPercent float64
	AverageSpeedKmh                 float64
}

// DefaultParams returns the stock tuning: hybrid 0.6/0.4, 5 min + 0.1 min per
// fill percent at each stop, 30 km/h travel, uncapped two-opt (n*n passes).
func DefaultParams() Params {
	return Params{
		UrgencyWeight:                   DefaultUrgencyWeight,
		DistanceWeight:                  DefaultDistanceWeight,
		BaseCollectionMinutes:           5,
		CollectionMinutesPerFillPercent: 0.1,
		AverageSpeedKmh:                 30,
	}
}

// Validate rejects negative weights and non-positive speed.
func (p Params) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			errs = append(errs, fmt.Errorf("%s must be a finite value >= 0, got %v", name, v))
		}
	}
	check("hybrid.urgency_weight", p.UrgencyWeight)
	check("hybrid.distance_weight", p.DistanceWeight)
	check("builder.base_collection_minutes", p.BaseCollectionMinutes)
	check("builder.collection_minutes_per_fill_percent", p.CollectionMinutesPerFillPercent)
	if p.TwoOptMaxPasses < 0 {
		errs = append(errs, fmt.Errorf("two_opt.max_passes must be >= 0, got %d", p.TwoOptMaxPasses))
	}
	if math.IsNaN(p.AverageSpeedKmh) || math.IsInf(p.AverageSpeedKmh, 0) || p.AverageSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("builder.average_speed_kmh must be > 0, got %v", p.AverageSpeedKmh))
	}
	return errors.Join(errs...)
}
