package opt

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"wasteroute/internal/metrics"
	"wasteroute/internal/model"
)

// Optimizer runs strategies and builds routes. It holds no mutable state and is
// safe for concurrent use.
type Optimizer struct {
	params  Params
	builder Builder
}

// New returns an Optimizer using p. Invalid params are rejected.
func New(p Params) (*Optimizer, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("optimizer params: %w", err)
	}
	return &Optimizer{params: p, builder: NewBuilder(p)}, nil
}

// Params returns the tuning in effect.
func (o *Optimizer) Params() Params { return o.params }

// Optimize validates req, orders its candidates with the requested algorithm and
// returns the built route. A two-opt run cut short by ctx still yields a route,
// marked Truncated.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (model.Route, error) {
	v, err := Validate(req)
	if err != nil {
		return model.Route{}, err
	}
	r, err := o.run(ctx, v.Algorithm, v)
	if err != nil {
		return model.Route{}, err
	}
	r.CrewID = v.CrewID
	return r, nil
}

// run executes one strategy against an already validated request.
func (o *Optimizer) run(ctx context.Context, algo Algorithm, v Request) (model.Route, error) {
	strat, err := StrategyFor(algo, o.params)
	if err != nil {
		return model.Route{}, err
	}
	t0 := time.Now()
	order, err := strat.Order(ctx, *v.Start, v.Candidates)
	elapsed := time.Since(t0)
	metrics.OptimizeDuration.WithLabelValues(string(algo)).Observe(elapsed.Seconds())

	truncated := false
	if err != nil {
		if !errors.Is(err, ErrComputationTimeout) || len(order) != len(v.Candidates) {
			metrics.OptimizeRuns.WithLabelValues(string(algo), "error").Inc()
			return model.Route{}, fmt.Errorf("%s: %w", algo, err)
		}
		truncated = true
		metrics.TwoOptTruncated.Inc()
		log.WithFields(log.Fields{"algorithm": algo, "bins": len(v.Candidates), "elapsed": elapsed}).
			WithError(err).Warn("optimizer deadline reached, using best tour so far")
	}

	ordered := make([]Candidate, len(order))
	for i, idx := range order {
		ordered[i] = v.Candidates[idx]
	}
	r := o.builder.Build(algo, ordered, *v.Start)
	r.Truncated = truncated

	outcome := "ok"
	if truncated {
		outcome = "truncated"
	}
	metrics.OptimizeRuns.WithLabelValues(string(algo), outcome).Inc()
	metrics.RouteDistance.WithLabelValues(string(algo)).Observe(r.TotalDistanceKm)
	RecordRun(RunStats{
		Algorithm:  algo,
		Bins:       r.BinCount,
		DistanceKm: r.TotalDistanceKm,
		DurationMs: float64(elapsed.Microseconds()) / 1000,
		Truncated:  truncated,
		At:         time.Now().UTC(),
	})
	log.WithFields(log.Fields{
		"algorithm":   algo,
		"bins":        r.BinCount,
		"distance_km": r.TotalDistanceKm,
		"elapsed":     elapsed,
	}).Debug("route optimized")
	return r, nil
}
