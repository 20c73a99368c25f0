package opt

import (
	"context"

	"golang.org/x/sync/errgroup"

	"wasteroute/internal/model"
)

// recommendPreference breaks full ties between routes; lower wins.
var recommendPreference = map[string]int{
	string(AlgoHybrid):   0,
	string(AlgoTwoOpt):   1,
	string(AlgoGreedy):   2,
	string(AlgoPriority): 3,
}

// Compare runs every algorithm on the same pool and start and recommends one.
// The Algorithm field of req is ignored. Routes come back in the order of Algorithms.
func (o *Optimizer) Compare(ctx context.Context, req Request) (model.RouteComparison, error) {
	req.Algorithm = DefaultAlgorithm
	v, err := Validate(req)
	if err != nil {
		return model.RouteComparison{}, err
	}

	routes := make([]model.Route, len(Algorithms))
	g, gctx := errgroup.WithContext(ctx)
	for i, algo := range Algorithms {
		g.Go(func() error {
			r, err := o.run(gctx, algo, v)
			if err != nil {
				return err
			}
			r.CrewID = v.CrewID
			routes[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.RouteComparison{}, err
	}
	return model.RouteComparison{Algorithms: routes, Recommended: Recommend(routes)}, nil
}

// Recommend picks the route with the highest efficiency score. Ties go to the
// lower estimated time, then to hybrid, two_opt, greedy, priority in that order.
// It returns "" for no routes.
func Recommend(routes []model.Route) string {
	best := -1
	for i, r := range routes {
		if best < 0 || better(r, routes[best]) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return routes[best].Algorithm
}

func better(a, b model.Route) bool {
	if a.EfficiencyScore != b.EfficiencyScore {
		return a.EfficiencyScore > b.EfficiencyScore
	}
	if a.EstimatedTimeMinutes != b.EstimatedTimeMinutes {
		return a.EstimatedTimeMinutes < b.EstimatedTimeMinutes
	}
	return rank(a.Algorithm) < rank(b.Algorithm)
}

func rank(algo string) int {
	if r, ok := recommendPreference[algo]; ok {
		return r
	}
	return len(recommendPreference)
}
