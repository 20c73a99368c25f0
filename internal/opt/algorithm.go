package opt

import (
	"context"
	"fmt"

	"wasteroute/internal/geo"
)

// Algorithm names a routing strategy.
type Algorithm string

const (
	AlgoGreedy   Algorithm = "greedy"
	AlgoPriority Algorithm = "priority"
	AlgoHybrid   Algorithm = "hybrid"
	AlgoTwoOpt   Algorithm = "two_opt"
)

// DefaultAlgorithm is used when a request leaves the algorithm empty.
const DefaultAlgorithm = AlgoHybrid

// Algorithms lists every strategy in comparison output order.
var Algorithms = []Algorithm{AlgoGreedy, AlgoPriority, AlgoHybrid, AlgoTwoOpt}

// ParseAlgorithm maps a selector string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	if s == "" {
		return DefaultAlgorithm, nil
	}
	a := Algorithm(s)
	if !a.Valid() {
		return "", invalid("algorithm", "unknown algorithm %q", s)
	}
	return a, nil
}

// Valid reports whether a is one of the four strategies.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgoGreedy, AlgoPriority, AlgoHybrid, AlgoTwoOpt:
		return true
	}
	return false
}

func algorithmNames() []string {
	out := make([]string, len(Algorithms))
	for i, a := range Algorithms {
		out[i] = string(a)
	}
	return out
}

// Strategy orders a validated candidate pool. The result is a permutation of
// candidate indices in visiting order.
type Strategy interface {
	Name() Algorithm
	Order(ctx context.Context, start geo.Point, cands []Candidate) ([]int, error)
}

// StrategyFor returns the strategy implementing a, configured from p.
func StrategyFor(a Algorithm, p Params) (Strategy, error) {
	switch a {
	case AlgoGreedy:
		return Greedy{}, nil
	case AlgoPriority:
		return PriorityWeighted{}, nil
	case AlgoHybrid:
		return Hybrid{UrgencyWeight: p.UrgencyWeight, DistanceWeight: p.DistanceWeight}, nil
	case AlgoTwoOpt:
		return TwoOpt{MaxPasses: p.TwoOptMaxPasses}, nil
	}
	return nil, fmt.Errorf("strategy for %q: %w", string(a), ErrValidation)
}

// distTable caches start->candidate and candidate->candidate distances.
type distTable struct {
	fromStart []float64
	m         [][]float64
}

func newDistTable(start geo.Point, cands []Candidate) *distTable {
	n := len(cands)
	t := &distTable{fromStart: make([]float64, n), m: make([][]float64, n)}
	for i := range cands {
		t.fromStart[i] = geo.Haversine(start, cands[i].Location)
		t.m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geo.Haversine(cands[i].Location, cands[j].Location)
			t.m[i][j] = d
			t.m[j][i] = d
		}
	}
	return t
}

// from returns the distance from node a to candidate b, where a == -1 is the start.
func (t *distTable) from(a, b int) float64 {
	if a < 0 {
		return t.fromStart[b]
	}
	return t.m[a][b]
}

// pathLength is the open-path length start -> order[0] -> ... -> order[n-1].
func (t *distTable) pathLength(order []int) float64 {
	total := 0.0
	prev := -1
	for _, i := range order {
		total += t.from(prev, i)
		prev = i
	}
	return total
}
