package opt

import (
	"context"
	"math"

	"wasteroute/internal/geo"
)

// Greedy visits the nearest unvisited bin at each step.
//
// It favors locality only and ignores urgency. Ties go to the bin that appears
// first in the input, so the output is fully deterministic.
type Greedy struct{}

func (Greedy) Name() Algorithm { return AlgoGreedy }

func (Greedy) Order(_ context.Context, start geo.Point, cands []Candidate) ([]int, error) {
	return nearestNeighbor(newDistTable(start, cands)), nil
}

func nearestNeighbor(t *distTable) []int {
	n := len(t.fromStart)
	visited := make([]bool, n)
	order := make([]int, 0, n)
	cur := -1
	for len(order) < n {
		best := -1
		bestDist := math.Inf(1)
		for i := 0; i < n; i++ {
			if visited[i] {
				continue
			}
			// Strict comparison keeps the earliest input index on ties.
			if d := t.from(cur, i); d < bestDist {
				best = i
				bestDist = d
			}
		}
		visited[best] = true
		order = append(order, best)
		cur = best
	}
	return order
}
