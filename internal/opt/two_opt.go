package opt

import (
	"context"
	"fmt"

	"wasteroute/internal/geo"
)

// improveEps is the minimum gain (km) for a reversal to count as an improvement.
const improveEps = 1e-9

// TwoOpt refines a greedy seed by segment reversal on the open path
// start -> t[0] -> ... -> t[n-1]. The start is fixed and there is no return leg.
type TwoOpt struct {
	// MaxPasses caps the number of improving passes. Zero means n*n.
	MaxPasses int
}

func (TwoOpt) Name() Algorithm { return AlgoTwoOpt }

// Order returns the refined tour. If ctx ends first, the best tour so far is
// returned together with an error wrapping ErrComputationTimeout.
func (o TwoOpt) Order(ctx context.Context, start geo.Point, cands []Candidate) ([]int, error) {
	t := newDistTable(start, cands)
	seed := nearestNeighbor(t)
	tour, passes, err := o.improve(ctx, t, seed)
	// never hand back something longer than the seed
	if t.pathLength(tour) > t.pathLength(seed) {
		tour = seed
	}
	if err != nil {
		return tour, fmt.Errorf("two-opt stopped after %d passes: %w", passes, err)
	}
	return tour, nil
}

func (o TwoOpt) improve(ctx context.Context, t *distTable, seed []int) ([]int, int, error) {
	n := len(seed)
	best := append([]int(nil), seed...)
	maxPasses := o.MaxPasses
	if maxPasses <= 0 {
		maxPasses = n * n
	}
	if maxPasses < 1 {
		maxPasses = 1
	}
	passes := 0
	for passes < maxPasses {
		if err := ctx.Err(); err != nil {
			return best, passes, ErrComputationTimeout
		}
		passes++
		if !firstImprovement(t, best) {
			break
		}
	}
	return best, passes, nil
}

// firstImprovement applies the first reversal of tour[i..k] that shortens the
// path and reports whether one was found.
func firstImprovement(t *distTable, tour []int) bool {
	n := len(tour)
	for i := 0; i < n-1; i++ {
		prev := -1
		if i > 0 {
			prev = tour[i-1]
		}
		for k := i + 1; k < n; k++ {
			before := t.from(prev, tour[i])
			after := t.from(prev, tour[k])
			if k < n-1 {
				next := tour[k+1]
				before += t.m[tour[k]][next]
				after += t.m[tour[i]][next]
			}
			if after-before < -improveEps {
				reverse(tour, i, k)
				return true
			}
		}
	}
	return false
}

func reverse(ord []int, i, k int) {
	for i < k {
		ord[i], ord[k] = ord[k], ord[i]
		i++
		k--
	}
}
