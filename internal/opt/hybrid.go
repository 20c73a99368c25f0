package opt

import (
	"context"
	"math"

	"wasteroute/internal/geo"
)

// Default blend weights for Hybrid.
const (
	DefaultUrgencyWeight  = 0.6
	DefaultDistanceWeight = 0.4
)

// Hybrid blends urgency and proximity. At every step it picks the unvisited bin
// maximizing
//
//	UrgencyWeight*fill/100 - DistanceWeight*d(current, bin)/maxPairwise(remaining)
//
// where maxPairwise is the largest distance between two remaining bins, or 1 when
// fewer than two distinct positions remain. Ties go to the earlier input bin.
type Hybrid struct {
	UrgencyWeight  float64
	DistanceWeight float64
}

func (Hybrid) Name() Algorithm { return AlgoHybrid }

func (h Hybrid) Order(_ context.Context, start geo.Point, cands []Candidate) ([]int, error) {
	t := newDistTable(start, cands)
	n := len(cands)

	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}
	order := make([]int, 0, n)
	cur := -1
	for len(remaining) > 0 {
		norm := maxPairwise(t, remaining)
		bestPos := -1
		bestScore := math.Inf(-1)
		for pos, i := range remaining {
			score := h.UrgencyWeight*cands[i].FillLevel/100 - h.DistanceWeight*t.from(cur, i)/norm
			if score > bestScore {
				bestPos = pos
				bestScore = score
			}
		}
		next := remaining[bestPos]
		order = append(order, next)
		cur = next
		// remaining stays in input order so ties keep resolving to the earliest bin.
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return order, nil
}

func maxPairwise(t *distTable, idx []int) float64 {
	best := 0.0
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			if d := t.m[idx[a]][idx[b]]; d > best {
				best = d
			}
		}
	}
	if best == 0 {
		return 1
	}
	return best
}
