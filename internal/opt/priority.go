package opt

import (
	"context"
	"sort"

	"wasteroute/internal/geo"
)

// PriorityWeighted visits bins strictly by urgency, most urgent first.
// It does not try to shorten the tour.
type PriorityWeighted struct{}

func (PriorityWeighted) Name() Algorithm { return AlgoPriority }

func (PriorityWeighted) Order(_ context.Context, start geo.Point, cands []Candidate) ([]int, error) {
	fromStart := make([]float64, len(cands))
	order := make([]int, len(cands))
	for i := range cands {
		fromStart[i] = geo.Haversine(start, cands[i].Location)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		ua, ub := cands[ia].Urgency(), cands[ib].Urgency()
		if ua != ub {
			return ua > ub
		}
		if fromStart[ia] != fromStart[ib] {
			return fromStart[ia] < fromStart[ib]
		}
		return ia < ib
	})
	return order, nil
}
