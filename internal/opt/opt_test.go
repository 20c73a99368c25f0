package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/geo"
	"wasteroute/internal/model"
)

func abc() []Candidate {
	return []Candidate{
		{BinID: "A", Location: geo.Point{Lat: 0, Lng: 0}, FillLevel: 90},
		{BinID: "B", Location: geo.Point{Lat: 0, Lng: 1}, FillLevel: 10},
		{BinID: "C", Location: geo.Point{Lat: 1, Lng: 0}, FillLevel: 50},
	}
}

func randomPool(seed int64, n int) []Candidate {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{
			BinID:     fmt.Sprintf("bin-%03d", i),
			Location:  geo.Point{Lat: 21.10 + rng.Float64()*0.1, Lng: 79.03 + rng.Float64()*0.1},
			FillLevel: float64(rng.Intn(101)),
		}
	}
	return out
}

func newOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	o, err := New(DefaultParams())
	require.NoError(t, err)
	return o
}

func TestScenarioGreedyTieBreaksByInputOrder(t *testing.T) {
	o := newOptimizer(t)
	r, err := o.Optimize(context.Background(), Request{Candidates: abc(), Start: &geo.Point{}, Algorithm: AlgoGreedy})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, r.BinIDs())
	assert.Equal(t, "greedy", r.Algorithm)
	assert.Equal(t, model.StatusPending, r.Status)
}

func TestScenarioPriorityByFill(t *testing.T) {
	o := newOptimizer(t)
	r, err := o.Optimize(context.Background(), Request{Candidates: abc(), Start: &geo.Point{}, Algorithm: AlgoPriority})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, r.BinIDs())
}

func TestScenarioHybridAndTwoOpt(t *testing.T) {
	o := newOptimizer(t)
	r, err := o.Optimize(context.Background(), Request{Candidates: abc(), Start: &geo.Point{}, Algorithm: AlgoHybrid})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, r.BinIDs())

	r, err = o.Optimize(context.Background(), Request{Candidates: abc(), Start: &geo.Point{}, Algorithm: AlgoTwoOpt})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, r.BinIDs())
	assert.False(t, r.Truncated)
}

func TestPriorityHintOverridesFill(t *testing.T) {
	cands := abc()
	cands[1].Hint = PriorityHigh // B: 90 via hint, ties with A on urgency, A is nearer the start
	o := newOptimizer(t)
	r, err := o.Optimize(context.Background(), Request{Candidates: cands, Start: &geo.Point{}, Algorithm: AlgoPriority})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, r.BinIDs())
}

func TestTooFewCandidates(t *testing.T) {
	o := newOptimizer(t)
	for _, cands := range [][]Candidate{nil, abc()[:1]} {
		_, err := o.Optimize(context.Background(), Request{Candidates: cands, Algorithm: AlgoGreedy})
		require.ErrorIs(t, err, ErrValidation)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "candidates", ve.Field)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(r *Request){
		"empty id":    func(r *Request) { r.Candidates[1].BinID = " " },
		"duplicate":   func(r *Request) { r.Candidates[2].BinID = "A" },
		"fill high":   func(r *Request) { r.Candidates[0].FillLevel = 101 },
		"fill low":    func(r *Request) { r.Candidates[0].FillLevel = -1 },
		"fill NaN":    func(r *Request) { r.Candidates[0].FillLevel = math.NaN() },
		"unknown alg": func(r *Request) { r.Algorithm = "simulated_annealing" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := Request{Candidates: abc()}
			mutate(&req)
			_, err := Validate(req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	req := Request{Candidates: abc()}
	req.Candidates[1].Location.Lat = 91
	_, err := Validate(req)
	require.ErrorIs(t, err, geo.ErrInvalidCoordinate)

	_, err = Validate(Request{Candidates: abc(), Start: &geo.Point{Lat: 0, Lng: 200}})
	require.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestValidateDefaults(t *testing.T) {
	in := abc()
	v, err := Validate(Request{Candidates: in})
	require.NoError(t, err)
	assert.Equal(t, AlgoHybrid, v.Algorithm)
	require.NotNil(t, v.Start)
	assert.Equal(t, in[0].Location, *v.Start)

	v.Candidates[0].BinID = "changed"
	assert.Equal(t, "A", in[0].BinID)
}

func TestEveryAlgorithmReturnsPermutation(t *testing.T) {
	o := newOptimizer(t)
	pool := randomPool(7, 40)
	want := make([]string, len(pool))
	for i, c := range pool {
		want[i] = c.BinID
	}
	sort.Strings(want)

	for _, algo := range Algorithms {
		t.Run(string(algo), func(t *testing.T) {
			r, err := o.Optimize(context.Background(), Request{Candidates: pool, Algorithm: algo})
			require.NoError(t, err)
			got := r.BinIDs()
			sort.Strings(got)
			assert.Equal(t, want, got)
			assert.Equal(t, len(pool), r.BinCount)
			for i, w := range r.Waypoints {
				assert.Equal(t, i+1, w.Order)
			}
		})
	}
}

func TestIdempotent(t *testing.T) {
	o := newOptimizer(t)
	pool := randomPool(11, 25)
	for _, algo := range Algorithms {
		a, err := o.Optimize(context.Background(), Request{Candidates: pool, Algorithm: algo})
		require.NoError(t, err)
		b, err := o.Optimize(context.Background(), Request{Candidates: pool, Algorithm: algo})
		require.NoError(t, err)
		assert.Equal(t, a, b, string(algo))
	}
}

func TestTwoOptNeverWorseThanGreedy(t *testing.T) {
	o := newOptimizer(t)
	for seed := int64(1); seed <= 10; seed++ {
		pool := randomPool(seed, 30)
		g, err := o.Optimize(context.Background(), Request{Candidates: pool, Algorithm: AlgoGreedy})
		require.NoError(t, err)
		two, err := o.Optimize(context.Background(), Request{Candidates: pool, Algorithm: AlgoTwoOpt})
		require.NoError(t, err)
		assert.LessOrEqual(t, two.TotalDistanceKm, g.TotalDistanceKm+1e-9, "seed %d", seed)
	}
}

func TestTwoOptUntanglesCrossing(t *testing.T) {
	cands := []Candidate{
		{BinID: "1", Location: geo.Point{Lat: 0, Lng: 1}},
		{BinID: "2", Location: geo.Point{Lat: 0, Lng: 2}},
		{BinID: "3", Location: geo.Point{Lat: 0, Lng: 3}},
		{BinID: "4", Location: geo.Point{Lat: 0, Lng: 4}},
	}
	tbl := newDistTable(geo.Point{}, cands)
	// 1 -> 3 -> 2 -> 4 doubles back once; reversing the middle pair fixes it.
	tour, passes, err := TwoOpt{}.improve(context.Background(), tbl, []int{0, 2, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, tour)
	assert.Equal(t, 2, passes)
	assert.InDelta(t, tbl.fromStart[3], tbl.pathLength(tour), 1e-9)
}

func TestTwoOptTimeoutMarksRouteTruncated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := randomPool(3, 20)
	order, err := TwoOpt{}.Order(ctx, pool[0].Location, pool)
	require.ErrorIs(t, err, ErrComputationTimeout)
	assert.Len(t, order, len(pool))

	o := newOptimizer(t)
	r, err := o.Optimize(ctx, Request{Candidates: pool, Algorithm: AlgoTwoOpt})
	require.NoError(t, err)
	assert.True(t, r.Truncated)
	assert.Len(t, r.Waypoints, len(pool))
}

func TestBuilderMetrics(t *testing.T) {
	b := NewBuilder(DefaultParams())
	cands := []Candidate{
		{BinID: "x", Location: geo.Point{Lat: 1, Lng: 0}, FillLevel: 50},
		{BinID: "y", Location: geo.Point{Lat: 2, Lng: 0}, FillLevel: 0},
	}
	r := b.Build(AlgoGreedy, cands, geo.Point{})
	d := geo.Haversine(geo.Point{}, geo.Point{Lat: 2})
	assert.InDelta(t, d, r.TotalDistanceKm, 1e-9)
	assert.InDelta(t, 10.0, r.Waypoints[0].EstimatedCollectionMinutes, 1e-9)
	assert.InDelta(t, 5.0, r.Waypoints[1].EstimatedCollectionMinutes, 1e-9)
	assert.InDelta(t, d/30*60+15, r.EstimatedTimeMinutes, 1e-9)
	assert.InDelta(t, 2/d, r.EfficiencyScore, 1e-12)

	// every bin at the start: zero distance, efficiency falls back to the bin count
	same := []Candidate{{BinID: "a"}, {BinID: "b"}}
	r = b.Build(AlgoGreedy, same, geo.Point{})
	assert.Zero(t, r.TotalDistanceKm)
	assert.Equal(t, 2.0, r.EfficiencyScore)
}

func TestCompareRecommendsMaxEfficiency(t *testing.T) {
	o := newOptimizer(t)
	pool := randomPool(5, 15)
	cmp, err := o.Compare(context.Background(), Request{Candidates: pool})
	require.NoError(t, err)
	require.Len(t, cmp.Algorithms, 4)
	for i, algo := range Algorithms {
		assert.Equal(t, string(algo), cmp.Algorithms[i].Algorithm)
	}

	var rec *model.Route
	for i := range cmp.Algorithms {
		if cmp.Algorithms[i].Algorithm == cmp.Recommended {
			rec = &cmp.Algorithms[i]
		}
	}
	require.NotNil(t, rec)
	for _, r := range cmp.Algorithms {
		assert.LessOrEqual(t, r.EfficiencyScore, rec.EfficiencyScore)
	}

	// concurrent fan-out matches sequential runs
	for i, algo := range Algorithms {
		r, err := o.Optimize(context.Background(), Request{Candidates: pool, Algorithm: algo})
		require.NoError(t, err)
		assert.Equal(t, r, cmp.Algorithms[i])
	}
}

func TestRecommendTieBreaks(t *testing.T) {
	routes := []model.Route{
		{Algorithm: "greedy", EfficiencyScore: 1, EstimatedTimeMinutes: 10},
		{Algorithm: "priority", EfficiencyScore: 1, EstimatedTimeMinutes: 9},
		{Algorithm: "hybrid", EfficiencyScore: 0.5, EstimatedTimeMinutes: 1},
		{Algorithm: "two_opt", EfficiencyScore: 1, EstimatedTimeMinutes: 10},
	}
	assert.Equal(t, "priority", Recommend(routes))

	routes[1].EstimatedTimeMinutes = 10
	assert.Equal(t, "two_opt", Recommend(routes))

	routes[2].EfficiencyScore = 1
	routes[2].EstimatedTimeMinutes = 10
	assert.Equal(t, "hybrid", Recommend(routes))

	assert.Equal(t, "", Recommend(nil))
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.AverageSpeedKmh = 0
	p.UrgencyWeight = -1
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "average_speed_kmh")
	assert.Contains(t, err.Error(), "urgency_weight")

	_, err = New(p)
	require.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AlgoHybrid, a)

	a, err = ParseAlgorithm("two_opt")
	require.NoError(t, err)
	assert.Equal(t, AlgoTwoOpt, a)

	_, err = ParseAlgorithm("ALNS")
	require.ErrorIs(t, err, ErrValidation)

	_, err = StrategyFor("nope", DefaultParams())
	require.ErrorIs(t, err, ErrValidation)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority(" High ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)
	assert.Equal(t, "high", p.String())

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNone, p)

	_, err = ParsePriority("urgent")
	require.ErrorIs(t, err, ErrValidation)
}
