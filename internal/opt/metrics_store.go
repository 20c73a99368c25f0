package opt

import (
	"sort"
	"sync"
	"time"
)

// RunStats summarizes the latest run of one algorithm.
type RunStats struct {
	Algorithm  Algorithm `json:"algorithm"`
	Bins       int       `json:"bins"`
	DistanceKm float64   `json:"distance_km"`
	DurationMs float64   `json:"duration_ms"`
	Truncated  bool      `json:"truncated,omitempty"`
	At         time.Time `json:"at"`
}

var (
	mu    sync.Mutex
	store = map[Algorithm]RunStats{}
)

// RecordRun keeps s as the latest run of its algorithm.
func RecordRun(s RunStats) {
	mu.Lock()
	store[s.Algorithm] = s
	mu.Unlock()
}

// LastRuns returns the latest run per algorithm, ordered by algorithm name.
func LastRuns() []RunStats {
	mu.Lock()
	defer mu.Unlock()
	out := make([]RunStats, 0, len(store))
	for _, v := range store {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Algorithm < out[j].Algorithm })
	return out
}
