package opt

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"wasteroute/internal/geo"
)

var (
	// ErrValidation is wrapped by every request validation failure.
	ErrValidation = errors.New("validation error")
	// ErrComputationTimeout is returned when two-opt refinement is cut short by its context.
	ErrComputationTimeout = errors.New("computation timeout")
)

// ValidationError describes why a request was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Priority is an explicit urgency hint attached to a bin.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// ParsePriority maps "low", "medium", "high" (any case) to a Priority. Empty means none.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityNone, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityNone, invalid("priority", "unknown priority %q (allowed: high, medium, low)", s)
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return ""
}

// Score is the urgency value a hint stands for on the 0-100 fill scale.
// The bands match the high/medium cut-offs used when bins are classified by fill level.
func (p Priority) Score() float64 {
	switch p {
	case PriorityHigh:
		return 90
	case PriorityMedium:
		return 70
	case PriorityLow:
		return 40
	}
	return 0
}

// Candidate is a bin eligible for routing.
type Candidate struct {
	BinID     string
	Location  geo.Point
	FillLevel float64
	Hint      Priority
}

// Urgency returns the hint score when a hint is present, otherwise the fill level.
func (c Candidate) Urgency() float64 {
	if c.Hint != PriorityNone {
		return c.Hint.Score()
	}
	return c.FillLevel
}

// Request is one optimization call.
type Request struct {
	Candidates []Candidate
	// Start defaults to the first candidate's location when nil.
	Start     *geo.Point
	Algorithm Algorithm
	CrewID    string
}

// MinCandidates is the smallest pool a request may carry.
const MinCandidates = 2

// Validate checks req and returns a normalized copy with Start filled in and
// Algorithm defaulted to hybrid. The caller's candidate slice is not retained.
func Validate(req Request) (Request, error) {
	if len(req.Candidates) < MinCandidates {
		return Request{}, invalid("candidates", "at least %d candidates required, got %d", MinCandidates, len(req.Candidates))
	}
	algo := req.Algorithm
	if algo == "" {
		algo = DefaultAlgorithm
	}
	if !algo.Valid() {
		return Request{}, invalid("algorithm", "unknown algorithm %q (allowed: %s)", string(algo), strings.Join(algorithmNames(), ", "))
	}

	seen := make(map[string]struct{}, len(req.Candidates))
	cands := make([]Candidate, len(req.Candidates))
	for i, c := range req.Candidates {
		if strings.TrimSpace(c.BinID) == "" {
			return Request{}, invalid(fmt.Sprintf("candidates[%d].bin_id", i), "must be non-empty")
		}
		if _, dup := seen[c.BinID]; dup {
			return Request{}, invalid(fmt.Sprintf("candidates[%d].bin_id", i), "duplicate bin id %q", c.BinID)
		}
		seen[c.BinID] = struct{}{}
		if math.IsNaN(c.FillLevel) || c.FillLevel < 0 || c.FillLevel > 100 {
			return Request{}, invalid(fmt.Sprintf("candidates[%d].fill_level_percent", i), "%v outside [0,100]", c.FillLevel)
		}
		if c.Hint < PriorityNone || c.Hint > PriorityHigh {
			return Request{}, invalid(fmt.Sprintf("candidates[%d].priority", i), "unknown priority %d", int(c.Hint))
		}
		if err := c.Location.Validate(); err != nil {
			return Request{}, fmt.Errorf("candidate %q: %w", c.BinID, err)
		}
		cands[i] = c
	}

	start := cands[0].Location
	if req.Start != nil {
		if err := req.Start.Validate(); err != nil {
			return Request{}, fmt.Errorf("start: %w", err)
		}
		start = *req.Start
	}

	return Request{
		Candidates: cands,
		Start:      &start,
		Algorithm:  algo,
		CrewID:     req.CrewID,
	}, nil
}
