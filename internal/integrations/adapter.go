// Package integrations adapts external bin inventories into optimizer input.
package integrations

import (
	"context"

	"wasteroute/internal/model"
)

// BinSource yields the bins to route from an external system.
type BinSource interface {
	Name() string
	FetchBins(ctx context.Context) ([]model.BinInput, error)
}

// FilterByFill keeps bins at or above minFill percent, the usual cut for a
// collection run.
func FilterByFill(bins []model.BinInput, minFill float64) []model.BinInput {
	out := make([]model.BinInput, 0, len(bins))
	for _, b := range bins {
		if b.FillLevel >= minFill {
			out = append(out, b)
		}
	}
	return out
}
