package guardrails

import (
	"context"
	"time"
)

// DefaultLowWater is the headroom kept to build and dispatch a continuation
const DefaultLowWater = 10 * time.Second

// Budget is the cooperative stop signal of the ingest loop.
// It turns low once the context deadline is within LowWater, or once
// MaxRows rows were handled in this run. A context without a deadline
// never runs low on time
type Budget struct {
	LowWater time.Duration
	MaxRows  int64
}

// Low implements domain.Budget
func (b Budget) Low(ctx context.Context, rowsThisRun int64) bool {
	if b.MaxRows > 0 && rowsThisRun >= b.MaxRows {
		return true
	}
	lw := b.LowWater
	if lw <= 0 {
		lw = DefaultLowWater
	}
	rem, ok := Remaining(ctx)
	return ok && rem < lw
}
