// Package guardrails holds the time budget and lease helpers of an ingest invocation
package guardrails

import (
	"context"
	"time"
)

// Timeouts caps the side steps of an invocation. Zero means no extra limit
type Timeouts struct {
	// Delete caps removing the source object on completion
	Delete time.Duration

	// Ledger caps each run ledger write
	Ledger time.Duration

	// Dispatch caps scheduling the continuation
	Dispatch time.Duration
}

// ForDelete returns a sub context for deleting the source object
func ForDelete(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Delete)
}

// ForLedger returns a sub context for a ledger write
func ForLedger(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Ledger)
}

// ForDispatch returns a sub context for the continuation dispatch
func ForDispatch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Dispatch)
}

// Remaining returns the time until the deadline on ctx, and whether ctx has one.
// An expired deadline reports zero
func Remaining(ctx context.Context) (time.Duration, bool) {
	dl, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	return max(time.Until(dl), 0), true
}

// withChildTimeout picks the tighter of d and the parent remainder; never extends the parent
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem, ok := Remaining(parent); ok && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
