package guardrails

import (
	"context"
	"errors"
	"time"

	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/services/ingest/domain"
)

// DefaultLeaseStale is how long a running claim blocks others when its holder
// never settled it (the host killed the invocation mid stream)
const DefaultLeaseStale = 30 * time.Minute

// ErrLeaseHeld signals another invocation already claimed this byte range
var ErrLeaseHeld = perr.New(perr.ErrorCodeConflict, "ingest: range lease already held")

// LeaseFunc claims (jobID, offset) and runs do when the claim is new
type LeaseFunc func(ctx context.Context, jobID string, offset int64, do func(context.Context) error) error

// LeaseOptions tunes MakeRangeLease
type LeaseOptions struct {
	// StaleAfter lets a new claim take over a running one this old; <= 0 never
	StaleAfter time.Duration
	// Settle caps the write that closes or frees the claim; 0 = no extra limit
	Settle time.Duration
}

// MakeRangeLease returns a LeaseFunc over the ingest_leases table.
// A claim that ends well is kept, so a redelivery of the same continuation
// (same job, same offset) gets ErrLeaseHeld. A claim whose run failed is
// dropped so the host retry or an operator re-drive runs it again
func MakeRangeLease(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], opt LeaseOptions) LeaseFunc {
	return func(ctx context.Context, jobID string, offset int64, do func(context.Context) error) error {
		var claimed bool
		err := repokit.InTx(ctx, db, binder, func(r domain.StorageRepo) error {
			ok, err := r.ClaimRange(ctx, jobID, offset, opt.StaleAfter)
			claimed = ok
			return err
		})
		if err != nil {
			return err
		}
		if !claimed {
			return ErrLeaseHeld
		}

		runErr := do(ctx)

		sctx, cancel := withChildTimeout(context.WithoutCancel(ctx), opt.Settle)
		defer cancel()
		serr := repokit.InTx(sctx, db, binder, func(r domain.StorageRepo) error {
			return r.FinishRange(sctx, jobID, offset, runErr != nil)
		})
		if serr != nil {
			// a run that failed and kept its claim blocks retries until StaleAfter
			logger.C(ctx).Warn().Err(serr).Int64("offset", offset).Bool("run_failed", runErr != nil).
				Msg("ingest: settling range lease failed")
		}
		return runErr
	}
}

// IsLeaseHeld reports a lost claim
func IsLeaseHeld(err error) bool { return errors.Is(err, ErrLeaseHeld) }
