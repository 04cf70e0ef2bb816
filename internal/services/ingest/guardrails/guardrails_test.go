package guardrails

import (
	"context"
	"errors"
	"testing"
	"time"

	"rangeload/internal/modkit/repokit"
	"rangeload/internal/services/ingest/domain"
)

func TestBudgetLow(t *testing.T) {
	bg := context.Background()
	short, cancel := context.WithTimeout(bg, 2*time.Second)
	defer cancel()
	long, cancel2 := context.WithTimeout(bg, time.Hour)
	defer cancel2()

	cases := []struct {
		name string
		b    Budget
		ctx  context.Context
		rows int64
		want bool
	}{
		{"no deadline", Budget{}, bg, 1_000_000, false},
		{"plenty of time", Budget{}, long, 1, false},
		{"under default low water", Budget{}, short, 1, true},
		{"custom low water", Budget{LowWater: time.Second}, short, 1, false},
		{"row cap", Budget{MaxRows: 3}, bg, 3, true},
		{"row cap not reached", Budget{MaxRows: 3}, long, 2, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.b.Low(tc.ctx, tc.rows); got != tc.want {
				t.Fatalf("Low = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	if _, ok := Remaining(context.Background()); ok {
		t.Fatalf("background has no deadline")
	}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if rem, ok := Remaining(ctx); !ok || rem != 0 {
		t.Fatalf("expired = %v %v", rem, ok)
	}
}

func TestChildTimeoutNeverExtendsParent(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	child, cc := ForDispatch(parent, Timeouts{Dispatch: time.Hour})
	defer cc()
	pd, _ := parent.Deadline()
	cd, _ := child.Deadline()
	if cd.After(pd) {
		t.Fatalf("child deadline %v after parent %v", cd, pd)
	}

	free, fc := ForLedger(context.Background(), Timeouts{})
	defer fc()
	if _, ok := free.Deadline(); ok {
		t.Fatalf("zero timeout should not add a deadline")
	}
	capped, oc := ForDelete(context.Background(), Timeouts{Delete: time.Minute})
	defer oc()
	if _, ok := capped.Deadline(); !ok {
		t.Fatalf("delete timeout not applied")
	}
}

type leaseRepo struct {
	domain.StorageRepo
	status    map[int64]string
	staleSeen time.Duration
	settleErr error
}

func (r *leaseRepo) ClaimRange(_ context.Context, _ string, off int64, staleAfter time.Duration) (bool, error) {
	r.staleSeen = staleAfter
	if _, held := r.status[off]; held {
		return false, nil
	}
	r.status[off] = "running"
	return true, nil
}

func (r *leaseRepo) FinishRange(_ context.Context, _ string, off int64, failed bool) error {
	if r.settleErr != nil {
		return r.settleErr
	}
	if failed {
		delete(r.status, off)
		return nil
	}
	r.status[off] = "done"
	return nil
}

type txOnly struct{ repokit.TxRunner }

func (txOnly) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error { return fn(nil) }

func leaseOver(repo *leaseRepo, tx repokit.TxRunner) LeaseFunc {
	bind := repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return repo })
	return MakeRangeLease(tx, bind, LeaseOptions{StaleAfter: time.Minute, Settle: time.Second})
}

func TestRangeLease(t *testing.T) {
	repo := &leaseRepo{status: map[int64]string{}}
	lease := leaseOver(repo, txOnly{})

	runs := 0
	do := func(context.Context) error { runs++; return nil }
	if err := lease(context.Background(), "job", 8, do); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if repo.status[8] != "done" || repo.staleSeen != time.Minute {
		t.Fatalf("claim not closed: %v stale=%v", repo.status, repo.staleSeen)
	}
	err := lease(context.Background(), "job", 8, do)
	if !IsLeaseHeld(err) || runs != 1 {
		t.Fatalf("second claim err=%v runs=%d", err, runs)
	}

	boom := errors.New("pg down")
	failing := leaseOver(repo, txFail{boom})
	if err := failing(context.Background(), "job", 9, do); !errors.Is(err, boom) {
		t.Fatalf("tx error not surfaced: %v", err)
	}
}

func TestRangeLeaseFreedAfterFailedRun(t *testing.T) {
	repo := &leaseRepo{status: map[int64]string{}}
	lease := leaseOver(repo, txOnly{})
	sinkDown := errors.New("insert rejected")

	if err := lease(context.Background(), "job", 8, func(context.Context) error { return sinkDown }); !errors.Is(err, sinkDown) {
		t.Fatalf("run error not returned: %v", err)
	}
	if _, held := repo.status[8]; held {
		t.Fatalf("failed run kept its claim")
	}

	retried := false
	if err := lease(context.Background(), "job", 8, func(context.Context) error { retried = true; return nil }); err != nil || !retried {
		t.Fatalf("retry err=%v ran=%v", err, retried)
	}
}

func TestRangeLeaseSettleErrorKeepsRunResult(t *testing.T) {
	repo := &leaseRepo{status: map[int64]string{}, settleErr: errors.New("conn reset")}
	lease := leaseOver(repo, txOnly{})
	if err := lease(context.Background(), "job", 8, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("settle failure leaked into the run result: %v", err)
	}
}

type txFail struct{ err error }

func (f txFail) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, f.err }
func (f txFail) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, f.err }
func (f txFail) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (f txFail) Tx(context.Context, func(q repokit.Queryer) error) error          { return f.err }
