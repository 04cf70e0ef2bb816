package store

import (
	"context"
	"errors"
	"testing"

	perr "rangeload/internal/platform/errors"
)

type runRow struct {
	JobID string
	Rows  int64
}

func scanRun(r Row) (runRow, error) {
	var x runRow
	err := r.Scan(&x.JobID, &x.Rows)
	return x, err
}

func TestExecOne(t *testing.T) {
	ctx := context.Background()
	if err := ExecOne(ctx, &fakeQuerier{tag: cmdTag(1)}, "update"); err != nil {
		t.Fatalf("ExecOne: %v", err)
	}
	if err := ExecOne(ctx, &fakeQuerier{tag: cmdTag(0)}, "update"); err == nil {
		t.Fatalf("expected affected-rows error")
	}
	boom := errors.New("boom")
	if err := ExecOne(ctx, &fakeQuerier{execErr: boom}, "update"); !errors.Is(err, boom) {
		t.Fatalf("expected exec error, got %v", err)
	}
}

func TestScalar(t *testing.T) {
	ctx := context.Background()
	v, err := Scalar[int64](ctx, &fakeQuerier{rows: newRows([]any{int64(42)})}, "select")
	if err != nil || v != 42 {
		t.Fatalf("Scalar = %d, %v", v, err)
	}
	if _, err := Scalar[int64](ctx, &fakeQuerier{qErr: errors.New("x")}, "select"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOneAndMany(t *testing.T) {
	ctx := context.Background()

	got, err := One(ctx, &fakeQuerier{rows: newRows([]any{"job-1", int64(10)})}, scanRun, "select")
	if err != nil || got.JobID != "job-1" || got.Rows != 10 {
		t.Fatalf("One = %+v, %v", got, err)
	}

	if _, err := One(ctx, &fakeQuerier{rows: newRows()}, scanRun, "select"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	two := newRows([]any{"a", int64(1)}, []any{"b", int64(2)})
	if _, err := One(ctx, &fakeQuerier{rows: two}, scanRun, "select"); err == nil {
		t.Fatalf("expected more-than-one error")
	}

	all, err := Many(ctx, &fakeQuerier{rows: newRows([]any{"a", int64(1)}, []any{"b", int64(2)})}, scanRun, "select")
	if err != nil || len(all) != 2 || all[1].JobID != "b" {
		t.Fatalf("Many = %+v, %v", all, err)
	}

	if _, err := Many(ctx, &fakeQuerier{qErr: errors.New("x")}, scanRun, "select"); err == nil {
		t.Fatalf("expected query error")
	}
}
