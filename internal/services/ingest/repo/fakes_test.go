package repo

import (
	"context"
	"errors"
	"time"

	"rangeload/internal/modkit/repokit"
)

type call struct {
	sql  string
	args []any
}

type tag int64

func (t tag) String() string      { return "OK" }
func (t tag) RowsAffected() int64 { return int64(t) }

type rows struct {
	data [][]any
	i    int
}

func (r *rows) Next() bool        { r.i++; return r.i <= len(r.data) }
func (r *rows) Err() error        { return nil }
func (r *rows) Close()            {}
func (r *rows) Columns() []string { return nil }
func (r *rows) Scan(dst ...any) error {
	row := r.data[r.i-1]
	if len(dst) != len(row) {
		return errors.New("arity")
	}
	for i, v := range row {
		switch p := dst[i].(type) {
		case *string:
			*p = v.(string)
		case *int64:
			*p = v.(int64)
		case *int32:
			*p = v.(int32)
		case *time.Time:
			*p = v.(time.Time)
		case **time.Time:
			if v != nil {
				ts := v.(time.Time)
				*p = &ts
			}
		default:
			return errors.New("unsupported dest")
		}
	}
	return nil
}

type fakeQ struct {
	calls   []call
	affect  int64
	execErr error
	rows    [][]any
}

func (f *fakeQ) Exec(_ context.Context, sql string, args ...any) (repokit.CommandTag, error) {
	f.calls = append(f.calls, call{sql, args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	return tag(f.affect), nil
}

func (f *fakeQ) Query(_ context.Context, sql string, args ...any) (repokit.Rows, error) {
	f.calls = append(f.calls, call{sql, args})
	return &rows{data: f.rows}, nil
}

func (f *fakeQ) QueryRow(_ context.Context, sql string, args ...any) repokit.Row {
	f.calls = append(f.calls, call{sql, args})
	r := &rows{data: f.rows}
	r.Next()
	return r
}

func (f *fakeQ) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error { return fn(f) }

type fakeExec struct {
	stmt string
	args [][]any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, stmt string, args ...any) error {
	f.stmt = stmt
	if f.err != nil {
		return f.err
	}
	f.args = append(f.args, args)
	return nil
}

func (f *fakeExec) Query(context.Context, string, ...any) (repokit.Rows, error) { return nil, nil }
func (f *fakeExec) Close() error                                                { return nil }
