package store

import (
	"context"
	"errors"
)

type cmdTag int64

func (c cmdTag) String() string      { return "INSERT 0 1" }
func (c cmdTag) RowsAffected() int64 { return int64(c) }

type fakeRows struct {
	data [][]any
	idx  int
	err  error
}

func newRows(data ...[]any) *fakeRows { return &fakeRows{data: data, idx: -1} }

func (r *fakeRows) Next() bool        { r.idx++; return r.idx < len(r.data) }
func (r *fakeRows) Err() error        { return r.err }
func (r *fakeRows) Close()            {}
func (r *fakeRows) Columns() []string { return nil }
func (r *fakeRows) Scan(dst ...any) error {
	row := r.data[r.idx]
	if len(dst) != len(row) {
		return errors.New("arity")
	}
	for i, v := range row {
		switch p := dst[i].(type) {
		case *string:
			*p = v.(string)
		case *int64:
			*p = v.(int64)
		default:
			return errors.New("unsupported dest")
		}
	}
	return nil
}

type fakeQuerier struct {
	tag     CommandTag
	execErr error
	rows    *fakeRows
	qErr    error
	lastSQL string
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (CommandTag, error) {
	f.lastSQL = sql
	return f.tag, f.execErr
}

func (f *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (Rows, error) {
	f.lastSQL = sql
	if f.qErr != nil {
		return nil, f.qErr
	}
	return f.rows, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) Row {
	f.lastSQL = sql
	if f.qErr != nil {
		return errRow{f.qErr}
	}
	f.rows.Next()
	return f.rows
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
