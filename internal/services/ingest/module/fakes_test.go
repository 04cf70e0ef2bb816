package module

import (
	"context"
	"fmt"
)

type recordingCQL struct {
	stmts []string
	args  [][]any
}

func (r *recordingCQL) Exec(_ context.Context, stmt string, args ...any) error {
	r.stmts = append(r.stmts, stmt)
	r.args = append(r.args, args)
	return nil
}

func (r *recordingCQL) Close() error { return nil }

func typeName(v any) string { return fmt.Sprintf("%T", v) }
