// Package repokit binds domain repositories to the sql seam of the platform store
package repokit

import (
	"context"

	"rangeload/internal/platform/store"
)

// Queryer is the read and write surface a bound repo runs against
type Queryer = store.RowQuerier

// TxRunner opens transactions; the postgres store satisfies it
type TxRunner = store.TxRunner

type (
	// Rows are the result set of a query
	Rows = store.Rows

	// Row is a single row result from a query
	Row = store.Row

	// CommandTag reports the outcome of an Exec
	CommandTag = store.CommandTag
)

// Binder turns a Queryer (pool or open tx) into a domain repo
type Binder[T any] interface {
	Bind(Queryer) T
}

// BindFunc adapts a plain function to Binder
type BindFunc[T any] func(Queryer) T

// Bind calls f
func (f BindFunc[T]) Bind(q Queryer) T { return f(q) }

// InTx runs fn with a repo bound to a fresh transaction on db.
// The transaction commits when fn returns nil and rolls back otherwise
func InTx[T any](ctx context.Context, db TxRunner, b Binder[T], fn func(T) error) error {
	if db == nil || b == nil {
		panic("repokit: InTx needs a TxRunner and a Binder")
	}
	return db.Tx(ctx, func(q Queryer) error { return fn(b.Bind(q)) })
}
