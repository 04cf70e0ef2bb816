// Package dispatch schedules continuation invocations.
//
// Lambda re-invokes the function asynchronously, Queue stores the
// continuation in postgres for a drain worker, and Inline keeps it in
// memory for callers that drive the chain themselves
package dispatch

import (
	"context"
	"encoding/json"
	"sync"

	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/services/ingest/domain"
)

// Kinds of dispatcher selectable through CORE_DISPATCH_KIND
const (
	KindLambda = "lambda"
	KindQueue  = "queue"
	KindInline = "inline"
)

// Kinds lists the accepted dispatcher kinds
var Kinds = []string{KindLambda, KindQueue, KindInline}

func payload(c domain.Continuation) ([]byte, error) {
	b, err := json.Marshal(c.Event)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDispatch, "encode continuation")
	}
	return b, nil
}

// Queue enqueues continuations in the ingest_continuations table
type Queue struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.StorageRepo]
}

// NewQueue builds a postgres backed dispatcher
func NewQueue(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo]) *Queue {
	if db == nil || binder == nil {
		panic("dispatch.Queue requires postgres")
	}
	return &Queue{DB: db, Binder: binder}
}

// Dispatch implements domain.Dispatcher
func (q *Queue) Dispatch(ctx context.Context, c domain.Continuation) error {
	b, err := payload(c)
	if err != nil {
		return err
	}
	var id int64
	err = repokit.InTx(ctx, q.DB, q.Binder, func(r domain.StorageRepo) error {
		var e error
		id, e = r.Enqueue(ctx, c.JobID, b)
		return e
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDispatch, "enqueue continuation")
	}
	logger.C(ctx).Debug().Int64("continuation", id).Int64("offset", c.Event.Offset).Msg("dispatch: queued")
	return nil
}

// Inline holds continuations in memory until Next takes them
type Inline struct {
	mu      sync.Mutex
	pending []domain.Continuation
}

// NewInline returns an empty in-memory dispatcher
func NewInline() *Inline { return &Inline{} }

// Dispatch implements domain.Dispatcher
func (d *Inline) Dispatch(_ context.Context, c domain.Continuation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, c)
	return nil
}

// Next pops the oldest continuation
func (d *Inline) Next() (domain.Continuation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return domain.Continuation{}, false
	}
	c := d.pending[0]
	d.pending = d.pending[1:]
	return c, true
}

// Len reports how many continuations are waiting
func (d *Inline) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
