package domain

import (
	"context"
	"io"
	"time"

	"rangeload/internal/core/target"
)

// RunnerPort is the public port of the ingest module
type RunnerPort interface {
	Handle(ctx context.Context, ev Event) (Outcome, error)
}

// Object is an open byte range of a source object
type Object struct {
	Body io.ReadCloser
	// Size is the total object size, not the length of the range
	Size int64
}

// ObjectSource opens byte ranges of source objects
type ObjectSource interface {
	// OpenRange opens [offset, end). An offset at or past the end yields an empty body
	OpenRange(ctx context.Context, ref ObjectRef, offset int64) (Object, error)
	Delete(ctx context.Context, ref ObjectRef) error
}

// RowSink persists one record per call
type RowSink interface {
	Write(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}

// SinkOpener opens a RowSink for one invocation; the statement is built once here
type SinkOpener interface {
	OpenSink(ctx context.Context, d target.Descriptor) (RowSink, error)
}

// Dispatcher schedules exactly one follow-up invocation and does not wait for it
type Dispatcher interface {
	Dispatch(ctx context.Context, c Continuation) error
}

// Budget reports when an invocation must stop and hand over
type Budget interface {
	Low(ctx context.Context, rowsThisRun int64) bool
}

// StorageRepo is the postgres ledger, continuation queue and lease table
type StorageRepo interface {
	StartRun(ctx context.Context, rs RunStart) error
	FinishRun(ctx context.Context, rf RunFinish) error
	Progress(ctx context.Context, jobID string) (JobProgress, error)
	Runs(ctx context.Context, jobID string) ([]RunRecord, error)

	Enqueue(ctx context.Context, jobID string, payload []byte) (int64, error)
	// ClaimNext takes the oldest pending continuation, or a running one whose
	// claim is older than staleAfter (a worker died holding it); staleAfter <= 0 never reclaims
	ClaimNext(ctx context.Context, staleAfter time.Duration) (QueuedContinuation, bool, error)
	FinishQueued(ctx context.Context, id int64, errText string) error

	// ClaimRange is false while another claim on (job, offset) is running and
	// younger than staleAfter, or once a claim on it has succeeded
	ClaimRange(ctx context.Context, jobID string, offset int64, staleAfter time.Duration) (bool, error)
	// FinishRange marks the claim done, or drops it when failed so a retry can run
	FinishRange(ctx context.Context, jobID string, offset int64, failed bool) error
}
