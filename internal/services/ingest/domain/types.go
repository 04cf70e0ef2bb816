// Package domain holds the types and ports of the resumable ingest job
package domain

import (
	"time"

	"rangeload/internal/core/csvrecord"
)

// Record is one parsed source row
type Record = csvrecord.Record

// ObjectRef names a source object
type ObjectRef struct {
	Bucket string
	Key    string `validate:"required"`
}

func (r ObjectRef) String() string {
	if r.Bucket == "" {
		return r.Key
	}
	return r.Bucket + "/" + r.Key
}

// ResumeState is where an invocation starts, and where the next one will.
// Offset is always the count of source bytes fully consumed
type ResumeState struct {
	Object     ObjectRef
	Offset     int64 `validate:"min=0"`
	RowCount   int64 `validate:"min=0"`
	Fieldnames []string
}

// State is the terminal state of one invocation
type State string

const (
	// StateCompleted means the object is fully consumed
	StateCompleted State = "COMPLETED"
	// StateContinuing means a continuation was dispatched
	StateContinuing State = "CONTINUING"
	// StateFailed means the invocation stopped on an error and dispatched nothing
	StateFailed State = "FAILED"
	// StateDuplicate means another invocation already owns this byte range
	StateDuplicate State = "DUPLICATE"
)

// Outcome is what one invocation did
type Outcome struct {
	JobID        string
	InvocationID string
	State        State
	// Resume is the state after the last committed record
	Resume       ResumeState
	RowsThisRun  int64
	SkippedRows  int64
	BytesThisRun int64
	TotalSize    int64
	Elapsed      time.Duration
}

// Continuation is the message that schedules the next invocation
type Continuation struct {
	JobID string
	Event Event
}

// RunStart is recorded when an invocation begins streaming
type RunStart struct {
	JobID         string
	InvocationID  string
	Bucket        string
	Key           string
	StartOffset   int64
	StartRowCount int64
}

// RunFinish is recorded on every exit path of an invocation
type RunFinish struct {
	InvocationID string
	Status       State
	EndOffset    int64
	RowCount     int64
	RowsThisRun  int64
	SkippedRows  int64
	TotalSize    int64
	ElapsedMS    int
	ErrText      string
}

// JobProgress is the ledger view of a job across its invocations
type JobProgress struct {
	JobID     string    `json:"job_id"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Status    State     `json:"status"`
	Offset    int64     `json:"offset"`
	RowCount  int64     `json:"row_count"`
	Skipped   int64     `json:"skipped_rows"`
	TotalSize int64     `json:"total_size"`
	Runs      int       `json:"runs"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunRecord is one ledger row: a single invocation of a job
type RunRecord struct {
	InvocationID string     `json:"invocation_id"`
	Status       State      `json:"status"`
	StartOffset  int64      `json:"start_offset"`
	EndOffset    int64      `json:"end_offset"`
	RowCount     int64      `json:"row_count"`
	RowsThisRun  int64      `json:"rows_this_run"`
	SkippedRows  int64      `json:"skipped_rows"`
	ElapsedMS    int64      `json:"elapsed_ms"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// QueuedContinuation is a claimed row of the continuation queue
type QueuedContinuation struct {
	ID       int64
	JobID    string
	Payload  []byte
	Attempts int
}
