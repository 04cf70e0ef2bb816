// Package repo provides postgres access for the ingest ledger, continuation
// queue and range leases, plus the row sinks of every supported store
package repo

import (
	"context"
	"time"

	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/store"
	str "rangeload/internal/platform/strings"
	"rangeload/internal/services/ingest/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// maxErrText caps error text stored in the ledger and queue
const maxErrText = 2000

func errText(s string) any { return str.SQLNull(str.Truncate(s, maxErrText)) }

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// StartRun records an invocation as running (idempotent per invocation)
func (r *queries) StartRun(ctx context.Context, rs domain.RunStart) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO ingest_runs (invocation_id, job_id, bucket, object_key, start_offset, start_row_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'RUNNING')
		ON CONFLICT (invocation_id) DO UPDATE
		SET started_at = now(), status = 'RUNNING', error = null, finished_at = null
	`, rs.InvocationID, rs.JobID, rs.Bucket, rs.Key, rs.StartOffset, rs.StartRowCount)
	return perr.FromPostgres(err, "start ingest run")
}

// FinishRun records the terminal state of an invocation
func (r *queries) FinishRun(ctx context.Context, rf domain.RunFinish) error {
	_, err := r.q.Exec(ctx, `
		UPDATE ingest_runs SET
			finished_at = now(),
			status = $2,
			end_offset = $3,
			row_count = $4,
			rows_this_run = $5,
			skipped_rows = $6,
			total_size = $7,
			elapsed_ms = $8,
			error = $9
		WHERE invocation_id = $1
	`,
		rf.InvocationID, string(rf.Status), rf.EndOffset, rf.RowCount, rf.RowsThisRun,
		rf.SkippedRows, rf.TotalSize, rf.ElapsedMS, errText(rf.ErrText),
	)
	return perr.FromPostgres(err, "finish ingest run")
}

// Progress summarizes a job from its furthest invocation
func (r *queries) Progress(ctx context.Context, jobID string) (domain.JobProgress, error) {
	const q = `
		SELECT job_id, bucket, object_key, status,
			COALESCE(end_offset, start_offset), COALESCE(row_count, start_row_count),
			COALESCE(total_size, 0), COALESCE(error, ''),
			count(*) OVER (), COALESCE(sum(skipped_rows) OVER (), 0)::bigint,
			min(started_at) OVER (), COALESCE(finished_at, started_at)
		FROM ingest_runs
		WHERE job_id = $1
		ORDER BY start_offset DESC, started_at DESC
		LIMIT 1
	`
	p, err := store.One(ctx, r.q, func(row store.Row) (domain.JobProgress, error) {
		var p domain.JobProgress
		var status string
		var runs int64
		err := row.Scan(&p.JobID, &p.Bucket, &p.Key, &status,
			&p.Offset, &p.RowCount, &p.TotalSize, &p.Error,
			&runs, &p.Skipped, &p.StartedAt, &p.UpdatedAt)
		p.Status = domain.State(status)
		p.Runs = int(runs)
		return p, err
	}, q, jobID)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.JobProgress{}, perr.NotFoundf("job %s not found", jobID)
	}
	if err != nil {
		return domain.JobProgress{}, perr.FromPostgresf(err, "progress for job %s", jobID)
	}
	return p, nil
}

// Runs lists every invocation of a job in resume order
func (r *queries) Runs(ctx context.Context, jobID string) ([]domain.RunRecord, error) {
	runs, err := store.Many(ctx, r.q, func(row store.Row) (domain.RunRecord, error) {
		var rr domain.RunRecord
		var status string
		err := row.Scan(&rr.InvocationID, &status, &rr.StartOffset, &rr.EndOffset,
			&rr.RowCount, &rr.RowsThisRun, &rr.SkippedRows, &rr.ElapsedMS, &rr.Error,
			&rr.StartedAt, &rr.FinishedAt)
		rr.Status = domain.State(status)
		return rr, err
	}, `
		SELECT invocation_id, status, start_offset,
			COALESCE(end_offset, start_offset), COALESCE(row_count, start_row_count),
			COALESCE(rows_this_run, 0), COALESCE(skipped_rows, 0),
			COALESCE(elapsed_ms, 0)::bigint, COALESCE(error, ''),
			started_at, finished_at
		FROM ingest_runs
		WHERE job_id = $1
		ORDER BY start_offset, started_at
	`, jobID)
	if err != nil {
		return nil, perr.FromPostgresf(err, "runs for job %s", jobID)
	}
	if len(runs) == 0 {
		return nil, perr.NotFoundf("job %s not found", jobID)
	}
	return runs, nil
}

// Enqueue adds a continuation payload to the queue
func (r *queries) Enqueue(ctx context.Context, jobID string, payload []byte) (int64, error) {
	id, err := store.Scalar[int64](ctx, r.q, `
		INSERT INTO ingest_continuations (job_id, payload) VALUES ($1, $2::jsonb) RETURNING id
	`, jobID, string(payload))
	if err != nil {
		return 0, perr.FromPostgresf(err, "enqueue continuation for job %s", jobID)
	}
	return id, nil
}

// ClaimNext marks the oldest claimable continuation as running.
// Rows locked by another worker are skipped, so concurrent workers never share one.
// A running row whose claim is older than staleAfter is taken over
func (r *queries) ClaimNext(ctx context.Context, staleAfter time.Duration) (domain.QueuedContinuation, bool, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE ingest_continuations
		SET status = 'running', claimed_at = now(), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM ingest_continuations
			WHERE status = 'pending'
				OR (status = 'running' AND $1::bigint > 0
					AND claimed_at < now() - $1::bigint * interval '1 millisecond')
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, job_id, payload::text, attempts
	`, staleAfter.Milliseconds())
	if err != nil {
		return domain.QueuedContinuation{}, false, perr.FromPostgres(err, "claim continuation")
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.QueuedContinuation{}, false, rows.Err()
	}
	var c domain.QueuedContinuation
	var payload string
	var attempts int32
	if err := rows.Scan(&c.ID, &c.JobID, &payload, &attempts); err != nil {
		return domain.QueuedContinuation{}, false, err
	}
	c.Payload = []byte(payload)
	c.Attempts = int(attempts)
	return c, true, rows.Err()
}

// FinishQueued closes a claimed continuation; a non-empty msg marks it failed
func (r *queries) FinishQueued(ctx context.Context, id int64, msg string) error {
	status := "done"
	if msg != "" {
		status = "error"
	}
	err := store.ExecOne(ctx, r.q, `
		UPDATE ingest_continuations
		SET status = $2, error = $3, finished_at = $4
		WHERE id = $1
	`, id, status, errText(msg), time.Now().UTC())
	return perr.FromPostgresf(err, "finish continuation %d", id)
}

// ClaimRange inserts the (job, offset) lease, or takes over a running one
// older than staleAfter; false when the range is held or already done
func (r *queries) ClaimRange(ctx context.Context, jobID string, offset int64, staleAfter time.Duration) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO ingest_leases (job_id, start_offset)
		VALUES ($1, $2)
		ON CONFLICT (job_id, start_offset) DO UPDATE
		SET claimed_at = now()
		WHERE ingest_leases.status = 'running' AND $3::bigint > 0
			AND ingest_leases.claimed_at < now() - $3::bigint * interval '1 millisecond'
	`, jobID, offset, staleAfter.Milliseconds())
	if err != nil {
		return false, perr.FromPostgresf(err, "claim range %s@%d", jobID, offset)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishRange settles a claim: done keeps redeliveries out, failed frees the range
func (r *queries) FinishRange(ctx context.Context, jobID string, offset int64, failed bool) error {
	sql := `UPDATE ingest_leases SET status = 'done' WHERE job_id = $1 AND start_offset = $2`
	if failed {
		sql = `DELETE FROM ingest_leases WHERE job_id = $1 AND start_offset = $2`
	}
	_, err := r.q.Exec(ctx, sql, jobID, offset)
	return perr.FromPostgresf(err, "finish range %s@%d", jobID, offset)
}
