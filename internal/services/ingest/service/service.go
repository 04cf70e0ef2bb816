// Package service runs ingest invocations: stream a byte range of the source
// object into the row sink until the input or the time budget runs out, then
// complete or hand over to a continuation
package service

import (
	"context"
	"io"
	"time"

	"rangeload/internal/core/csvrecord"
	"rangeload/internal/core/linereader"
	"rangeload/internal/core/target"
	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/platform/net/http/bind"
	"rangeload/internal/services/ingest/domain"
	"rangeload/internal/services/ingest/guardrails"

	"github.com/google/uuid"
)

// RowErrorPolicy decides what a malformed row does to the invocation
type RowErrorPolicy string

const (
	// RowErrorsAbort fails the invocation on the first malformed row
	RowErrorsAbort RowErrorPolicy = "abort"
	// RowErrorsSkip logs and counts malformed rows and moves on
	RowErrorsSkip RowErrorPolicy = "skip"
)

// Config holds the per-invocation knobs
type Config struct {
	// Reading
	ChunkSize int                // linereader chunk; <=0 -> 1024
	Decoder   linereader.Decoder // nil -> strict utf-8
	HasHeader bool
	Comma     rune
	// MaxRecordBytes caps a record held open by a quote; 0 -> csvrecord default
	MaxRecordBytes int

	// Policy
	RowErrors        RowErrorPolicy
	DeleteOnComplete bool

	// Bookkeeping
	EnableLeases  bool
	EnableLedger  bool
	ProgressEvery int64 // log a progress line every N written rows; 0 = off

	Timeouts guardrails.Timeouts
}

// Service implements domain.RunnerPort
type Service struct {
	DB       repokit.TxRunner                   // nil when neither ledger nor queue is used
	Binder   repokit.Binder[domain.StorageRepo] // binds q -> domain.StorageRepo
	Source   domain.ObjectSource
	Sinks    domain.SinkOpener
	Dispatch domain.Dispatcher
	Budget   domain.Budget
	Target   target.Descriptor
	Cfg      Config

	// Lease claims (job, offset) and runs do; nil disables leasing
	Lease guardrails.LeaseFunc
}

// New constructs the ingest service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.StorageRepo],
	src domain.ObjectSource,
	sinks domain.SinkOpener,
	dispatch domain.Dispatcher,
	budget domain.Budget,
	tgt target.Descriptor,
	cfg Config,
	lease guardrails.LeaseFunc,
) *Service {
	if src == nil {
		panic("ingest.Service requires a non nil ObjectSource")
	}
	if sinks == nil {
		panic("ingest.Service requires a non nil SinkOpener")
	}
	if dispatch == nil {
		panic("ingest.Service requires a non nil Dispatcher")
	}
	if budget == nil {
		budget = guardrails.Budget{}
	}
	if cfg.RowErrors == "" {
		cfg.RowErrors = RowErrorsAbort
	}
	return &Service{
		DB: db, Binder: binder,
		Source: src, Sinks: sinks, Dispatch: dispatch, Budget: budget,
		Target: tgt, Cfg: cfg, Lease: lease,
	}
}

// Handle implements domain.RunnerPort. It returns an error exactly when the
// outcome is FAILED; a FAILED invocation never dispatches a continuation
func (s *Service) Handle(ctx context.Context, ev domain.Event) (domain.Outcome, error) {
	resume, err := ev.Resume()
	if err == nil {
		err = bind.Struct(resume)
	}
	if err != nil {
		logger.C(ctx).Error().Err(err).Msg("ingest: rejected event")
		return domain.Outcome{State: domain.StateFailed}, err
	}

	if ev.JobID == "" {
		ev.JobID = uuid.NewString()
	}
	seed := domain.Outcome{
		JobID:        ev.JobID,
		InvocationID: uuid.NewString(),
		State:        domain.StateFailed,
		Resume:       resume,
	}
	ctx = logger.WithJob(ctx, seed.JobID, seed.InvocationID)

	if s.Lease == nil || !s.Cfg.EnableLeases {
		return s.run(ctx, ev, seed)
	}

	out := seed
	err = s.Lease(ctx, ev.JobID, resume.Offset, func(ctx context.Context) error {
		var runErr error
		out, runErr = s.run(ctx, ev, seed)
		return runErr
	})
	if guardrails.IsLeaseHeld(err) {
		logger.C(ctx).Warn().
			Str("bucket", resume.Object.Bucket).Str("key", resume.Object.Key).Int64("offset", resume.Offset).
			Msg("ingest: byte range already claimed, dropping duplicate delivery")
		seed.State = domain.StateDuplicate
		return seed, nil
	}
	return out, err
}

func (s *Service) run(ctx context.Context, ev domain.Event, seed domain.Outcome) (out domain.Outcome, retErr error) {
	out = seed
	resume := seed.Resume
	ref := resume.Object
	started := time.Now()

	lg := logger.C(ctx).With().Str("bucket", ref.Bucket).Str("key", ref.Key).Logger()
	lg.Info().Int64("offset", resume.Offset).Int64("row_count", resume.RowCount).
		Str("state", "INIT").Msg("ingest: invocation start")

	s.startRun(ctx, out)
	defer func() {
		out.Elapsed = time.Since(started)
		if retErr != nil {
			out.State = domain.StateFailed
			lg.Error().Err(retErr).Str("code", perr.CodeOf(retErr).String()).
				Int64("offset", out.Resume.Offset).Int64("row_count", out.Resume.RowCount).
				Str("state", string(out.State)).Msg("ingest: invocation failed")
		}
		s.finishRun(ctx, out, retErr)
	}()

	obj, err := s.Source.OpenRange(ctx, ref, resume.Offset)
	if err != nil {
		return out, ensureCode(err, perr.ErrorCodeSource, "open source range")
	}
	defer func() { _ = obj.Body.Close() }()
	out.TotalSize = obj.Size

	sink, err := s.Sinks.OpenSink(ctx, s.Target)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := sink.Close(ctx); cerr != nil {
			lg.Warn().Err(cerr).Msg("ingest: sink close failed")
		}
	}()

	lr := linereader.New(obj.Body,
		linereader.WithChunkSize(s.Cfg.ChunkSize),
		linereader.WithDecoder(s.Cfg.Decoder),
		linereader.WithBaseOffset(resume.Offset),
	)
	// a header lives only at byte 0; mid-object records without inherited
	// fieldnames are positional
	atStart := resume.Offset == 0
	if !atStart && s.Cfg.HasHeader && resume.Fieldnames == nil {
		lg.Warn().Int64("offset", resume.Offset).Msg("ingest: resuming without fieldnames, records are positional")
	}
	parser := csvrecord.New(lr, csvrecord.Options{
		Fieldnames:     resume.Fieldnames,
		HasHeader:      s.Cfg.HasHeader && atStart,
		Comma:          s.Cfg.Comma,
		MaxRecordBytes: s.Cfg.MaxRecordBytes,
	})

	// commit moves the resume point past everything handled so far.
	// The parser never reads past the record it returned, so this is exact
	commit := func() {
		out.BytesThisRun = lr.BytesEmitted()
		out.Resume.Offset = resume.Offset + out.BytesThisRun
		if out.Resume.Fieldnames == nil {
			out.Resume.Fieldnames = parser.Fieldnames()
		}
	}

	lg.Info().Int64("offset", resume.Offset).Int64("total_size", obj.Size).
		Str("state", "STREAMING").Msg("ingest: streaming")

	low := false
	for !low {
		rec, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err == nil {
			err = sink.Write(ctx, rec)
		}
		switch {
		case err == nil:
			out.RowsThisRun++
			out.Resume.RowCount++
		case s.skippable(err):
			out.SkippedRows++
			lg.Warn().Err(err).Int64("offset", resume.Offset+lr.BytesEmitted()).
				Int64("skipped_rows", out.SkippedRows).Msg("ingest: row skipped")
		default:
			return out, err
		}
		commit()

		if n := s.Cfg.ProgressEvery; n > 0 && err == nil && out.RowsThisRun%n == 0 {
			rem, _ := guardrails.Remaining(ctx)
			lg.Info().Int64("offset", out.Resume.Offset).Int64("row_count", out.Resume.RowCount).
				Int64("rows_this_run", out.RowsThisRun).Dur("remaining", rem).Msg("ingest: progress")
		}
		low = s.Budget.Low(ctx, out.RowsThisRun+out.SkippedRows)
	}
	commit()

	if low && out.Resume.Offset < obj.Size {
		return s.continueJob(ctx, ev, out, &lg)
	}
	return s.complete(ctx, out, &lg), nil
}

func (s *Service) continueJob(ctx context.Context, ev domain.Event, out domain.Outcome, lg *logger.Logger) (domain.Outcome, error) {
	lg.Info().Int64("offset", out.Resume.Offset).Int64("row_count", out.Resume.RowCount).
		Str("state", string(domain.StateContinuing)).Msg("ingest: budget low, handing over")

	dctx, cancel := guardrails.ForDispatch(ctx, s.Cfg.Timeouts)
	defer cancel()
	c := domain.Continuation{JobID: out.JobID, Event: ev.Continue(out.Resume)}
	if err := s.Dispatch.Dispatch(dctx, c); err != nil {
		return out, ensureCode(err, perr.ErrorCodeDispatch, "dispatch continuation")
	}
	out.State = domain.StateContinuing
	lg.Info().Int64("offset", out.Resume.Offset).Int64("rows_this_run", out.RowsThisRun).
		Msg("ingest: continuation dispatched")
	return out, nil
}

func (s *Service) complete(ctx context.Context, out domain.Outcome, lg *logger.Logger) domain.Outcome {
	out.State = domain.StateCompleted
	lg.Info().Int64("offset", out.Resume.Offset).Int64("total_rows", out.Resume.RowCount).
		Int64("total_size", out.TotalSize).Str("state", string(out.State)).Msg("ingest: all done")

	if !s.Cfg.DeleteOnComplete {
		return out
	}
	// a failed delete must not fail the job: a host retry would replay rows
	dctx, cancel := guardrails.ForDelete(ctx, s.Cfg.Timeouts)
	defer cancel()
	if err := s.Source.Delete(dctx, out.Resume.Object); err != nil {
		lg.Error().Err(err).Msg("ingest: delete source object failed")
		return out
	}
	lg.Info().Msg("ingest: source object deleted")
	return out
}

func (s *Service) skippable(err error) bool {
	if s.Cfg.RowErrors != RowErrorsSkip {
		return false
	}
	e, ok := perr.As(err)
	// row 0 is the header; without it nothing can be mapped
	return ok && e.Code() == perr.ErrorCodeRowFormat && e.Row() > 0
}

func (s *Service) ledgerOn() bool { return s.Cfg.EnableLedger && s.DB != nil && s.Binder != nil }

// startRun is best effort: the ledger must never block ingest
func (s *Service) startRun(ctx context.Context, out domain.Outcome) {
	if !s.ledgerOn() {
		return
	}
	lctx, cancel := guardrails.ForLedger(ctx, s.Cfg.Timeouts)
	defer cancel()
	err := repokit.InTx(lctx, s.DB, s.Binder, func(r domain.StorageRepo) error {
		return r.StartRun(lctx, domain.RunStart{
			JobID:         out.JobID,
			InvocationID:  out.InvocationID,
			Bucket:        out.Resume.Object.Bucket,
			Key:           out.Resume.Object.Key,
			StartOffset:   out.Resume.Offset,
			StartRowCount: out.Resume.RowCount,
		})
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("ingest: ledger start failed")
	}
}

func (s *Service) finishRun(ctx context.Context, out domain.Outcome, runErr error) {
	if !s.ledgerOn() {
		return
	}
	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}
	lctx, cancel := guardrails.ForLedger(context.WithoutCancel(ctx), s.Cfg.Timeouts)
	defer cancel()
	err := repokit.InTx(lctx, s.DB, s.Binder, func(r domain.StorageRepo) error {
		return r.FinishRun(lctx, domain.RunFinish{
			InvocationID: out.InvocationID,
			Status:       out.State,
			EndOffset:    out.Resume.Offset,
			RowCount:     out.Resume.RowCount,
			RowsThisRun:  out.RowsThisRun,
			SkippedRows:  out.SkippedRows,
			TotalSize:    out.TotalSize,
			ElapsedMS:    int(out.Elapsed.Milliseconds()),
			ErrText:      errText,
		})
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("ingest: ledger finish failed")
	}
}

// ensureCode keeps structured errors as they are and classifies the rest
func ensureCode(err error, code perr.ErrorCode, msg string) error {
	if _, ok := perr.As(err); ok {
		return err
	}
	return perr.Wrap(err, code, msg)
}
