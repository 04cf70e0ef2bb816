package service

import (
	"context"
	"strings"

	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/platform/net/http/bind"
	"rangeload/internal/services/ingest/domain"
	"rangeload/internal/services/ingest/guardrails"

	"github.com/google/uuid"
)

// Submit validates ev, assigns a job id when it has none and dispatches it
// as the first invocation of the job. It does not wait for the run
func (s *Service) Submit(ctx context.Context, ev domain.Event) (string, error) {
	resume, err := ev.Resume()
	if err == nil {
		err = bind.Struct(resume)
	}
	if err != nil {
		return "", err
	}
	if ev.JobID == "" {
		ev.JobID = uuid.NewString()
	}
	dctx, cancel := guardrails.ForDispatch(ctx, s.Cfg.Timeouts)
	defer cancel()
	if err := s.Dispatch.Dispatch(dctx, domain.Continuation{JobID: ev.JobID, Event: ev}); err != nil {
		return "", ensureCode(err, perr.ErrorCodeDispatch, "dispatch job")
	}
	logger.C(ctx).Info().Str("job_id", ev.JobID).Str("object", resume.Object.String()).
		Int64("offset", resume.Offset).Msg("ingest: job submitted")
	return ev.JobID, nil
}

// Progress reads the ledger view of a job
func (s *Service) Progress(ctx context.Context, jobID string) (domain.JobProgress, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.JobProgress{}, perr.WithField(perr.InvalidArgf("job id is required"), "id")
	}
	if s.DB == nil || s.Binder == nil {
		return domain.JobProgress{}, perr.Unavailablef("ingest ledger not configured")
	}
	return s.Binder.Bind(s.DB).Progress(ctx, jobID)
}

// Runs lists the ledger rows of a job, one per invocation
func (s *Service) Runs(ctx context.Context, jobID string) ([]domain.RunRecord, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, perr.WithField(perr.InvalidArgf("job id is required"), "id")
	}
	if s.DB == nil || s.Binder == nil {
		return nil, perr.Unavailablef("ingest ledger not configured")
	}
	return s.Binder.Bind(s.DB).Runs(ctx, jobID)
}
