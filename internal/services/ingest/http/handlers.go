// Package http provides http transport for ingest jobs
package http

import (
	"context"
	stdhttp "net/http"

	"rangeload/internal/core/version"
	perr "rangeload/internal/platform/errors"
	phttp "rangeload/internal/platform/net/http"
	"rangeload/internal/platform/net/http/bind"
	"rangeload/internal/services/ingest/domain"
)

// Jobs is what the transport needs from the ingest service
type Jobs interface {
	Submit(ctx context.Context, ev domain.Event) (string, error)
	Progress(ctx context.Context, jobID string) (domain.JobProgress, error)
	Runs(ctx context.Context, jobID string) ([]domain.RunRecord, error)
}

// SubmitInput starts a job for one object
type SubmitInput struct {
	Bucket string `json:"bucket" validate:"required"`
	Key    string `json:"key" validate:"required"`
	JobID  string `json:"job_id,omitempty" validate:"omitempty,max=128"`
}

// Submitted is the body of a 202
type Submitted struct {
	JobID string `json:"job_id"`
}

// Register mounts job endpoints on r
func Register(r phttp.Router, jobs Jobs, health func(context.Context) error) {
	h := &handlers{jobs: jobs, health: health}

	r.Post("/v1/jobs", phttp.Handle(h.submit))
	// raw S3 notification, as delivered to the function
	r.Post("/v1/events", phttp.Handle(h.event))
	r.Get("/v1/jobs/{id}", phttp.Handle(h.progress))
	r.Get("/v1/jobs/{id}/runs", phttp.Handle(h.runs))
	r.Get("/healthz", phttp.Handle(h.healthz))
}

type handlers struct {
	jobs   Jobs
	health func(context.Context) error
}

// @Summary Start a job for one object
// @Tags Jobs
// @Accept json
// @Produce json
// @Param body body SubmitInput true "object to ingest"
// @Success 202 {object} Submitted
// @Router /v1/jobs [post]
func (h *handlers) submit(r *stdhttp.Request) phttp.Response {
	in, err := bind.ParseJSON[SubmitInput](r)
	if err != nil {
		return phttp.Error(err)
	}
	ev := domain.NewObjectEvent(domain.ObjectRef{Bucket: in.Bucket, Key: in.Key})
	ev.JobID = in.JobID
	return h.accept(r, ev)
}

// @Summary Start a job from a raw S3 notification
// @Tags Jobs
// @Accept json
// @Produce json
// @Success 202 {object} Submitted
// @Router /v1/events [post]
func (h *handlers) event(r *stdhttp.Request) phttp.Response {
	ev, err := bind.ParseJSON[domain.Event](r, bind.JSONOptions{MaxBytes: 1 << 20})
	if err != nil {
		return phttp.Error(err)
	}
	return h.accept(r, ev)
}

func (h *handlers) accept(r *stdhttp.Request, ev domain.Event) phttp.Response {
	id, err := h.jobs.Submit(r.Context(), ev)
	if err != nil {
		return phttp.Error(err)
	}
	return phttp.Accepted(Submitted{JobID: id})
}

// @Summary Job progress from the run ledger
// @Tags Jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {object} domain.JobProgress
// @Router /v1/jobs/{id} [get]
func (h *handlers) progress(r *stdhttp.Request) phttp.Response {
	p, err := h.jobs.Progress(r.Context(), phttp.URLParam(r, "id"))
	if err != nil {
		return phttp.Error(err)
	}
	return phttp.OK(p)
}

// @Summary Every invocation of a job, in resume order
// @Tags Jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {array} domain.RunRecord
// @Router /v1/jobs/{id}/runs [get]
func (h *handlers) runs(r *stdhttp.Request) phttp.Response {
	runs, err := h.jobs.Runs(r.Context(), phttp.URLParam(r, "id"))
	if err != nil {
		return phttp.Error(err)
	}
	return phttp.OK(runs)
}

// @Summary Liveness and dependency check
// @Tags Meta
// @Produce json
// @Router /healthz [get]
func (h *handlers) healthz(r *stdhttp.Request) phttp.Response {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			return phttp.Error(perr.Wrap(err, perr.ErrorCodeUnavailable, "dependency check failed"))
		}
	}
	return phttp.OK(map[string]any{"status": "ok", "build": version.Info("rangeload")})
}
