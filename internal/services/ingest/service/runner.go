package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/services/ingest/domain"
)

// ErrNoQueue is returned by Drain when the service has no postgres queue
var ErrNoQueue = perr.New(perr.ErrorCodeUnavailable, "ingest: continuation queue not configured")

// DefaultReclaim is how long a claimed continuation may stay running before
// another worker takes it over, when neither Reclaim nor Quantum says otherwise
const DefaultReclaim = 30 * time.Minute

// DrainOptions controls the queue worker pool
type DrainOptions struct {
	Workers int           // parallel invocations; <=0 -> 1
	Quantum time.Duration // wall clock budget of one invocation; 0 = none
	Follow  bool          // keep polling when the queue is empty
	Poll    time.Duration // idle poll interval when following; <=0 -> 2s
	// Reclaim takes over running continuations claimed longer ago than this
	// (their worker died). 0 -> twice Quantum, or DefaultReclaim; < 0 never
	Reclaim time.Duration
}

func (o DrainOptions) reclaimAfter() time.Duration {
	switch {
	case o.Reclaim < 0:
		return 0
	case o.Reclaim > 0:
		return o.Reclaim
	case o.Quantum > 0:
		return 2 * o.Quantum
	}
	return DefaultReclaim
}

// Drain claims queued continuations and runs each as one invocation until the
// queue is empty (or, when following, until ctx ends). It returns the number
// of continuations handled
func (s *Service) Drain(ctx context.Context, opt DrainOptions) (int64, error) {
	if s.DB == nil || s.Binder == nil {
		return 0, ErrNoQueue
	}
	poll := opt.Poll
	if poll <= 0 {
		poll = 2 * time.Second
	}

	stale := opt.reclaimAfter()
	var handled, fails int64
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for ctx.Err() == nil {
			c, ok, err := s.claim(ctx, stale)
			if err != nil {
				logger.C(ctx).Error().Err(err).Msg("ingest: claim continuation failed")
				atomic.AddInt64(&fails, 1)
				_ = sleepCtx(ctx, 500*time.Millisecond)
				continue
			}
			if !ok {
				if !opt.Follow {
					return
				}
				_ = sleepCtx(ctx, poll)
				continue
			}
			if err := s.handleQueued(ctx, c, opt.Quantum); err != nil {
				atomic.AddInt64(&fails, 1)
			}
			atomic.AddInt64(&handled, 1)
		}
	}

	for range max(opt.Workers, 1) {
		wg.Add(1)
		go worker()
	}
	wg.Wait()

	if fails > 0 {
		return handled, errors.New("some continuations failed")
	}
	return handled, ctx.Err()
}

func (s *Service) claim(ctx context.Context, stale time.Duration) (domain.QueuedContinuation, bool, error) {
	var c domain.QueuedContinuation
	var ok bool
	err := repokit.InTx(ctx, s.DB, s.Binder, func(r domain.StorageRepo) error {
		var e error
		c, ok, e = r.ClaimNext(ctx, stale)
		return e
	})
	if ok && c.Attempts > 1 {
		logger.C(ctx).Warn().Int64("continuation", c.ID).Str("job_id", c.JobID).Int("attempts", c.Attempts).
			Msg("ingest: reclaimed continuation from a stalled worker")
	}
	return c, ok, err
}

func (s *Service) handleQueued(ctx context.Context, c domain.QueuedContinuation, quantum time.Duration) error {
	ev, err := domain.ParseEvent(c.Payload)
	if err == nil {
		if ev.JobID == "" {
			ev.JobID = c.JobID
		}
		runCtx, cancel := withQuantum(ctx, quantum)
		_, err = s.Handle(runCtx, ev)
		cancel()
	}

	var errText string
	if err != nil {
		errText = err.Error()
	}
	if ferr := s.Binder.Bind(s.DB).FinishQueued(context.WithoutCancel(ctx), c.ID, errText); ferr != nil {
		logger.C(ctx).Error().Err(ferr).Int64("continuation", c.ID).Msg("ingest: finish continuation failed")
	}
	return err
}

// Chain runs ev, then every continuation next yields, until an invocation
// completes or fails. It drives in-process continuations (CLI, tests)
func (s *Service) Chain(
	ctx context.Context,
	ev domain.Event,
	quantum time.Duration,
	next func() (domain.Continuation, bool),
) ([]domain.Outcome, error) {
	var outs []domain.Outcome
	for {
		runCtx, cancel := withQuantum(ctx, quantum)
		out, err := s.Handle(runCtx, ev)
		cancel()
		outs = append(outs, out)
		if err != nil || out.State != domain.StateContinuing {
			return outs, err
		}
		c, ok := next()
		if !ok {
			return outs, perr.Newf(perr.ErrorCodeDispatch, "job %s continuing but no continuation was dispatched", out.JobID)
		}
		ev = c.Event
	}
}

func withQuantum(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
