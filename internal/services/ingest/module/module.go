// Package module provides the ingest module implementation
package module

import (
	"context"

	"rangeload/internal/core/linereader"
	"rangeload/internal/core/target"
	"rangeload/internal/modkit"
	"rangeload/internal/modkit/repokit"
	phttp "rangeload/internal/platform/net/http"
	"rangeload/internal/services/ingest/dispatch"
	"rangeload/internal/services/ingest/domain"
	"rangeload/internal/services/ingest/guardrails"
	ingesthttp "rangeload/internal/services/ingest/http"
	"rangeload/internal/services/ingest/repo"
	"rangeload/internal/services/ingest/service"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Ports defines the ingest module ports
type Ports struct {
	Runner  domain.RunnerPort
	Service *service.Service
}

// Wiring carries the adapters that depend on where the process runs
type Wiring struct {
	Source     domain.ObjectSource
	Dispatcher domain.Dispatcher
	// Health backs /healthz; nil reports ok
	Health func(context.Context) error
	// Tune adjusts the options read from config before anything is built
	Tune func(*Options)
}

// Module implements the ingest module
type Module struct {
	deps   modkit.Deps
	opts   Options
	ports  Ports
	health func(context.Context) error
}

// New constructs the ingest module from deps.Cfg and the given adapters
func New(deps modkit.Deps, w Wiring) (*Module, error) {
	opts := FromConfig(deps.Cfg)
	if w.Tune != nil {
		w.Tune(&opts)
	}

	tgt := target.OratsSnapshots()
	if opts.TargetFile != "" {
		var err error
		if tgt, err = target.Load(opts.TargetFile); err != nil {
			return nil, err
		}
	}
	dec, err := linereader.DecoderFor(opts.Encoding)
	if err != nil {
		return nil, err
	}

	var (
		db     repokit.TxRunner
		binder repokit.Binder[domain.StorageRepo]
		lease  guardrails.LeaseFunc
	)
	if deps.PG != nil {
		db, binder = deps.PG, repo.NewPG()
		lease = guardrails.MakeRangeLease(db, binder, guardrails.LeaseOptions{
			StaleAfter: opts.LeaseStale,
			Settle:     opts.Timeouts.Ledger,
		})
	}

	sinks := repo.Opener{Kind: opts.SinkKind, PG: deps.PG, CH: deps.CH, CQL: deps.CQL}
	svc := service.New(
		db, binder,
		w.Source, sinks, w.Dispatcher,
		guardrails.Budget{LowWater: opts.LowWater, MaxRows: opts.MaxRows},
		tgt,
		service.Config{
			ChunkSize:        opts.ChunkSize,
			Decoder:          dec,
			HasHeader:        opts.Header,
			Comma:            opts.Delimiter,
			MaxRecordBytes:   opts.MaxRecordBytes,
			RowErrors:        opts.RowErrors,
			DeleteOnComplete: opts.DeleteOnComplete,
			EnableLeases:     opts.EnableLeases,
			EnableLedger:     opts.EnableLedger,
			ProgressEvery:    opts.ProgressEvery,
			Timeouts:         opts.Timeouts,
		},
		lease,
	)

	deps.Log.Info().Str("target", tgt.String()).Str("sink", opts.SinkKind).
		Str("dispatch", opts.DispatchKind).Bool("ledger", opts.EnableLedger && db != nil).
		Bool("leases", opts.EnableLeases && db != nil).Msg("ingest: module ready")

	return &Module{
		deps:   deps,
		opts:   opts,
		ports:  Ports{Runner: svc, Service: svc},
		health: w.Health,
	}, nil
}

// NewDispatcher builds the dispatcher named by CORE_DISPATCH_KIND.
// The inline kind returns a *dispatch.Inline the caller drains itself
func NewDispatcher(opts Options, deps modkit.Deps, ac aws.Config) domain.Dispatcher {
	switch opts.DispatchKind {
	case dispatch.KindQueue:
		return dispatch.NewQueue(deps.PG, repo.NewPG())
	case dispatch.KindInline:
		return dispatch.NewInline()
	default:
		return dispatch.NewLambda(ac, opts.DispatchFunction)
	}
}

// Name returns the module name
func (m *Module) Name() string { return "ingest" }

// Ports returns the module ports
func (m *Module) Ports() Ports { return m.ports }

// Options returns the options the module was built with
func (m *Module) Options() Options { return m.opts }

// MountRoutes mounts job submission and progress routes
func (m *Module) MountRoutes(r phttp.Router) {
	ingesthttp.Register(r, m.ports.Service, m.health)
}
