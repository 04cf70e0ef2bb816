package module

import (
	"context"

	"rangeload/internal/adapters/objectstore"
	"rangeload/internal/core/version"
	"rangeload/internal/modkit"
	"rangeload/internal/platform/cloud"
	"rangeload/internal/platform/config"
	"rangeload/internal/platform/logger"
	"rangeload/internal/platform/store"
	str "rangeload/internal/platform/strings"
	"rangeload/internal/services/ingest/domain"
)

// Runtime is a booted ingest process: store sessions, aws config and module
type Runtime struct {
	Store  *store.Store
	Module *Module
	Deps   modkit.Deps
}

// BootOption adjusts wiring before the module is built
type BootOption func(*bootCfg)

type bootCfg struct {
	source     domain.ObjectSource
	dispatcher domain.Dispatcher
	tune       []func(*Options)
}

// WithSource replaces the S3 source (local files, tests)
func WithSource(src domain.ObjectSource) BootOption {
	return func(b *bootCfg) { b.source = src }
}

// WithDispatcher replaces the dispatcher named by CORE_DISPATCH_KIND
func WithDispatcher(d domain.Dispatcher) BootOption {
	return func(b *bootCfg) { b.dispatcher = d }
}

// WithOptions adjusts the options read from config, e.g. flags that win over env
func WithOptions(fn func(*Options)) BootOption {
	return func(b *bootCfg) { b.tune = append(b.tune, fn) }
}

// Boot opens the backends the options need and builds the module.
// Sessions live for the whole process; call Close on shutdown
func Boot(ctx context.Context, cfg config.Conf, app string, opts ...BootOption) (*Runtime, error) {
	var b bootCfg
	for _, o := range opts {
		o(&b)
	}
	o := FromConfig(cfg)
	tune := func(o *Options) {
		for _, fn := range b.tune {
			fn(o)
		}
	}
	tune(&o)
	app = str.MustString(app, "app name")
	logger.Get().Info().Interface("build", version.Info(app)).Msg("ingest: booting")

	st, err := modkit.OpenStore(ctx, cfg, app, o.SinkKind, o.NeedPG())
	if err != nil {
		return nil, err
	}
	deps := modkit.FromStore(cfg, st)

	if b.source == nil || b.dispatcher == nil {
		ao := cloud.AWSFromConfig(cfg)
		ac, err := cloud.LoadAWS(ctx, ao)
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		if b.source == nil {
			b.source = objectstore.NewS3(ac, ao.PathStyle)
		}
		if b.dispatcher == nil {
			b.dispatcher = NewDispatcher(o, deps, ac)
		}
	}

	m, err := New(deps, Wiring{Source: b.source, Dispatcher: b.dispatcher, Health: st.Guard, Tune: tune})
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	return &Runtime{Store: st, Module: m, Deps: deps}, nil
}

// Close releases the store sessions
func (r *Runtime) Close(ctx context.Context) {
	if err := r.Store.Close(ctx); err != nil {
		logger.Get().Error().Err(err).Msg("failed to close store")
	}
}
