package repo

import (
	"context"
	"errors"

	"rangeload/internal/core/target"
	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/logger"
	"rangeload/internal/platform/store"
	"rangeload/internal/services/ingest/domain"

	"github.com/gocql/gocql"
)

// Sink kinds accepted by CORE_SINK_KIND
const (
	KindCassandra  = "cassandra"
	KindPostgres   = "postgres"
	KindClickhouse = "clickhouse"
)

// Kinds lists every sink kind
var Kinds = []string{KindCassandra, KindPostgres, KindClickhouse}

// Opener opens row sinks over the process-wide store sessions.
// Only the backend named by Kind has to be set
type Opener struct {
	Kind string
	PG   repokit.TxRunner
	CH   store.Clickhouse
	CQL  store.Cassandra
}

type execFn func(ctx context.Context, stmt string, args ...any) error

// OpenSink implements domain.SinkOpener; the insert statement is built here once
func (o Opener) OpenSink(_ context.Context, d target.Descriptor) (domain.RowSink, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	s := &sink{kind: o.Kind, d: d}
	switch o.Kind {
	case KindCassandra:
		if o.CQL == nil {
			return nil, perr.Unavailablef("cassandra sink: session not configured")
		}
		s.stmt, s.exec, s.classify = d.InsertCQL(), o.CQL.Exec, classifyCQL
	case KindPostgres:
		if o.PG == nil {
			return nil, perr.Unavailablef("postgres sink: pool not configured")
		}
		pg := o.PG
		s.stmt, s.classify = d.InsertPG(), classifyPG
		s.exec = func(ctx context.Context, stmt string, args ...any) error {
			_, err := pg.Exec(ctx, stmt, args...)
			return err
		}
	case KindClickhouse:
		if o.CH == nil {
			return nil, perr.Unavailablef("clickhouse sink: connection not configured")
		}
		s.stmt, s.exec, s.classify = d.InsertCH(), o.CH.Exec, classifyDefault
	default:
		return nil, perr.InvalidArgf("unknown sink kind %q", o.Kind)
	}
	return s, nil
}

type sink struct {
	kind     string
	d        target.Descriptor
	stmt     string
	exec     execFn
	classify func(rec domain.Record, err error) error
	writes   int64
}

// Write binds the record to the descriptor and runs one insert
func (s *sink) Write(ctx context.Context, rec domain.Record) error {
	args, err := s.d.Bind(rec)
	if err != nil {
		return err
	}
	if err := s.exec(ctx, s.stmt, args...); err != nil {
		return s.classify(rec, err)
	}
	s.writes++
	return nil
}

// Close releases nothing: sessions belong to the process, not the invocation
func (s *sink) Close(ctx context.Context) error {
	logger.C(ctx).Debug().Str("sink", s.kind).Str("table", s.d.String()).Int64("writes", s.writes).Msg("sink closed")
	return nil
}

func writeErr(rec domain.Record, err error) error {
	return perr.AtRow(perr.Wrapf(err, perr.ErrorCodeWrite, "write row %d", rec.Row), rec.Row)
}

func classifyDefault(rec domain.Record, err error) error { return writeErr(rec, err) }

// values postgres refuses to coerce are row problems, not store failures
func classifyPG(rec domain.Record, err error) error {
	if perr.IsDataException(err) {
		return perr.AttachFieldFromPg(perr.AtRow(perr.Wrapf(err, perr.ErrorCodeRowFormat, "row %d rejected", rec.Row), rec.Row))
	}
	return writeErr(rec, err)
}

func classifyCQL(rec domain.Record, err error) error {
	var me gocql.MarshalError
	if errors.As(err, &me) {
		return perr.AtRow(perr.Wrapf(err, perr.ErrorCodeRowFormat, "row %d: cannot marshal value", rec.Row), rec.Row)
	}
	return writeErr(rec, err)
}
