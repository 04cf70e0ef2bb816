package module

import (
	"time"

	"rangeload/internal/core/csvrecord"
	"rangeload/internal/platform/config"
	"rangeload/internal/services/ingest/dispatch"
	"rangeload/internal/services/ingest/guardrails"
	"rangeload/internal/services/ingest/repo"
	"rangeload/internal/services/ingest/service"
)

// Options holds configuration options for the ingest service
type Options struct {
	// Reading
	ChunkSize int
	Header    bool
	Delimiter rune
	Encoding  string
	// MaxRecordBytes caps a record held open by a quoted field
	MaxRecordBytes int

	// Budget
	LowWater time.Duration
	MaxRows  int64

	// Policy
	RowErrors        service.RowErrorPolicy
	DeleteOnComplete bool
	EnableLeases     bool
	LeaseStale       time.Duration
	EnableLedger     bool
	ProgressEvery    int64
	Timeouts         guardrails.Timeouts

	// Target and sink
	TargetFile string
	SinkKind   string

	// Continuations
	DispatchKind     string
	DispatchFunction string
}

// FromConfig reads CORE_INGEST_*, CORE_SINK_*, CORE_TARGET_* and CORE_DISPATCH_*
func FromConfig(cfg config.Conf) Options {
	in := cfg.Prefix("CORE_INGEST_")
	core := cfg.Prefix("CORE_")
	return Options{
		ChunkSize: in.MayInt("CHUNK_SIZE", 1024),
		Header:    in.MayBool("HEADER", true),
		Delimiter: in.MayRune("DELIMITER", ','),
		Encoding:  in.MayString("ENCODING", "utf-8"),

		MaxRecordBytes: in.MayInt("MAX_RECORD_BYTES", csvrecord.DefaultMaxRecordBytes),

		LowWater: in.MayDuration("LOW_WATER", guardrails.DefaultLowWater),
		MaxRows:  in.MayInt64("MAX_ROWS", 0),

		RowErrors:        service.RowErrorPolicy(in.MayEnum("ROW_ERRORS", "abort", "abort", "skip")),
		DeleteOnComplete: in.MayBool("DELETE_ON_COMPLETE", true),
		EnableLeases:     in.MayBool("LEASES", false),
		LeaseStale:       in.MayDuration("LEASE_STALE", guardrails.DefaultLeaseStale),
		EnableLedger:     in.MayBool("LEDGER", false),
		ProgressEvery:    in.MayInt64("PROGRESS_EVERY", 10000),
		Timeouts: guardrails.Timeouts{
			Delete:   in.MayDuration("DELETE_TIMEOUT", 10*time.Second),
			Ledger:   in.MayDuration("LEDGER_TIMEOUT", 5*time.Second),
			Dispatch: in.MayDuration("DISPATCH_TIMEOUT", 5*time.Second),
		},

		TargetFile: core.MayString("TARGET_FILE", ""),
		SinkKind:   core.MayEnum("SINK_KIND", repo.KindCassandra, repo.Kinds...),

		DispatchKind:     core.MayEnum("DISPATCH_KIND", dispatch.KindLambda, dispatch.Kinds...),
		DispatchFunction: core.MayString("DISPATCH_FUNCTION", ""),
	}
}

// NeedPG reports whether these options need the postgres pool
func (o Options) NeedPG() bool {
	return o.EnableLeases || o.EnableLedger || o.DispatchKind == dispatch.KindQueue || o.SinkKind == repo.KindPostgres
}
