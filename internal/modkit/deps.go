// Package modkit provides module wiring and core deps
package modkit

import (
	"context"
	"time"

	"rangeload/internal/modkit/repokit"
	"rangeload/internal/platform/config"
	"rangeload/internal/platform/logger"
	"rangeload/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
	CQL store.Cassandra
}

// FromStore copies the opened backends of st into Deps
func FromStore(cfg config.Conf, st *store.Store) Deps {
	return Deps{Log: st.Log, Cfg: cfg, PG: st.PG, CH: st.CH, CQL: st.CQL}
}

// OpenStore reads SERVICE_PGSQL_*, SERVICE_CLICKHOUSE_* and SERVICE_CASSANDRA_* and opens
// only the backends the process needs. needPG forces postgres on (ledger, queue, leases)
func OpenStore(ctx context.Context, cfg config.Conf, app string, sinkKind string, needPG bool) (*store.Store, error) {
	pgc := cfg.Prefix("SERVICE_PGSQL_")
	chc := cfg.Prefix("SERVICE_CLICKHOUSE_")
	cqc := cfg.Prefix("SERVICE_CASSANDRA_")

	sc := store.Config{
		AppName: app,
		PG: store.PGConfig{
			Enabled:     needPG || sinkKind == "postgres",
			URL:         pgc.MayString("URL", ""),
			MaxConns:    int32(pgc.MayInt("MAX_CONNS", 4)),
			LogSQL:      pgc.MayBool("LOG_SQL", false),
			SlowQueryMs: pgc.MayInt("SLOW_MS", 250),
			MaxConnIdle: pgc.MayDuration("MAX_IDLE", time.Minute),
		},
		CH: store.CHConfig{
			Enabled: sinkKind == "clickhouse",
			URL:     chc.MayString("URL", ""),
		},
		CQL: store.CQLConfig{
			Enabled:      sinkKind == "cassandra",
			Hosts:        cqc.MayCSV("HOSTS", []string{"cassandra.us-east-1.amazonaws.com"}),
			Port:         cqc.MayInt("PORT", 9142),
			Username:     cqc.MayString("USER", ""),
			Password:     cqc.MayString("PASS", ""),
			Keyspace:     cqc.MayString("KEYSPACE", "orats"),
			Consistency:  cqc.MayString("CONSISTENCY", "LOCAL_QUORUM"),
			CAPath:       cqc.MayString("CA_PATH", ""),
			ProtoVersion: cqc.MayInt("PROTO_VERSION", 3),
			Timeout:      cqc.MayDuration("TIMEOUT", 0),
		},
	}
	if sc.PG.Enabled {
		pgc.Require("URL")
	}
	if sc.CH.Enabled {
		chc.Require("URL")
	}
	return store.Open(ctx, sc, store.WithLogger(*logger.Named("store")))
}
