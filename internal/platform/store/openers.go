package store

import (
	"context"
	"fmt"
	"time"

	chx "rangeload/internal/platform/store/ch"
	"rangeload/internal/platform/store/cql"
	"rangeload/internal/platform/store/pg"
)

// seams so tests can exercise Open without live backends
var (
	dialCH  = chx.Open
	dialCQL = cql.Open
)

// openPG opens pg, pings with backoff, and wraps it with our sql adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var tracer pg.QueryTracer
	if cfg.PG.LogSQL {
		tracer = pg.Tracer(s.Log)
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:         cfg.PG.URL,
		MaxConns:    cfg.PG.MaxConns,
		SlowMs:      cfg.PG.SlowQueryMs,
		AppName:     cfg.AppName,
		MaxConnIdle: cfg.PG.MaxConnIdle,
	}, tracer, nil)
	if err != nil {
		return nil, err
	}

	attempts := cfg.PG.ConnectRetries
	if attempts <= 0 {
		attempts = 20
	}
	pingTimeout := cfg.PG.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	const (
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for i := 0; i < attempts; i++ {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = p.Pool.Ping(toCtx) // pool directly so the ping is not traced
		cancel()

		if lastErr == nil {
			return newPGAdapter(p), nil
		}
		if ctx.Err() != nil {
			p.Close()
			return nil, ctx.Err()
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, backoffCeiling)
	}

	p.Close()
	return nil, fmt.Errorf("postgres ping failed after %d attempts: %w", attempts, lastErr)
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := dialCH(ctx, chx.Config{URL: cfg.CH.URL, Role: cfg.AppName})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}

func openCQL(ctx context.Context, cfg Config, _ *Store) (Cassandra, error) {
	c := cfg.CQL
	sess, err := dialCQL(ctx, cql.Config{
		Hosts:        c.Hosts,
		Port:         c.Port,
		Username:     c.Username,
		Password:     c.Password,
		Keyspace:     c.Keyspace,
		Consistency:  c.Consistency,
		CAPath:       c.CAPath,
		ProtoVersion: c.ProtoVersion,
		Timeout:      c.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}
