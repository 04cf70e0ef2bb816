// Package cql provides a cassandra session tuned for amazon keyspaces
package cql

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// Config configures the cluster connection
type Config struct {
	Hosts        []string
	Port         int
	Username     string
	Password     string
	Keyspace     string
	Consistency  string // LOCAL_QUORUM by default
	CAPath       string // TLS when set
	ProtoVersion int
	Timeout      time.Duration
}

// Session wraps a gocql session with a fixed write consistency
type Session struct {
	s           *gocql.Session
	consistency gocql.Consistency
}

var createSession = func(c *gocql.ClusterConfig) (*gocql.Session, error) { return c.CreateSession() }

// Cluster builds the gocql cluster config. Exposed for tests and tooling
func Cluster(cfg Config) (*gocql.ClusterConfig, gocql.Consistency, error) {
	if len(cfg.Hosts) == 0 {
		return nil, 0, errors.New("cql: no hosts")
	}
	cons := gocql.LocalQuorum
	if s := strings.TrimSpace(cfg.Consistency); s != "" {
		c, err := gocql.ParseConsistencyWrapper(strings.ToUpper(s))
		if err != nil {
			return nil, 0, err
		}
		cons = c
	}

	cl := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cl.Port = cfg.Port
	}
	cl.Keyspace = cfg.Keyspace
	cl.Consistency = cons
	if cfg.ProtoVersion > 0 {
		cl.ProtoVersion = cfg.ProtoVersion
	}
	if cfg.Timeout > 0 {
		cl.Timeout = cfg.Timeout
		cl.ConnectTimeout = cfg.Timeout
	}
	cl.PoolConfig.HostSelectionPolicy = gocql.RoundRobinHostPolicy()
	if cfg.Username != "" {
		cl.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.CAPath != "" {
		cl.SslOpts = &gocql.SslOptions{CaPath: cfg.CAPath, EnableHostVerification: true}
		// keyspaces publishes a single endpoint; peer discovery returns private addresses
		cl.DisableInitialHostLookup = true
	}
	return cl, cons, nil
}

// Open creates a session. ctx is checked before dialing; gocql dials synchronously
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cl, cons, err := Cluster(cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := createSession(cl)
	if err != nil {
		return nil, err
	}
	return &Session{s: s, consistency: cons}, nil
}

// Exec runs one statement with bound values at the session consistency
func (s *Session) Exec(ctx context.Context, stmt string, args ...any) error {
	return s.s.Query(stmt, args...).WithContext(ctx).Consistency(s.consistency).Exec()
}

// Close releases the session
func (s *Session) Close() error {
	if s != nil && s.s != nil {
		s.s.Close()
	}
	return nil
}
