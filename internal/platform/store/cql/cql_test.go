package cql

import (
	"context"
	"errors"
	"testing"
	"time"

	kit "rangeload/internal/platform/testkit"

	"github.com/gocql/gocql"
)

func TestCluster_KeyspacesShape(t *testing.T) {
	cl, cons, err := Cluster(Config{
		Hosts:        []string{"cassandra.us-east-1.amazonaws.com"},
		Port:         9142,
		Username:     "svc",
		Password:     "secret",
		Keyspace:     "orats",
		CAPath:       "/opt/sf-class2-root.crt",
		ProtoVersion: 3,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if cons != gocql.LocalQuorum || cl.Consistency != gocql.LocalQuorum {
		t.Fatalf("default consistency = %v", cons)
	}
	if cl.Port != 9142 || cl.Keyspace != "orats" || cl.ProtoVersion != 3 {
		t.Fatalf("cluster = %+v", cl)
	}
	if cl.SslOpts == nil || cl.SslOpts.CaPath == "" || !cl.DisableInitialHostLookup {
		t.Fatalf("tls not configured")
	}
	if _, ok := cl.Authenticator.(gocql.PasswordAuthenticator); !ok {
		t.Fatalf("authenticator = %T", cl.Authenticator)
	}
}

func TestCluster_Errors(t *testing.T) {
	if _, _, err := Cluster(Config{}); err == nil {
		t.Fatalf("expected no-hosts error")
	}
	if _, _, err := Cluster(Config{Hosts: []string{"h"}, Consistency: "most"}); err == nil {
		t.Fatalf("expected consistency error")
	}
	_, cons, err := Cluster(Config{Hosts: []string{"h"}, Consistency: "one"})
	if err != nil || cons != gocql.One {
		t.Fatalf("consistency one = %v %v", cons, err)
	}
}

func TestOpen_Seams(t *testing.T) {
	kit.Serial(t)
	kit.Swap(t, &createSession, func(*gocql.ClusterConfig) (*gocql.Session, error) {
		return nil, errors.New("no route")
	})
	if _, err := Open(context.Background(), Config{Hosts: []string{"h"}}); err == nil {
		t.Fatalf("expected dial error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, Config{Hosts: []string{"h"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}

	var s *Session
	if s.Close() != nil {
		t.Fatalf("nil Close")
	}
}
