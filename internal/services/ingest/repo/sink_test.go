package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rangeload/internal/core/csvrecord"
	"rangeload/internal/core/target"
	perr "rangeload/internal/platform/errors"

	"github.com/gocql/gocql"
	"github.com/jackc/pgx/v5/pgconn"
)

func descriptor() target.Descriptor {
	return target.Descriptor{Keyspace: "orats", Table: "snapshots", Columns: []target.Column{
		{Name: "ticker"}, {Name: "dte", Kind: target.Integer},
	}}
}

func rec(row int64, fields ...string) csvrecord.Record {
	return csvrecord.Record{Header: []string{"ticker", "dte"}, Fields: fields, Row: row}
}

func TestOpenSinkKinds(t *testing.T) {
	ex := &fakeExec{}
	q := &fakeQ{affect: 1}
	cases := []struct {
		name   string
		opener Opener
		prefix string
	}{
		{"cassandra", Opener{Kind: KindCassandra, CQL: ex}, `INSERT INTO "orats"."snapshots"`},
		{"clickhouse", Opener{Kind: KindClickhouse, CH: ex}, "INSERT INTO `orats`.`snapshots`"},
		{"postgres", Opener{Kind: KindPostgres, PG: q}, `INSERT INTO "orats"."snapshots" ("ticker", "dte") VALUES ($1, $2)`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := tc.opener.OpenSink(context.Background(), descriptor())
			if err != nil {
				t.Fatalf("OpenSink: %v", err)
			}
			if err := s.Write(context.Background(), rec(1, "AAPL", "30")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := s.Close(context.Background()); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
	if !strings.HasPrefix(ex.stmt, "INSERT INTO `orats`") || len(ex.args) != 2 {
		t.Fatalf("exec stmt=%q writes=%d", ex.stmt, len(ex.args))
	}
	if got := ex.args[0]; got[0] != "AAPL" || got[1] != int64(30) {
		t.Fatalf("bound args = %#v", got)
	}
	if len(q.calls) != 1 || q.calls[0].sql != cases[2].prefix {
		t.Fatalf("pg calls = %+v", q.calls)
	}
}

func TestOpenSinkMisconfigured(t *testing.T) {
	cases := []struct {
		opener Opener
		code   perr.ErrorCode
	}{
		{Opener{Kind: KindCassandra}, perr.ErrorCodeUnavailable},
		{Opener{Kind: KindPostgres}, perr.ErrorCodeUnavailable},
		{Opener{Kind: KindClickhouse}, perr.ErrorCodeUnavailable},
		{Opener{Kind: "mongo"}, perr.ErrorCodeInvalidArgument},
	}
	for _, tc := range cases {
		if _, err := tc.opener.OpenSink(context.Background(), descriptor()); !perr.IsCode(err, tc.code) {
			t.Fatalf("%s: err = %v", tc.opener.Kind, err)
		}
	}
	bad := descriptor()
	bad.Table = ""
	if _, err := (Opener{Kind: KindCassandra, CQL: &fakeExec{}}).OpenSink(context.Background(), bad); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("invalid descriptor accepted: %v", err)
	}
}

func TestSinkErrorClassification(t *testing.T) {
	dataErr := &pgconn.PgError{Code: "22P02", ColumnName: "dte", Message: "invalid input syntax"}
	cases := []struct {
		name   string
		opener Opener
		rec    csvrecord.Record
		code   perr.ErrorCode
	}{
		{"bind failure", Opener{Kind: KindCassandra, CQL: &fakeExec{}}, rec(3, "AAPL", "x"), perr.ErrorCodeRowFormat},
		{"cql marshal", Opener{Kind: KindCassandra, CQL: &fakeExec{err: gocql.MarshalError("can not marshal")}}, rec(3, "AAPL", "1"), perr.ErrorCodeRowFormat},
		{"cql timeout", Opener{Kind: KindCassandra, CQL: &fakeExec{err: gocql.ErrTimeoutNoResponse}}, rec(3, "AAPL", "1"), perr.ErrorCodeWrite},
		{"pg data exception", Opener{Kind: KindPostgres, PG: &fakeQ{execErr: dataErr}}, rec(3, "AAPL", "1"), perr.ErrorCodeRowFormat},
		{"pg down", Opener{Kind: KindPostgres, PG: &fakeQ{execErr: errors.New("conn refused")}}, rec(3, "AAPL", "1"), perr.ErrorCodeWrite},
		{"ch failure", Opener{Kind: KindClickhouse, CH: &fakeExec{err: errors.New("code: 60")}}, rec(3, "AAPL", "1"), perr.ErrorCodeWrite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := tc.opener.OpenSink(context.Background(), descriptor())
			if err != nil {
				t.Fatal(err)
			}
			err = s.Write(context.Background(), tc.rec)
			e, ok := perr.As(err)
			if !ok || e.Code() != tc.code || e.Row() != 3 {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
