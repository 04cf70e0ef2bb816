package target

import (
	"strings"
	"testing"

	"rangeload/internal/core/csvrecord"
	perr "rangeload/internal/platform/errors"
	kit "rangeload/internal/platform/testkit"
)

func TestOratsSnapshots(t *testing.T) {
	d := OratsSnapshots()
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(d.Columns) != 46 {
		t.Fatalf("columns = %d, want 46", len(d.Columns))
	}
	texts := map[string]bool{
		"ticker": true, "tradeDate": true, "expirDate": true, "quoteDate": true,
		"updatedAt": true, "snapShotEstTime": true, "snapShotDate": true, "expiryTod": true,
	}
	for _, c := range d.Columns {
		if (c.Kind == Text) != texts[c.Name] {
			t.Fatalf("column %s kind %s", c.Name, c.Kind)
		}
	}
	if d.String() != "orats.snapshots" {
		t.Fatalf("String = %q", d.String())
	}
}

func TestInsertStatements(t *testing.T) {
	d := Descriptor{Keyspace: "ks", Table: "tbl", Columns: []Column{{Name: "tradeDate"}, {Name: "dte", Kind: Integer}}}
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"cql", d.InsertCQL(), `INSERT INTO "ks"."tbl" ("tradeDate", "dte") VALUES (?, ?)`},
		{"pg", d.InsertPG(), `INSERT INTO "ks"."tbl" ("tradeDate", "dte") VALUES ($1, $2)`},
		{"ch", d.InsertCH(), "INSERT INTO `ks`.`tbl` (`tradeDate`, `dte`) VALUES (?, ?)"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s:\n got %s\nwant %s", tc.name, tc.got, tc.want)
		}
	}
	if n := strings.Count(OratsSnapshots().InsertPG(), "$"); n != 46 {
		t.Fatalf("placeholders = %d", n)
	}
}

func TestParseAndLoad(t *testing.T) {
	body := []byte(`
keyspace: market
table: quotes
columns:
  - name: symbol
  - name: size
    kind: integer
  - name: px
    kind: decimal
`)
	d, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Columns[1].Kind != Integer || d.Columns[2].Kind != Decimal || d.Columns[0].Kind != Text {
		t.Fatalf("kinds = %+v", d.Columns)
	}

	path := kit.WriteFile(t, "target.yaml", body)
	loaded, err := Load(path)
	if err != nil || loaded.String() != "market.quotes" {
		t.Fatalf("Load = %v, %v", loaded, err)
	}
	if _, err := Load(path + ".missing"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("missing file: %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"bad kind":      "keyspace: a\ntable: b\ncolumns:\n  - name: c\n    kind: blob\n",
		"no columns":    "keyspace: a\ntable: b\n",
		"bad ident":     "keyspace: a\ntable: b\ncolumns:\n  - name: 'x\"; drop'\n",
		"missing table": "keyspace: a\ncolumns:\n  - name: c\n",
		"duplicate":     "keyspace: a\ntable: b\ncolumns:\n  - name: c\n  - name: c\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBind(t *testing.T) {
	d := Descriptor{Keyspace: "k", Table: "t", Columns: []Column{
		{Name: "sym"}, {Name: "n", Kind: Integer}, {Name: "px", Kind: Decimal},
	}}

	byName := csvrecord.Record{Header: []string{"px", "sym", "n"}, Fields: []string{"1.5", "AAPL", " 12 "}, Row: 1}
	args, err := d.Bind(byName)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if args[0] != "AAPL" || args[1] != int64(12) || args[2] != 1.5 {
		t.Fatalf("args = %#v", args)
	}

	positional := csvrecord.Record{Fields: []string{"", "", ""}, Row: 2}
	args, err = d.Bind(positional)
	if err != nil {
		t.Fatalf("Bind positional: %v", err)
	}
	if args[0] != "" || args[1] != nil || args[2] != nil {
		t.Fatalf("empty values = %#v", args)
	}

	whole := csvrecord.Record{Fields: []string{"x", "7.0", "2"}, Row: 3}
	if args, err := d.Bind(whole); err != nil || args[1] != int64(7) {
		t.Fatalf("whole decimal as integer = %#v, %v", args, err)
	}
}

func TestBindErrors(t *testing.T) {
	d := Descriptor{Keyspace: "k", Table: "t", Columns: []Column{{Name: "sym"}, {Name: "n", Kind: Integer}}}
	cases := []struct {
		name  string
		rec   csvrecord.Record
		field string
	}{
		{"not integer", csvrecord.Record{Fields: []string{"a", "1.5"}, Row: 4}, "n"},
		{"missing column", csvrecord.Record{Header: []string{"sym"}, Fields: []string{"a"}, Row: 4}, "n"},
		{"width", csvrecord.Record{Fields: []string{"a"}, Row: 4}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Bind(tc.rec)
			e, ok := perr.As(err)
			if !ok || e.Code() != perr.ErrorCodeRowFormat || e.Row() != 4 || e.Field() != tc.field {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": Text, "BIGINT": Integer, "double": Decimal, "varchar": Text} {
		if got, err := ParseKind(in); err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v", in, got, err)
		}
	}
}
