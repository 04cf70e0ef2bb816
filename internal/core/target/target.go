// Package target describes the destination table a source file is written to
// and builds the parameterized write statement and typed arguments for it
package target

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"rangeload/internal/core/csvrecord"
	perr "rangeload/internal/platform/errors"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Kind is the encoding of a column value
type Kind uint8

const (
	// Text binds as a string
	Text Kind = iota
	// Integer binds as int64
	Integer
	// Decimal binds as float64
	Decimal
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Decimal:
		return "decimal"
	default:
		return "text"
	}
}

// ParseKind accepts the names used in descriptor files
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "string", "varchar":
		return Text, nil
	case "int", "integer", "bigint":
		return Integer, nil
	case "decimal", "double", "float", "numeric":
		return Decimal, nil
	}
	return Text, perr.InvalidArgf("unknown column kind %q", s)
}

// UnmarshalYAML reads a kind from its name
func (k *Kind) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseKind(n.Value)
	if err != nil {
		return perr.WithField(err, "kind")
	}
	*k = v
	return nil
}

// Column is one destination column
type Column struct {
	Name string `yaml:"name" validate:"required,ident"`
	Kind Kind   `yaml:"kind"`
}

// Descriptor names a table and its ordered columns
type Descriptor struct {
	Keyspace string   `yaml:"keyspace" validate:"required,ident"`
	Table    string   `yaml:"table" validate:"required,ident"`
	Columns  []Column `yaml:"columns" validate:"required,min=1,dive"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	})
	return v
}()

// Validate checks identifiers and rejects duplicate columns
func (d Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return perr.Wrap(err, perr.ErrorCodeValidation, "invalid target descriptor")
	}
	seen := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		if _, dup := seen[c.Name]; dup {
			return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "duplicate column %q", c.Name), c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Parse decodes a YAML descriptor
func Parse(b []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return Descriptor{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "parse target descriptor")
	}
	return d, d.Validate()
}

// Load reads a YAML descriptor file
func Load(path string) (Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, perr.Wrapf(err, perr.ErrorCodeNotFound, "read target descriptor %s", path)
	}
	return Parse(b)
}

// Names returns the column names in order
func (d Descriptor) Names() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// String is keyspace.table
func (d Descriptor) String() string { return d.Keyspace + "." + d.Table }

// Placeholder styles per driver
type Placeholder func(i int) string

var (
	// Question is used by CQL and ClickHouse
	Question Placeholder = func(int) string { return "?" }
	// Dollar is used by Postgres
	Dollar Placeholder = func(i int) string { return "$" + strconv.Itoa(i+1) }
)

// Insert builds the statement with identifiers wrapped in quote
func (d Descriptor) Insert(quote string, ph Placeholder) string {
	var b strings.Builder
	q := func(s string) { b.WriteString(quote + s + quote) }

	b.WriteString("INSERT INTO ")
	q(d.Keyspace)
	b.WriteByte('.')
	q(d.Table)
	b.WriteString(" (")
	for i, c := range d.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		q(c.Name)
	}
	b.WriteString(") VALUES (")
	for i := range d.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph(i))
	}
	b.WriteByte(')')
	return b.String()
}

// InsertCQL is the Cassandra statement
func (d Descriptor) InsertCQL() string { return d.Insert(`"`, Question) }

// InsertPG is the Postgres statement; Keyspace is the schema
func (d Descriptor) InsertPG() string { return d.Insert(`"`, Dollar) }

// InsertCH is the ClickHouse statement; Keyspace is the database
func (d Descriptor) InsertCH() string { return d.Insert("`", Question) }

// Bind converts a record to typed arguments in column order.
// Records with a header are matched by name, others by position.
// Empty numeric values bind as nil
func (d Descriptor) Bind(rec csvrecord.Record) ([]any, error) {
	if rec.Header == nil && len(rec.Fields) != len(d.Columns) {
		return nil, perr.RowFormatf(rec.Row, "row %d: %d fields for %d columns", rec.Row, len(rec.Fields), len(d.Columns))
	}
	args := make([]any, len(d.Columns))
	for i, c := range d.Columns {
		var raw string
		if rec.Header == nil {
			raw = rec.Fields[i]
		} else {
			v, ok := rec.Value(c.Name)
			if !ok {
				return nil, perr.WithField(perr.RowFormatf(rec.Row, "row %d: column %q missing from header", rec.Row, c.Name), c.Name)
			}
			raw = v
		}
		v, err := c.value(raw)
		if err != nil {
			return nil, perr.WithField(perr.RowFormatf(rec.Row, "row %d: column %s: %v", rec.Row, c.Name, err), c.Name)
		}
		args[i] = v
	}
	return args, nil
}

func (c Column) value(raw string) (any, error) {
	if c.Kind == Text {
		return raw, nil
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	switch c.Kind {
	case Integer:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// whole-number decimals such as "12.0" are common in exported files
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != float64(int64(f)) {
				return nil, fmt.Errorf("not an integer: %q", raw)
			}
			return int64(f), nil
		}
		return n, nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("not a decimal: %q", raw)
		}
		return f, nil
	}
}
