// Package csvrecord assembles physical lines into delimited records.
//
// The parser pulls lines one at a time and never reads past the end of the
// record it is assembling, so the byte count of the line source is exact at
// every record boundary. Lines are joined while a quoted field is open; a
// quote opens a field only at its start, so a stray quote inside an unquoted
// field is plain data. Field splitting itself is left to encoding/csv.
package csvrecord

import (
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	perr "rangeload/internal/platform/errors"
)

const bom = "\ufeff"

// DefaultMaxRecordBytes caps one assembled record when Options leaves it zero
const DefaultMaxRecordBytes = 1 << 20

// LineSource yields text lines including their terminators, io.EOF at end
type LineSource interface {
	Next() (string, error)
}

// Options controls header handling and validation
type Options struct {
	// Fieldnames inherited from an earlier run; when set every line is data
	Fieldnames []string
	// HasHeader consumes the first record as the header when Fieldnames is nil
	HasHeader bool
	// Comma is the field delimiter (default ',')
	Comma rune
	// FieldsPerRecord > 0 fixes the field count; 0 uses the header width
	// (or the first record when there is no header); < 0 disables the check
	FieldsPerRecord int
	// MaxRecordBytes caps a record spanning lines inside an open quote;
	// 0 uses DefaultMaxRecordBytes, < 0 disables the cap
	MaxRecordBytes int
}

// Record is one parsed row
type Record struct {
	Fields []string
	Header []string // nil when no header is known
	Row    int64    // 1-based ordinal among records parsed by this Parser
}

// Value looks a field up by column name
func (r Record) Value(name string) (string, bool) {
	for i, h := range r.Header {
		if h == name && i < len(r.Fields) {
			return r.Fields[i], true
		}
	}
	return "", false
}

// Map returns the record keyed by header; nil when there is no header
func (r Record) Map() map[string]string {
	if r.Header == nil {
		return nil
	}
	m := make(map[string]string, len(r.Header))
	for i, h := range r.Header {
		if i < len(r.Fields) {
			m[h] = r.Fields[i]
		}
	}
	return m
}

// Parser turns a LineSource into Records. Not safe for concurrent use
type Parser struct {
	lines    LineSource
	opts     Options
	header   []string
	captured bool
	width    int
	rows     int64
	skipped  int64
}

// New builds a Parser. A copy of opts.Fieldnames is kept
func New(lines LineSource, opts Options) *Parser {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.MaxRecordBytes == 0 {
		opts.MaxRecordBytes = DefaultMaxRecordBytes
	}
	p := &Parser{lines: lines, opts: opts, width: opts.FieldsPerRecord}
	if opts.Fieldnames != nil {
		p.header = append([]string(nil), opts.Fieldnames...)
	}
	if p.width == 0 && p.header != nil {
		p.width = len(p.header)
	}
	return p
}

// Fieldnames returns the inherited or captured header; nil when none
func (p *Parser) Fieldnames() []string { return p.header }

// HeaderCaptured reports whether this Parser read the header itself
func (p *Parser) HeaderCaptured() bool { return p.captured }

// BlankLines counts blank lines skipped so far
func (p *Parser) BlankLines() int64 { return p.skipped }

// Next returns the next data record or io.EOF.
// Malformed records return a RowFormat error; the parser stays usable and
// the following call continues with the next record
func (p *Parser) Next() (Record, error) {
	if p.header == nil && p.opts.HasHeader {
		if err := p.readHeader(); err != nil {
			return Record{}, err
		}
	}

	text, err := p.assemble()
	if err != nil {
		return Record{}, err
	}
	p.rows++

	fields, err := p.split(text)
	if err != nil {
		return Record{}, perr.RowFormatf(p.rows, "row %d: %v", p.rows, err)
	}
	if p.width == 0 {
		p.width = len(fields)
	}
	if p.width > 0 && len(fields) != p.width {
		return Record{}, perr.RowFormatf(p.rows, "row %d: %d fields, want %d", p.rows, len(fields), p.width)
	}
	return Record{Fields: fields, Header: p.header, Row: p.rows}, nil
}

func (p *Parser) readHeader() error {
	text, err := p.assemble()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return err
	}
	text = strings.TrimPrefix(text, bom)
	fields, err := p.split(text)
	if err != nil {
		return perr.RowFormatf(0, "header: %v", err)
	}
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return perr.RowFormatf(0, "header: column %d has no name", i+1)
		}
	}
	p.header = fields
	p.captured = true
	if p.width == 0 {
		p.width = len(fields)
	}
	return nil
}

// assemble reads lines until no quoted field is open, skipping blank lines
// between records. The returned text has its final terminator removed
func (p *Parser) assemble() (string, error) {
	var b strings.Builder
	var q quoteState
	for {
		line, err := p.lines.Next()
		if err == io.EOF {
			if b.Len() == 0 {
				return "", io.EOF
			}
			p.rows++
			return "", perr.RowFormatf(p.rows, "row %d: unterminated quoted field at end of input", p.rows)
		}
		if err != nil {
			return "", err
		}
		if q.scan(line, p.opts.Comma) {
			if limit := p.opts.MaxRecordBytes; limit > 0 && b.Len()+len(line) > limit {
				p.rows++
				return "", perr.RowFormatf(p.rows, "row %d: quoted field still open after %d bytes", p.rows, limit)
			}
			b.WriteString(line)
			continue
		}
		if b.Len() == 0 && trimEOL(line) == "" {
			p.skipped++
			continue
		}
		b.WriteString(trimEOL(line))
		return b.String(), nil
	}
}

func (p *Parser) split(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = p.opts.Comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if err == io.EOF {
		return []string{""}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := r.Read(); err != io.EOF {
		return nil, perr.New(perr.ErrorCodeRowFormat, "unexpected data after record")
	}
	return fields, nil
}

// quoteState follows quoting across the lines of one record: a quote at the
// start of a field opens it, "" inside it is an escaped quote, and the next
// lone quote closes it. Any other quote is a literal character
type quoteState struct {
	open     bool
	midField bool
}

// scan advances over line and reports whether a quoted field is still open
func (q *quoteState) scan(line string, comma rune) bool {
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		i += size
		if q.open {
			if r == '"' {
				if i < len(line) && line[i] == '"' {
					i++
					continue
				}
				q.open = false
			}
			continue
		}
		switch {
		case r == comma, r == '\n', r == '\r':
			q.midField = false
		case r == '"' && !q.midField:
			q.open, q.midField = true, true
		default:
			q.midField = true
		}
	}
	return q.open
}

func trimEOL(s string) string {
	switch {
	case strings.HasSuffix(s, "\r\n"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "\n"), strings.HasSuffix(s, "\r"):
		return s[:len(s)-1]
	}
	return s
}
