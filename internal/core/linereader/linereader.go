// Package linereader turns a byte stream into text lines read in fixed-size chunks
// while keeping an exact count of the source bytes each emitted line came from.
//
// Lines keep their terminator (\n, \r\n or a lone \r) so that concatenating every
// emitted line reproduces the source, and BytesEmitted is always the number of
// source bytes consumed to produce the lines returned so far. A resume offset can
// be computed from it without rounding.
package linereader

import (
	"bytes"
	"io"
)

// DefaultChunkSize matches the read size of the S3 streaming body
const DefaultChunkSize = 1024

// maxEmptyReads bounds consecutive (0, nil) reads from the source
const maxEmptyReads = 100

// Reader decodes lines from an io.Reader. Not safe for concurrent use
type Reader struct {
	src     io.Reader
	buf     []byte
	pending []byte   // trailing fragment carried into the next chunk
	ready   [][]byte // complete lines waiting to be emitted
	emitted int64
	base    int64
	decode  Decoder
	eof     bool
	err     error
	empty   int
}

// Option configures a Reader
type Option func(*Reader)

// WithChunkSize sets the read size; values < 1 keep the default
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.buf = make([]byte, n)
		}
	}
}

// WithDecoder sets the text decoder (strict UTF-8 by default)
func WithDecoder(d Decoder) Option {
	return func(r *Reader) {
		if d != nil {
			r.decode = d
		}
	}
}

// WithBaseOffset sets the absolute source offset of the first byte read,
// used only to locate decode errors in the whole object
func WithBaseOffset(off int64) Option {
	return func(r *Reader) { r.base = off }
}

// New wraps src
func New(src io.Reader, opts ...Option) *Reader {
	r := &Reader{src: src, decode: UTF8}
	for _, o := range opts {
		o(r)
	}
	if r.buf == nil {
		r.buf = make([]byte, DefaultChunkSize)
	}
	return r
}

// BytesEmitted is the exact number of source bytes behind every line returned by Next
func (r *Reader) BytesEmitted() int64 { return r.emitted }

// Next returns the next decoded line including its terminator, or io.EOF.
// After a decode or read error every later call returns the same error
func (r *Reader) Next() (string, error) {
	raw, err := r.nextRaw()
	if err != nil {
		return "", err
	}
	s, err := r.decode(raw)
	if err != nil {
		r.err = decodeError(r.base+r.emitted, err)
		return "", r.err
	}
	r.emitted += int64(len(raw))
	return s, nil
}

func (r *Reader) nextRaw() ([]byte, error) {
	for {
		if r.err != nil {
			return nil, r.err
		}
		if len(r.ready) > 0 {
			line := r.ready[0]
			r.ready = r.ready[1:]
			return line, nil
		}
		if r.eof {
			if len(r.pending) == 0 {
				return nil, io.EOF
			}
			line := r.pending
			r.pending = nil
			return line, nil
		}
		r.fill()
	}
}

// fill reads one chunk, prepends the pending fragment and queues every
// complete piece except the last, which becomes the new pending fragment
func (r *Reader) fill() {
	n, err := r.src.Read(r.buf)
	if n == 0 && err == nil {
		r.empty++
		if r.empty >= maxEmptyReads {
			r.err = readError(r.base+r.emitted, io.ErrNoProgress)
		}
		return
	}
	r.empty = 0
	if n > 0 {
		data := make([]byte, 0, len(r.pending)+n)
		data = append(append(data, r.pending...), r.buf[:n]...)
		pieces := SplitKeep(data)
		last := len(pieces) - 1
		r.ready = append(r.ready, pieces[:last]...)
		r.pending = pieces[last]
	}
	switch {
	case err == io.EOF:
		r.eof = true
	case err != nil:
		r.err = readError(r.base+r.emitted, err)
	}
}

// SplitKeep splits b after every \n, \r\n and lone \r, keeping terminators.
// The result is never empty for non-empty input and always reassembles to b
func SplitKeep(b []byte) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		i := bytes.IndexAny(b, "\r\n")
		if i < 0 {
			out = append(out, b)
			break
		}
		end := i + 1
		if b[i] == '\r' && end < len(b) && b[end] == '\n' {
			end++
		}
		out = append(out, b[:end])
		b = b[end:]
	}
	return out
}
