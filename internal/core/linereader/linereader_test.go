package linereader

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	perr "rangeload/internal/platform/errors"
)

func drain(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		line, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, line)
	}
}

func TestRoundTripAllChunkSizes(t *testing.T) {
	inputs := []string{
		"",
		"a,b\n1,2\n3,4\n",
		"a,b\r\n1,2\r\n3,4",
		"x\ry\rz",
		"\n\n\n",
		"\r\n\r\n",
		"no terminator at all",
		"quoted,\"multi\nline\"\r\nnext\n",
		"héllo,wörld\n日本,語\n",
	}
	for _, in := range inputs {
		for size := 1; size <= len(in)+1; size++ {
			r := New(strings.NewReader(in), WithChunkSize(size))
			got := strings.Join(drain(t, r), "")
			if got != in {
				t.Fatalf("chunk %d: reassembled %q, want %q", size, got, in)
			}
			if r.BytesEmitted() != int64(len(in)) {
				t.Fatalf("chunk %d: BytesEmitted = %d, want %d", size, r.BytesEmitted(), len(in))
			}
		}
	}
}

func TestLinesKeepTerminators(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"lf", "a\nb\n", []string{"a\n", "b\n"}},
		{"crlf", "a\r\nb", []string{"a\r\n", "b"}},
		{"lone cr", "a\rb\r", []string{"a\r", "b\r"}},
		{"mixed", "a\r\n\nb\rc", []string{"a\r\n", "\n", "b\r", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, size := range []int{1, 2, 3, 1024} {
				got := drain(t, New(strings.NewReader(tc.in), WithChunkSize(size)))
				if strings.Join(got, "|") != strings.Join(tc.want, "|") {
					t.Fatalf("chunk %d: got %q, want %q", size, got, tc.want)
				}
			}
		})
	}
}

func TestCRLFSplitAcrossChunks(t *testing.T) {
	// chunk 2 ends exactly on the \r of the first line
	r := New(strings.NewReader("a\r\nb\n"), WithChunkSize(2))
	got := drain(t, r)
	if len(got) != 2 || got[0] != "a\r\n" || got[1] != "b\n" {
		t.Fatalf("got %q", got)
	}
}

func TestBytesEmittedTracksEachLine(t *testing.T) {
	r := New(strings.NewReader("a,b\n1,2\n3,4\n"), WithChunkSize(4))
	want := []int64{4, 8, 12}
	for i, w := range want {
		if _, err := r.Next(); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if r.BytesEmitted() != w {
			t.Fatalf("after line %d BytesEmitted = %d, want %d", i, r.BytesEmitted(), w)
		}
	}
}

func TestShortReads(t *testing.T) {
	in := "h1,h2\r\nv1,v2\nv3,v4"
	readers := map[string]io.Reader{
		"one byte": iotest.OneByteReader(strings.NewReader(in)),
		"half":     iotest.HalfReader(strings.NewReader(in)),
		"data+eof": iotest.DataErrReader(strings.NewReader(in)),
	}
	for name, src := range readers {
		t.Run(name, func(t *testing.T) {
			r := New(src, WithChunkSize(5))
			if got := strings.Join(drain(t, r), ""); got != in {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestDecodeErrorIsStickyAndLocated(t *testing.T) {
	in := []byte("ok\nbad\xff\nafter\n")
	r := New(bytes.NewReader(in), WithChunkSize(3), WithBaseOffset(100))

	if line, err := r.Next(); err != nil || line != "ok\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}
	_, err := r.Next()
	if !perr.IsCode(err, perr.ErrorCodeDecode) {
		t.Fatalf("want decode error, got %v", err)
	}
	e, _ := perr.As(err)
	if e.Offset() != 103 {
		t.Fatalf("offset = %d, want 103", e.Offset())
	}
	if r.BytesEmitted() != 3 {
		t.Fatalf("BytesEmitted moved past bad line: %d", r.BytesEmitted())
	}
	if _, again := r.Next(); again != err {
		t.Fatalf("error not sticky: %v", again)
	}
}

func TestReadErrorIsSource(t *testing.T) {
	boom := errors.New("connection reset")
	r := New(io.MultiReader(strings.NewReader("a\nb"), iotest.ErrReader(boom)), WithChunkSize(8))
	if line, err := r.Next(); err != nil || line != "a\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}
	_, err := r.Next()
	if !perr.IsCode(err, perr.ErrorCodeSource) || !errors.Is(err, boom) {
		t.Fatalf("want source error wrapping cause, got %v", err)
	}
}

// stall answers every Read with (0, nil) after returning its data
type stall struct {
	data  string
	calls int
}

func (s *stall) Read(p []byte) (int, error) {
	s.calls++
	if s.data == "" {
		return 0, nil
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func TestStalledSourceFailsWithNoProgress(t *testing.T) {
	src := &stall{data: "a\nb"}
	r := New(src, WithChunkSize(8))
	if line, err := r.Next(); err != nil || line != "a\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}
	_, err := r.Next()
	if !perr.IsCode(err, perr.ErrorCodeSource) || !errors.Is(err, io.ErrNoProgress) {
		t.Fatalf("want source error wrapping ErrNoProgress, got %v", err)
	}
	if src.calls > maxEmptyReads+1 {
		t.Fatalf("reads = %d", src.calls)
	}
	if r.BytesEmitted() != 2 {
		t.Fatalf("BytesEmitted = %d", r.BytesEmitted())
	}
}

func TestCharmapDecoders(t *testing.T) {
	cases := []struct {
		enc  string
		in   []byte
		want string
	}{
		{"windows-1252", []byte("caf\xe9 \x80\n"), "café €\n"},
		{"latin1", []byte("na\xefve\n"), "naïve\n"},
		{"utf-8", []byte("plain\n"), "plain\n"},
	}
	for _, tc := range cases {
		t.Run(tc.enc, func(t *testing.T) {
			d, err := DecoderFor(tc.enc)
			if err != nil {
				t.Fatalf("DecoderFor: %v", err)
			}
			r := New(bytes.NewReader(tc.in), WithDecoder(d))
			line, err := r.Next()
			if err != nil || line != tc.want {
				t.Fatalf("got %q, %v", line, err)
			}
			if r.BytesEmitted() != int64(len(tc.in)) {
				t.Fatalf("source bytes not counted: %d", r.BytesEmitted())
			}
		})
	}
	if _, err := DecoderFor("ebcdic"); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestSplitKeep(t *testing.T) {
	got := SplitKeep([]byte("a\r"))
	if len(got) != 1 || string(got[0]) != "a\r" {
		t.Fatalf("trailing cr: %q", got)
	}
	if SplitKeep(nil) != nil {
		t.Fatalf("empty input should yield nil")
	}
}
