package testkit

import (
	"os"
	"sync"
	"testing"
	"time"
)

var openFn = func(dsn string) string { return "real:" + dsn }

func TestPanics(t *testing.T) {
	t.Parallel()
	MustPanic(t, func() { panic("boom") })
	MustNotPanic(t, func() {})
}

func TestMustContain(t *testing.T) {
	t.Parallel()
	MustContain(t, "offset=8 row_count=1", "row_count=1")
}

func TestWriteFile(t *testing.T) {
	t.Parallel()
	p := WriteFile(t, "in.csv", []byte("a,b\n"))
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "a,b\n" {
		t.Fatalf("read back %q err=%v", b, err)
	}
}

func TestSwap_Restores(t *testing.T) {
	t.Run("swapped", func(t *testing.T) {
		Swap(t, &openFn, func(string) string { return "fake" })
		if got := openFn("x"); got != "fake" {
			t.Fatalf("swap not applied: %q", got)
		}
	})
	if got := openFn("x"); got != "real:x" {
		t.Fatalf("swap not restored: %q", got)
	}
}

func TestSerial_NoInterleave(t *testing.T) {
	var mu sync.Mutex
	var seq []string
	rec := func(s string) {
		mu.Lock()
		seq = append(seq, s)
		mu.Unlock()
	}

	t.Run("group", func(t *testing.T) {
		for _, name := range []string{"A", "B"} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				Serial(t)
				rec(name + "-start")
				time.Sleep(20 * time.Millisecond)
				rec(name + "-end")
			})
		}
	})

	if len(seq) != 4 {
		t.Fatalf("seq = %v", seq)
	}
	if seq[0][:1] != seq[1][:1] || seq[2][:1] != seq[3][:1] {
		t.Fatalf("interleaved: %v", seq)
	}
}
