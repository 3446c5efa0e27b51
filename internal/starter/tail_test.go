package starter

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestTailSplitsLines(t *testing.T) {
	tail := NewTail(strings.NewReader("one\r\ntwo\n\nthr"))
	for _, want := range []string{"one", "two", ""} {
		line, ok, err := tail.Next()
		if err != nil || !ok || string(line) != want {
			t.Fatalf("want %q, got %q ok=%v err=%v", want, line, ok, err)
		}
	}
	if _, ok, _ := tail.Next(); ok {
		t.Fatalf("unterminated fragment must not be returned as a line")
	}
	if string(tail.Pending()) != "thr" {
		t.Fatalf("pending: %q", tail.Pending())
	}
}

func TestTailRewind(t *testing.T) {
	tail, f := logFile(t, "a\nbc")
	if line, ok, _ := tail.Next(); !ok || string(line) != "a" {
		t.Fatalf("first line: %q", line)
	}
	_, _, _ = tail.Next()
	if err := tail.Rewind(); err != nil {
		t.Fatal(err)
	}
	rest, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "bc" {
		t.Fatalf("after rewind the reader should resume at the fragment, got %q", rest)
	}

	nonSeek := NewTail(io.MultiReader(strings.NewReader("x")))
	_, _, _ = nonSeek.Next()
	if err := nonSeek.Rewind(); err == nil {
		t.Fatalf("rewind on a non-seeker with buffered data must fail")
	}
}

func TestTailSplitsOverlongLines(t *testing.T) {
	tail := NewTail(bytes.NewReader(bytes.Repeat([]byte{'x'}, MaxLineBytes+10)))
	line, ok, _ := tail.Next()
	if !ok || len(line) != MaxLineBytes {
		t.Fatalf("expected a %d byte piece, got %d ok=%v", MaxLineBytes, len(line), ok)
	}
	line, ok, err := tail.Next()
	if err != nil || ok {
		t.Fatalf("the short remainder is not a line yet, got %q ok=%v err=%v", line, ok, err)
	}
	if len(tail.Pending()) != 10 {
		t.Fatalf("remainder should stay pending, got %d", len(tail.Pending()))
	}
}

func FuzzTail(f *testing.F) {
	f.Add([]byte("a\nb\r\n\n\xff\xfe"))
	f.Add([]byte(""))
	f.Add([]byte("\n\n\n"))
	f.Fuzz(func(t *testing.T, data []byte) {
		tail := NewTail(bytes.NewReader(data))
		total := 0
		for {
			line, ok, err := tail.Next()
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			if bytes.IndexByte(line, '\n') >= 0 {
				t.Fatalf("line contains a newline: %q", line)
			}
			total += len(line)
		}
		if total+len(tail.Pending()) > len(data) {
			t.Fatalf("tail produced more bytes than it read")
		}
	})
}
