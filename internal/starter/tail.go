package starter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	readChunk = 4096
	// MaxLineBytes caps a single line. Longer runs without a newline are
	// returned in pieces of this size; each piece counts as one line against
	// Spec.MaxReadLines and a pattern is matched per piece, so a match that
	// straddles a cut is not found.
	MaxLineBytes = 64 * 1024
)

// LineSource yields log lines as they become available.
type LineSource interface {
	// Next returns the next complete line without its terminator. ok is false
	// when no complete line is available yet.
	Next() (line []byte, ok bool, err error)
	// Pending returns the trailing fragment that has no newline yet.
	Pending() []byte
}

// Tail reads lines from a file that another process keeps appending to.
// Reaching the end of the file is not the end of the stream: Next reports
// "nothing yet" and a later call picks up new data.
type Tail struct {
	r   io.Reader
	buf []byte
	tmp []byte
}

// NewTail returns a Tail reading from r's current position.
func NewTail(r io.Reader) *Tail {
	return &Tail{r: r, tmp: make([]byte, readChunk)}
}

func (t *Tail) Next() ([]byte, bool, error) {
	for {
		if line, ok := t.cut(); ok {
			return line, true, nil
		}
		n, err := t.r.Read(t.tmp)
		if n > 0 {
			t.buf = append(t.buf, t.tmp[:n]...)
			continue
		}
		if err == nil || errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, err
	}
}

func (t *Tail) cut() ([]byte, bool) {
	i := bytes.IndexByte(t.buf, '\n')
	if i < 0 {
		if len(t.buf) < MaxLineBytes {
			return nil, false
		}
		i = MaxLineBytes
		line := bytes.Clone(t.buf[:i])
		t.buf = t.buf[i:]
		return line, true
	}
	line := bytes.TrimSuffix(t.buf[:i], []byte{'\r'})
	line = bytes.Clone(line)
	t.buf = t.buf[i+1:]
	return line, true
}

func (t *Tail) Pending() []byte { return t.buf }

// Rewind moves the underlying reader back over the data read ahead but not
// returned as lines, so that the next reader of the file starts right after
// the last consumed line.
func (t *Tail) Rewind() error {
	if len(t.buf) == 0 {
		return nil
	}
	s, ok := t.r.(io.Seeker)
	if !ok {
		return fmt.Errorf("tail: reader cannot seek")
	}
	if _, err := s.Seek(-int64(len(t.buf)), io.SeekCurrent); err != nil {
		return fmt.Errorf("tail: rewind: %w", err)
	}
	t.buf = nil
	return nil
}
