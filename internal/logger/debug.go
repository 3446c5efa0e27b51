package logger

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Debugger is the diagnostic sink used by the controller and the startup
// waiter. *slog.Logger satisfies it. Implementations must accept arbitrary
// bytes in message and attribute values, including invalid UTF-8 and control
// characters, without failing.
type Debugger interface {
	Debug(msg string, args ...any)
}

// Nop returns a Debugger that discards everything.
func Nop() Debugger { return nopDebugger{} }

type nopDebugger struct{}

func (nopDebugger) Debug(string, ...any) {}

// Lines returns a Debugger that writes each message verbatim on its own line
// followed by its key/value pairs. Values are written with %v; nothing is
// escaped, so raw process output survives a round trip through w.
func Lines(w io.Writer) Debugger { return &lineDebugger{w: w} }

type lineDebugger struct {
	mu sync.Mutex
	w  io.Writer
}

func (d *lineDebugger) Debug(msg string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = io.WriteString(d.w, msg)
	for i := 0; i+1 < len(args); i += 2 {
		_, _ = fmt.Fprintf(d.w, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		_, _ = fmt.Fprintf(d.w, " %v", args[len(args)-1])
	}
	_, _ = io.WriteString(d.w, "\n")
}

// OrNop returns d, or a no-op Debugger when d is nil.
func OrNop(d Debugger) Debugger {
	if d == nil {
		return Nop()
	}
	return d
}

// FromSlog adapts l, falling back to a no-op when l is nil.
func FromSlog(l *slog.Logger) Debugger {
	if l == nil {
		return Nop()
	}
	return l
}
