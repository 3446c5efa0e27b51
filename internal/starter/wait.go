package starter

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/xprocess/internal/logger"
)

// DefaultPollInterval is the sleep between log reads and probe attempts.
const DefaultPollInterval = 100 * time.Millisecond

// State is the readiness state of a Waiter.
type State int

const (
	StateNotStarted State = iota
	StateWaiting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Waiter decides once whether a launched process became ready.
type Waiter struct {
	Name         string
	Spec         Spec
	Log          logger.Debugger
	PollInterval time.Duration

	mu    sync.Mutex
	state State
	err   error
}

// NewWaiter returns a Waiter for spec with default bounds applied.
func NewWaiter(name string, spec Spec, log logger.Debugger) *Waiter {
	return &Waiter{Name: name, Spec: spec.WithDefaults(), Log: log, PollInterval: DefaultPollInterval}
}

// Wait runs a fresh Waiter against src.
func Wait(src LineSource, spec Spec, log logger.Debugger) error {
	return NewWaiter("", spec, log).Wait(src)
}

// State returns the current state.
func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err returns the failure, if any.
func (w *Waiter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Wait blocks until the process is ready or a bound is exceeded. The result
// is final: calling Wait again returns the first outcome.
func (w *Waiter) Wait(src LineSource) error {
	w.mu.Lock()
	if w.state != StateNotStarted {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.state = StateWaiting
	w.mu.Unlock()

	err := w.run(src)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state, w.err = StateFailed, err
	} else {
		w.state = StateReady
	}
	return err
}

func (w *Waiter) run(src LineSource) error {
	spec := w.Spec.WithDefaults()
	if !spec.Configured() {
		return w.fail(spec, ReasonNotConfigured, 0)
	}
	re, err := spec.compile()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	poll := w.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	log := logger.OrNop(w.Log)
	deadline := time.Now().Add(spec.Timeout)

	if re != nil {
		read := 0
		var lastFragment []byte
		for {
			if !time.Now().Before(deadline) {
				return w.fail(spec, ReasonPatternTimedOut, read)
			}
			line, ok, err := src.Next()
			if err != nil {
				return fmt.Errorf("%s: read log: %w", w.label(), err)
			}
			if !ok {
				// an unterminated fragment is only inspected, never counted
				frag := src.Pending()
				if len(frag) > 0 && !bytes.Equal(frag, lastFragment) {
					lastFragment = bytes.Clone(frag)
					if re.Match(frag) {
						log.Debug("process output", "name", w.Name, "line", string(frag))
						break
					}
				}
				time.Sleep(poll)
				continue
			}
			lastFragment = nil
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			read++
			log.Debug("process output", "name", w.Name, "line", string(line))
			if re.Match(line) {
				break
			}
			if read >= spec.MaxReadLines {
				return w.fail(spec, ReasonPatternNotFound, read)
			}
		}
	}

	if spec.StartupCheck != nil {
		for !spec.StartupCheck() {
			if !time.Now().Before(deadline) {
				return w.fail(spec, ReasonProbeTimedOut, 0)
			}
			time.Sleep(poll)
		}
	}
	return nil
}

func (w *Waiter) fail(spec Spec, reason Reason, read int) error {
	return &StartupError{
		Name:         w.Name,
		Reason:       reason,
		Pattern:      spec.Pattern,
		MaxReadLines: spec.MaxReadLines,
		Timeout:      spec.Timeout,
		LinesRead:    read,
	}
}

func (w *Waiter) label() string {
	if w.Name == "" {
		return "process"
	}
	return w.Name
}
