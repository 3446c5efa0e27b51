package starter

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStartupDetectionFailed matches every *StartupError.
	ErrStartupDetectionFailed = errors.New("could not start process within the given time/line budget")
	// ErrTimeout matches startup errors caused by the deadline.
	ErrTimeout = errors.New("startup timed out")
	// ErrInvalidSpec wraps launch configuration problems.
	ErrInvalidSpec = errors.New("invalid starter spec")
)

// Reason says why readiness could not be established.
type Reason int

const (
	ReasonPatternNotFound Reason = iota + 1
	ReasonPatternTimedOut
	ReasonProbeTimedOut
	ReasonNotConfigured
)

func (r Reason) String() string {
	switch r {
	case ReasonPatternNotFound:
		return "PatternNotFound"
	case ReasonPatternTimedOut:
		return "PatternTimedOut"
	case ReasonProbeTimedOut:
		return "ProbeTimedOut"
	case ReasonNotConfigured:
		return "NeitherConditionConfigured"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// StartupError describes a failed readiness wait.
type StartupError struct {
	Name         string
	Reason       Reason
	Pattern      string
	MaxReadLines int
	Timeout      time.Duration
	LinesRead    int
}

func (e *StartupError) Error() string {
	name := e.Name
	if name == "" {
		name = "process"
	}
	prefix := fmt.Sprintf("%s: %s", name, ErrStartupDetectionFailed)
	switch e.Reason {
	case ReasonPatternNotFound:
		return fmt.Sprintf("%s: pattern %q not found in %d non-blank lines", prefix, e.Pattern, e.MaxReadLines)
	case ReasonPatternTimedOut:
		return fmt.Sprintf("%s: pattern %q not matched within %s (%d of %d lines read)",
			prefix, e.Pattern, e.Timeout, e.LinesRead, e.MaxReadLines)
	case ReasonProbeTimedOut:
		return fmt.Sprintf("%s: startup check did not succeed within %s", prefix, e.Timeout)
	case ReasonNotConfigured:
		return fmt.Sprintf("%s: neither a pattern nor a startup check is configured", prefix)
	default:
		return prefix
	}
}

// Is makes errors.Is match ErrStartupDetectionFailed for every reason and
// ErrTimeout for the deadline reasons.
func (e *StartupError) Is(target error) bool {
	switch target {
	case ErrStartupDetectionFailed:
		return true
	case ErrTimeout:
		return e.Reason == ReasonPatternTimedOut || e.Reason == ReasonProbeTimedOut
	}
	return false
}
