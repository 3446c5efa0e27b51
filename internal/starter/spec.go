package starter

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"syscall"
	"time"
)

// Defaults applied by WithDefaults.
const (
	DefaultTimeout      = 120 * time.Second
	DefaultMaxReadLines = 50
)

// LaunchOptions is passed through to the spawned command unchanged.
type LaunchOptions struct {
	WorkDir     string // defaults to the control directory
	ExtraFiles  []*os.File
	Stdin       io.Reader
	SysProcAttr *syscall.SysProcAttr // replaces the default process group setup
}

// Spec describes how to launch one process and how to tell that it is ready.
//
// At least one of Pattern and StartupCheck must be set. With both set the
// pattern has to match first and the check has to succeed afterwards.
type Spec struct {
	Args []string
	// Pattern is a regular expression searched in each log line. A trailing
	// fragment still waiting for its newline is searched too, so an anchored
	// pattern such as "ready$" can match a partial flush of a longer line.
	Pattern      string
	StartupCheck func() bool // active readiness probe
	Timeout      time.Duration
	MaxReadLines int // non-blank log lines inspected for Pattern
	Env          map[string]string
	// CleanEnv passes only Env to the process instead of merging it over the
	// current environment.
	CleanEnv             bool
	Launch               LaunchOptions
	TerminateOnInterrupt bool
}

// WithDefaults returns a copy of s with zero bounds replaced by defaults.
func (s Spec) WithDefaults() Spec {
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	if s.MaxReadLines == 0 {
		s.MaxReadLines = DefaultMaxReadLines
	}
	return s
}

// Configured reports whether any readiness condition is set.
func (s Spec) Configured() bool { return s.Pattern != "" || s.StartupCheck != nil }

// Validate reports launch configuration problems. A spec without readiness
// conditions is valid here; Wait rejects it.
func (s Spec) Validate() error {
	if len(s.Args) == 0 || s.Args[0] == "" {
		return fmt.Errorf("%w: args are required", ErrInvalidSpec)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidSpec, s.Timeout)
	}
	if s.MaxReadLines < 0 {
		return fmt.Errorf("%w: negative max read lines %d", ErrInvalidSpec, s.MaxReadLines)
	}
	if _, err := s.compile(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	return nil
}

func (s Spec) compile() (*regexp.Regexp, error) {
	if s.Pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", s.Pattern, err)
	}
	return re, nil
}
