package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/xprocess/internal/env"
	"github.com/loykin/xprocess/internal/history"
	"github.com/loykin/xprocess/internal/logger"
	"github.com/loykin/xprocess/internal/process"
)

var (
	// ErrInvalidName rejects names that cannot be used as a control directory.
	ErrInvalidName = errors.New("invalid process name")
	// ErrClosed is returned by Ensure after Close.
	ErrClosed = errors.New("controller closed")
)

const historyTimeout = 5 * time.Second

// Controller starts named processes under a root directory, reuses them
// across runs and tears them down. Methods are safe for concurrent use with
// distinct names.
type Controller struct {
	root            string
	log             *slog.Logger
	debug           logger.Debugger
	procWaitTimeout time.Duration
	persistLogs     bool
	sinks           []history.Sink
	envM            *env.Env
	session         string

	mu        sync.Mutex
	resources []*process.Resources
	launched  map[string]*process.Resources
	logFiles  map[string]*os.File
	closed    bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDebugger sets the sink receiving process output and diagnostics.
func WithDebugger(d logger.Debugger) Option {
	return func(c *Controller) { c.debug = d }
}

// WithProcWaitTimeout bounds how long cleanup waits for the exit status of a
// terminated process.
func WithProcWaitTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.procWaitTimeout = d
		}
	}
}

// WithPersistLogs keeps the log of earlier runs, separated by a block
// delimiter, instead of truncating it on every launch.
func WithPersistLogs(v bool) Option {
	return func(c *Controller) { c.persistLogs = v }
}

// WithHistory adds lifecycle event sinks.
func WithHistory(sinks ...history.Sink) Option {
	return func(c *Controller) {
		for _, s := range sinks {
			if s != nil {
				c.sinks = append(c.sinks, s)
			}
		}
	}
}

// WithEnv sets the controller-wide environment layered under each process
// environment.
func WithEnv(e *env.Env) Option {
	return func(c *Controller) {
		if e != nil {
			c.envM = e
		}
	}
}

// New returns a Controller keeping its control directories under root.
// root is created if missing.
func New(root string, opts ...Option) (*Controller, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("controller: empty root directory")
	}
	c := &Controller{
		root:            root,
		log:             slog.Default(),
		procWaitTimeout: process.DefaultWaitTimeout,
		persistLogs:     true,
		envM:            env.New(),
		session:         uuid.NewString(),
		launched:        make(map[string]*process.Resources),
		logFiles:        make(map[string]*os.File),
	}
	for _, o := range opts {
		o(c)
	}
	if c.debug == nil {
		c.debug = logger.FromSlog(c.log)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("controller: create root: %w", err)
	}
	return c, nil
}

// Root returns the directory holding one control directory per name.
func (c *Controller) Root() string { return c.root }

// Session identifies this controller instance in history events.
func (c *Controller) Session() string { return c.session }

// Info returns the record for name without touching the disk beyond reading
// the pid file. For a process launched by this controller the returned Info
// is the one bound to its resources, so terminating it lets cleanup collect
// the exit status.
func (c *Controller) Info(name string) *process.Info {
	info := process.Load(c.root, name)
	c.mu.Lock()
	res := c.launched[name]
	c.mu.Unlock()
	if res != nil {
		if tracked := res.Info(); tracked != nil && tracked.PID == info.PID {
			return tracked
		}
	}
	info.SetDebugger(c.debug)
	return info
}

// LogFile returns the read handle on the log of name opened by the last
// Ensure. It is positioned after the output consumed by startup detection,
// or at the end of the log for a reused process.
func (c *Controller) LogFile(name string) (*os.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.logFiles[name]
	return f, ok
}

// Logs reads the output each process produced since the previous call (or
// since Ensure returned). Names without new output are omitted.
func (c *Controller) Logs() map[string]string {
	c.mu.Lock()
	files := make(map[string]*os.File, len(c.logFiles))
	for k, v := range c.logFiles {
		files[k] = v
	}
	c.mu.Unlock()

	out := make(map[string]string)
	for name, f := range files {
		b, err := io.ReadAll(f)
		if err != nil {
			c.debug.Debug("read log failed", "name", name, "error", err)
		}
		if len(b) > 0 {
			out[name] = string(b)
		}
	}
	return out
}

// ValidateName checks that name is usable as a single path component.
// Allowed characters: A-Z a-z 0-9 . _ - and no "..".
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (c *Controller) register(r *process.Resources) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.resources = append(c.resources, r)
	return nil
}

func (c *Controller) setLaunched(name string, r *process.Resources) {
	c.mu.Lock()
	c.launched[name] = r
	c.mu.Unlock()
}

func (c *Controller) setLogFile(name string, f *os.File) {
	c.mu.Lock()
	c.logFiles[name] = f
	c.mu.Unlock()
}

// reap collects the exit status of name if this controller launched it and
// it was signaled.
func (c *Controller) reap(info *process.Info) {
	c.mu.Lock()
	res := c.launched[info.Name]
	c.mu.Unlock()
	if res != nil && res.Info() == info {
		res.Reap()
	}
}

func (c *Controller) emit(typ history.EventType, info *process.Info, status string, err error) {
	if len(c.sinks) == 0 {
		return
	}
	ev := history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Session:    c.session,
		Record: history.Record{
			Name:    info.Name,
			PID:     info.PID,
			LogPath: info.LogPath,
			Status:  status,
		},
	}
	if err != nil {
		ev.Record.Error = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	for _, s := range c.sinks {
		if err := s.Send(ctx, ev); err != nil {
			c.log.Warn("history sink failed", "event", typ, "name", info.Name, "error", err)
		}
	}
}
