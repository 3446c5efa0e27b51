package controller

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/loykin/xprocess/internal/history"
	"github.com/loykin/xprocess/internal/metrics"
	"github.com/loykin/xprocess/internal/process"
)

// Listing is one control directory found under the root.
type Listing struct {
	Info    *process.Info
	Running bool
}

// String renders "<pid> <name> LIVE|DEAD <logpath>".
func (l Listing) String() string {
	state := "DEAD"
	if l.Running {
		state = "LIVE"
	}
	return fmt.Sprintf("%s %s %s %s", l.Info.PIDString(), l.Info.Name, state, l.Info.LogPath)
}

// Termination is the outcome of terminating one listed process.
type Termination struct {
	Info   *process.Info
	Result process.Result
}

// String renders "<pid> <name> <status>".
func (t Termination) String() string {
	return fmt.Sprintf("%s %s %s", t.Info.PIDString(), t.Info.Name, t.Result)
}

// List returns every control directory under the root, sorted by name.
func (c *Controller) List() ([]Listing, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", c.root, err)
	}
	out := make([]Listing, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info := c.Info(e.Name())
		running := info.IsRunning(true)
		metrics.SetRunning(info.Name, running)
		out = append(out, Listing{Info: info, Running: running})
	}
	return out, nil
}

// Terminate terminates the process registered as name.
func (c *Controller) Terminate(name string, opts ...process.TerminateOption) (process.Result, error) {
	if err := ValidateName(name); err != nil {
		return process.ResultNoop, err
	}
	return c.terminate(c.Info(name), opts...), nil
}

func (c *Controller) terminate(info *process.Info, opts ...process.TerminateOption) process.Result {
	r := info.Terminate(opts...)
	c.reap(info)
	metrics.IncTermination(info.Name, r.String())
	if r != process.ResultNoop {
		c.emit(history.EventTerminate, info, r.String(), nil)
	}
	return r
}

// TerminateAll terminates every listed process. The combined result is true
// if at least one process was terminated.
func (c *Controller) TerminateAll(opts ...process.TerminateOption) (bool, []Termination, error) {
	listings, err := c.List()
	if err != nil {
		return false, nil, err
	}
	terminated := false
	out := make([]Termination, 0, len(listings))
	for _, l := range listings {
		r := c.terminate(l.Info, opts...)
		terminated = terminated || r == process.ResultTerminated
		out = append(out, Termination{Info: l.Info, Result: r})
	}
	return terminated, out, nil
}

// ShowTo writes one line per listed process to w.
func (c *Controller) ShowTo(w io.Writer) error {
	listings, err := c.List()
	if err != nil {
		return err
	}
	for _, l := range listings {
		if _, err := fmt.Fprintln(w, l.String()); err != nil {
			return err
		}
	}
	return nil
}

// KillTo terminates every listed process and writes one status line per
// process to w.
func (c *Controller) KillTo(w io.Writer) (bool, error) {
	terminated, terms, err := c.TerminateAll()
	if err != nil {
		return false, err
	}
	for _, t := range terms {
		if _, err := fmt.Fprintln(w, t.String()); err != nil {
			return terminated, err
		}
	}
	return terminated, nil
}
