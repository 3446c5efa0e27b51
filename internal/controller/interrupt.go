package controller

import (
	"context"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/loykin/xprocess/internal/process"
)

// Interrupt terminates every process launched with TerminateOnInterrupt and
// then releases all resources.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	resources := append([]*process.Resources(nil), c.resources...)
	c.mu.Unlock()

	for _, r := range resources {
		info := r.Info()
		if info == nil || !r.TerminateOnInterrupt() {
			continue
		}
		res := c.terminate(info)
		c.log.Info("terminated on interrupt", "name", info.Name, "pid", info.PID, "result", res.String())
	}
	_ = c.Close()
}

// Close releases every resource acquired by Ensure: log handles are closed
// and signaled processes have their exit status collected. Processes that
// were not terminated keep running. Close is idempotent; Ensure fails with
// ErrClosed afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	resources := c.resources
	c.resources = nil
	c.logFiles = make(map[string]*os.File)
	c.closed = true
	c.mu.Unlock()

	for _, r := range resources {
		r.Release()
	}
	return nil
}

// resignal delivers sig to this process again with the default handler
// restored, so an interrupt still ends the program once cleanup is done.
func resignal(sig os.Signal) {
	signal.Reset(sig)
	if p, err := os.FindProcess(os.Getpid()); err == nil {
		_ = p.Signal(sig)
	}
}

// NotifyOnInterrupt calls Interrupt when the process receives SIGINT or
// SIGTERM before ctx is done or stop is called, then re-raises the signal.
// Signal delivery returns to normal once ctx is done or stop is called.
func (c *Controller) NotifyOnInterrupt(ctx context.Context) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			c.log.Warn("interrupted, cleaning up processes", "signal", sig.String())
			c.Interrupt()
			resignal(sig)
		case <-ctx.Done():
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

// CleanLogs truncates every *.log file under the root. It is meant to run
// once at the start of a test session.
func (c *Controller) CleanLogs() error {
	return filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		return os.Truncate(path, 0)
	})
}
