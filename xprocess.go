package xprocess

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/xprocess/internal/config"
	"github.com/loykin/xprocess/internal/controller"
	"github.com/loykin/xprocess/internal/detector"
	"github.com/loykin/xprocess/internal/env"
	"github.com/loykin/xprocess/internal/history"
	"github.com/loykin/xprocess/internal/history/factory"
	"github.com/loykin/xprocess/internal/metrics"
	"github.com/loykin/xprocess/internal/process"
	iapi "github.com/loykin/xprocess/internal/server"
	"github.com/loykin/xprocess/internal/starter"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Controller = controller.Controller

type Option = controller.Option

type EnsureOption = controller.EnsureOption

type Spec = starter.Spec

type LaunchOptions = starter.LaunchOptions

type Preparer = starter.Preparer

type PrepareFunc = starter.PrepareFunc

type StartupError = starter.StartupError

type Info = process.Info

type Result = process.Result

type TerminateOption = process.TerminateOption

type Listing = controller.Listing

type Termination = controller.Termination

type Detector = detector.Detector

type TCPDetector = detector.TCPDetector

type HTTPDetector = detector.HTTPDetector

type CommandDetector = detector.CommandDetector

type HistorySink = history.Sink

type Env = env.Env

type Config = config.Config

const (
	ResultFailed     = process.ResultFailed
	ResultNoop       = process.ResultNoop
	ResultTerminated = process.ResultTerminated
)

var (
	ErrStartupDetectionFailed = starter.ErrStartupDetectionFailed
	ErrTimeout                = starter.ErrTimeout
	ErrInvalidSpec            = starter.ErrInvalidSpec
	ErrInvalidName            = controller.ErrInvalidName
	ErrClosed                 = controller.ErrClosed
)

var (
	WithLogger          = controller.WithLogger
	WithDebugger        = controller.WithDebugger
	WithProcWaitTimeout = controller.WithProcWaitTimeout
	WithPersistLogs     = controller.WithPersistLogs
	WithHistory         = controller.WithHistory
	WithEnv             = controller.WithEnv
	WithRestart         = controller.WithRestart
	WithProcessTree     = process.WithProcessTree
	WithTimeout         = process.WithTimeout
)

// RootEnvVar overrides the default root directory.
const RootEnvVar = "XPROCESS_ROOT"

// New returns a Controller keeping its control directories under root.
func New(root string, opts ...Option) (*Controller, error) { return controller.New(root, opts...) }

func Static(spec Spec) Preparer { return starter.Static(spec) }

func Legacy(fn func(controlDir string) (pattern string, args []string)) Preparer {
	return starter.Legacy(fn)
}

// Check adapts a Detector into Spec.StartupCheck.
func Check(d Detector) func() bool { return detector.Check(d) }

func NewEnv() *Env { return env.New() }

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewHistorySinkFromDSN opens a postgres or sqlite history sink.
func NewHistorySinkFromDSN(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// DefaultRoot returns $XPROCESS_ROOT, or an xprocess directory under the
// user cache directory.
func DefaultRoot() (string, error) {
	if v := strings.TrimSpace(os.Getenv(RootEnvVar)); v != "" {
		return v, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve root directory: %w", err)
	}
	return filepath.Join(dir, "xprocess"), nil
}

// RootDir is DefaultRoot for tests: it fails tb when no root can be resolved.
func RootDir(tb testing.TB) string {
	tb.Helper()
	root, err := DefaultRoot()
	if err != nil {
		tb.Fatalf("xprocess: %v", err)
	}
	return root
}

// ForTest returns a Controller rooted at RootDir that is closed when tb
// finishes. When tb fails the output every process produced since it was
// ensured is attached to the test log.
func ForTest(tb testing.TB, opts ...Option) *Controller {
	tb.Helper()
	c, err := New(RootDir(tb), opts...)
	if err != nil {
		tb.Fatalf("xprocess: %v", err)
	}
	tb.Cleanup(func() {
		if tb.Failed() {
			logs := c.Logs()
			names := make([]string, 0, len(logs))
			for name := range logs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				tb.Logf("xprocess log %s:\n%s", name, logs[name])
			}
		}
		_ = c.Close()
	})
	return c
}

// Ensure ensures name is running and returns its pid. It fails tb with the
// startup error otherwise.
func Ensure(tb testing.TB, c *Controller, name string, p Preparer, opts ...EnsureOption) int {
	tb.Helper()
	pid, logPath, err := c.Ensure(name, p, opts...)
	if err != nil {
		tb.Fatalf("xprocess: ensure %s (log %s): %v", name, logPath, err)
	}
	return pid
}

// NewHTTPServer starts an HTTP server exposing the process API of c.
func NewHTTPServer(addr, basePath string, c *Controller) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, c, nil)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
