package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/xprocess"
	"github.com/loykin/xprocess/internal/config"
	"github.com/loykin/xprocess/internal/controller"
	"github.com/loykin/xprocess/internal/logger"
	"github.com/loykin/xprocess/internal/metrics"
	"github.com/loykin/xprocess/internal/process"
	"github.com/loykin/xprocess/internal/server"
	"github.com/loykin/xprocess/internal/starter"
	xtls "github.com/loykin/xprocess/internal/tls"
)

type command struct {
	global *GlobalFlags
}

// session is a controller opened for one command run together with what
// has to be released afterwards.
type session struct {
	ctl     *controller.Controller
	cfg     *config.Config
	log     *slog.Logger
	closers []io.Closer
}

func (s *session) Close() {
	if s.ctl != nil {
		_ = s.ctl.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

// open builds a controller from the global flags and the optional config
// file. The root comes from --root, then the config, then DefaultRoot.
func (c *command) open() (*session, error) {
	cfg := &config.Config{PersistLogs: true}
	if c.global.ConfigPath != "" {
		loaded, err := config.Load(c.global.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	root := c.global.Root
	if root == "" {
		root = cfg.Root
	}
	if root == "" {
		def, err := xprocess.DefaultRoot()
		if err != nil {
			return nil, err
		}
		root = def
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	e, err := cfg.Environment()
	if err != nil {
		s.Close()
		return nil, err
	}
	e.FromOS()

	opts := []controller.Option{
		controller.WithLogger(log),
		controller.WithPersistLogs(cfg.PersistLogs),
		controller.WithProcWaitTimeout(cfg.ProcWaitTimeout),
		controller.WithEnv(e),
	}
	if cfg.HistoryDSN != "" {
		sink, err := xprocess.NewHistorySinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("history: %w", err)
		}
		if cl, ok := sink.(io.Closer); ok {
			s.closers = append(s.closers, cl)
		}
		opts = append(opts, controller.WithHistory(sink))
	}

	ctl, err := controller.New(root, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.ctl = ctl
	return s, nil
}

// Show writes the listing in the requested format.
func (c *command) Show(w io.Writer, f ShowFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	switch f.Format {
	case "", "text":
		return s.ctl.ShowTo(w)
	case "yaml", "json":
		listings, err := s.ctl.List()
		if err != nil {
			return err
		}
		rows := listingRows(listings)
		if f.Format == "yaml" {
			return printYAML(w, rows)
		}
		return printJSON(w, rows)
	default:
		return fmt.Errorf("unknown format %q", f.Format)
	}
}

// Kill terminates every process and writes one status line each. Whether
// anything was terminated does not affect the exit status.
func (c *command) Kill(w io.Writer, f KillFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	terminated, terms, err := s.ctl.TerminateAll(process.WithProcessTree(f.Tree), process.WithTimeout(f.Timeout))
	if err != nil {
		return err
	}
	for _, t := range terms {
		if _, err := fmt.Fprintln(w, t.String()); err != nil {
			return err
		}
	}
	if !terminated {
		s.log.Debug("no process terminated", "root", s.ctl.Root())
	}
	return nil
}

// Ensure starts the configured processes and prints "<pid> <log>" for each.
// It stops at the first process that cannot be made ready.
func (c *command) Ensure(w io.Writer, f EnsureFlags) error {
	if c.global.ConfigPath == "" {
		return errors.New("ensure requires --config")
	}
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	specs, err := s.cfg.Specs()
	if err != nil {
		return err
	}
	matched := false
	for _, ns := range specs {
		if f.Name != "" && ns.Name != f.Name {
			continue
		}
		matched = true
		pid, logPath, err := s.ctl.Ensure(ns.Name, starter.Static(ns.Spec), controller.WithRestart(f.Restart))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%d %s\n", pid, logPath); err != nil {
			return err
		}
	}
	if f.Name != "" && !matched {
		return fmt.Errorf("process %q not found in %s", f.Name, c.global.ConfigPath)
	}
	return nil
}

func (c *command) CleanLogs() error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.ctl.CleanLogs()
}

// serverConfig layers the serve flags over the config file.
func serverConfig(cfg config.ServerConfig, f ServeFlags) config.ServerConfig {
	if f.Addr != "" {
		cfg.Addr = f.Addr
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultServerAddr
	}
	if f.BasePath != "" {
		cfg.BasePath = f.BasePath
	}
	if cfg.BasePath == "" {
		cfg.BasePath = config.DefaultBasePath
	}
	cfg.Metrics = cfg.Metrics || f.Metrics
	if f.TLSCert != "" || f.TLSKey != "" || f.TLSDir != "" {
		cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Dir = f.TLSCert, f.TLSKey, f.TLSDir
	}
	cfg.TLS.AutoGenerate = cfg.TLS.AutoGenerate || f.TLSAutoGen
	return cfg
}

// Serve runs the HTTP API until ctx is done or SIGINT/SIGTERM arrives.
func (c *command) Serve(ctx context.Context, w io.Writer, f ServeFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	sc := serverConfig(s.cfg.Server, f)
	var extra map[string]http.Handler
	if sc.Metrics {
		if err := xprocess.RegisterMetricsDefault(); err != nil {
			s.log.Warn("failed to register metrics", "error", err)
		}
		extra = map[string]http.Handler{"/metrics": metrics.Handler()}
	}
	tlsCfg, err := xtls.Setup(sc.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	srv, err := server.NewTLSServer(sc.Addr, sc.BasePath, s.ctl, extra, tlsCfg)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	protocol := "HTTP"
	if tlsCfg != nil {
		protocol = "HTTPS"
	}
	_, _ = fmt.Fprintf(w, "Serving xprocess %s API on %s%s (root %s)\n", protocol, srv.Addr, sc.BasePath, s.ctl.Root())

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	_, _ = fmt.Fprintln(w, "Shutting down...")
	return srv.Close()
}
