package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the controller log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where controller diagnostics go.
// Output from managed processes is never routed through here: those logs are
// re-read by the controller and must not be rotated underneath it.
type Config struct {
	Level    string     `mapstructure:"level"`  // debug|info|warn|error (default info)
	Format   string     `mapstructure:"format"` // color|text|json (default color)
	ShowTime bool       `mapstructure:"show_time"`
	File     FileConfig `mapstructure:",squash"`
}

// FileConfig enables an additional rotating log file.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Writer returns a rotating writer for the configured file, or nil when no
// file is configured.
func (c FileConfig) Writer() io.WriteCloser {
	if c.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// New builds a slog.Logger writing to stderr and, if configured, to the
// rotating file as well. The returned closer releases the file writer and is
// never nil.
func New(c Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if fw := c.File.Writer(); fw != nil {
		w = io.MultiWriter(os.Stderr, fw)
		closer = fw
	}

	var h slog.Handler
	switch strings.ToLower(c.Format) {
	case "", "color":
		h = NewColorTextHandler(w, opts, c.ShowTime)
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", c.Format)
	}
	return slog.New(h), closer, nil
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
