package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/xprocess/internal/detector"
	"github.com/loykin/xprocess/internal/env"
	"github.com/loykin/xprocess/internal/logger"
	"github.com/loykin/xprocess/internal/starter"
	xtls "github.com/loykin/xprocess/internal/tls"
)

// EnvPrefix is the prefix of environment variables overriding top-level keys,
// e.g. XPROCESS_ROOT or XPROCESS_HISTORY_DSN.
const EnvPrefix = "XPROCESS"

// Defaults of the serve command.
const (
	DefaultServerAddr = "127.0.0.1:8080"
	DefaultBasePath   = "/api"
)

// Config is the file-level configuration of a controller.
type Config struct {
	Root            string        `mapstructure:"root"`
	PersistLogs     bool          `mapstructure:"persist_logs"`
	ProcWaitTimeout time.Duration `mapstructure:"proc_wait_timeout"`
	Env             []string      `mapstructure:"env"`
	EnvFiles        []string      `mapstructure:"env_files"`
	HistoryDSN      string        `mapstructure:"history_dsn"`
	Log             logger.Config `mapstructure:"log"`
	Server          ServerConfig  `mapstructure:"server"`
	Processes       []ProcConfig  `mapstructure:"processes"`
}

// ServerConfig configures the HTTP API of the serve command.
type ServerConfig struct {
	Addr     string      `mapstructure:"addr"`
	BasePath string      `mapstructure:"base_path"`
	Metrics  bool        `mapstructure:"metrics"`
	TLS      xtls.Config `mapstructure:"tls"`
}

// ProcConfig describes one named process.
type ProcConfig struct {
	Name                 string        `mapstructure:"name"`
	Args                 []string      `mapstructure:"args"`
	Command              string        `mapstructure:"command"` // split on whitespace when args is empty
	WorkDir              string        `mapstructure:"workdir"`
	Pattern              string        `mapstructure:"pattern"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxReadLines         int           `mapstructure:"max_read_lines"`
	Env                  []string      `mapstructure:"env"` // K=V pairs; keys keep their case
	CleanEnv             bool          `mapstructure:"clean_env"`
	TerminateOnInterrupt bool          `mapstructure:"terminate_on_interrupt"`
	StartupCheck         *CheckConfig  `mapstructure:"startup_check"`
}

// CheckConfig selects an active readiness probe.
type CheckConfig struct {
	Type         string        `mapstructure:"type"` // tcp|http|command
	Address      string        `mapstructure:"address"`
	URL          string        `mapstructure:"url"`
	ExpectStatus int           `mapstructure:"expect_status"`
	Command      string        `mapstructure:"command"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// NamedSpec is a launch spec together with the name it is ensured under.
type NamedSpec struct {
	Name string
	Spec starter.Spec
}

// Load reads the config file at path. The format follows the extension
// (toml, yaml, yml, json). Top-level keys can be overridden from the
// environment with the XPROCESS_ prefix.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		ext = "toml"
	}
	v.SetConfigType(ext)
	v.SetDefault("root", "")
	v.SetDefault("persist_logs", true)
	v.SetDefault("proc_wait_timeout", "60s")
	v.SetDefault("history_dsn", "")
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &c, nil
}

// Environment builds the controller-wide environment: env_files in order,
// then the env list.
func (c *Config) Environment() (*env.Env, error) {
	e := env.New()
	for _, p := range c.EnvFiles {
		m, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			e.Set(k, v)
		}
	}
	for k, v := range env.Parse(c.Env) {
		e.Set(k, v)
	}
	return e, nil
}

// Specs converts the process entries into launch specs.
func (c *Config) Specs() ([]NamedSpec, error) {
	out := make([]NamedSpec, 0, len(c.Processes))
	seen := make(map[string]bool, len(c.Processes))
	for _, pc := range c.Processes {
		if pc.Name == "" {
			return nil, errors.New("process entry requires name")
		}
		if seen[pc.Name] {
			return nil, fmt.Errorf("duplicate process name %q", pc.Name)
		}
		seen[pc.Name] = true
		s, err := pc.Spec()
		if err != nil {
			return nil, err
		}
		out = append(out, NamedSpec{Name: pc.Name, Spec: s})
	}
	return out, nil
}

// Spec converts one entry into a launch spec.
func (pc ProcConfig) Spec() (starter.Spec, error) {
	args := pc.Args
	if len(args) == 0 {
		args = strings.Fields(pc.Command)
	}
	s := starter.Spec{
		Args:                 args,
		Pattern:              pc.Pattern,
		Timeout:              pc.Timeout,
		MaxReadLines:         pc.MaxReadLines,
		Env:                  env.Parse(pc.Env),
		CleanEnv:             pc.CleanEnv,
		Launch:               starter.LaunchOptions{WorkDir: pc.WorkDir},
		TerminateOnInterrupt: pc.TerminateOnInterrupt,
	}
	if pc.StartupCheck != nil {
		d, err := pc.StartupCheck.Detector()
		if err != nil {
			return starter.Spec{}, fmt.Errorf("process %s: %w", pc.Name, err)
		}
		s.StartupCheck = detector.Check(d)
	}
	if err := s.Validate(); err != nil {
		return starter.Spec{}, fmt.Errorf("process %s: %w", pc.Name, err)
	}
	return s, nil
}

// Detector builds the probe described by the entry.
func (cc CheckConfig) Detector() (detector.Detector, error) {
	switch strings.ToLower(cc.Type) {
	case "tcp":
		if cc.Address == "" {
			return nil, errors.New("tcp startup check requires address")
		}
		return detector.TCPDetector{Address: cc.Address, Timeout: cc.Timeout}, nil
	case "http":
		if cc.URL == "" {
			return nil, errors.New("http startup check requires url")
		}
		return detector.HTTPDetector{URL: cc.URL, ExpectStatus: cc.ExpectStatus, Timeout: cc.Timeout}, nil
	case "command":
		if cc.Command == "" {
			return nil, errors.New("command startup check requires command")
		}
		return detector.CommandDetector{Command: cc.Command, Timeout: cc.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown startup check type %q", cc.Type)
	}
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}
