//go:build !windows

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/loykin/xprocess/internal/config"
	"github.com/loykin/xprocess/internal/process"
	xtls "github.com/loykin/xprocess/internal/tls"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func recordDead(t *testing.T, root, name string) *process.Info {
	t.Helper()
	info := process.Load(root, name)
	require.NoError(t, process.WritePIDFile(info.PIDPath, 1<<22-1, process.PIDMeta{StartUnix: 1}))
	return info
}

func writeConfig(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procs.toml")
	content := fmt.Sprintf(`root = %q
persist_logs = false

[log]
level = "warn"

[[processes]]
name = "svc"
args = ["/bin/sh", "-c", "echo booting; echo ready; exec sleep 30"]
pattern = "ready"
timeout = "5s"

[[processes]]
name = "other"
command = "sleep 30"
pattern = "never"
timeout = "1s"
`, root)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHelpMentionsCommands(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	for _, c := range []string{"show", "kill", "ensure", "serve", "clean-logs"} {
		assert.Contains(t, out, c)
	}
}

func TestShowEmptyRoot(t *testing.T) {
	out, err := runCLI(t, "--root", t.TempDir(), "show")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestShowTextAndYAML(t *testing.T) {
	root := t.TempDir()
	info := recordDead(t, root, "svc")

	out, err := runCLI(t, "--root", root, "show")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d svc DEAD %s\n", info.PID, info.LogPath), out)

	out, err = runCLI(t, "--root", root, "show", "--format", "yaml")
	require.NoError(t, err)
	var rows []listingRow
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, listingRow{Name: "svc", PID: info.PID, LogPath: info.LogPath}, rows[0])

	out, err = runCLI(t, "--root", root, "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"log_path"`)

	_, err = runCLI(t, "--root", root, "show", "--format", "xml")
	assert.Error(t, err)
}

func TestKillReportsEveryProcess(t *testing.T) {
	root := t.TempDir()
	recordDead(t, root, "a")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o750))

	out, err := runCLI(t, "--root", root, "kill", "--timeout", "1s")
	require.NoError(t, err, "kill exits cleanly even when nothing was terminated")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " a NO PROCESS FOUND"), lines[0])
	assert.Equal(t, "None b NO PROCESS FOUND", lines[1])
}

func TestEnsureRequiresConfig(t *testing.T) {
	_, err := runCLI(t, "--root", t.TempDir(), "ensure")
	assert.ErrorContains(t, err, "--config")
}

func TestEnsureShowKillLifecycle(t *testing.T) {
	root := t.TempDir()
	cfg := writeConfig(t, root)

	out, err := runCLI(t, "--config", cfg, "ensure", "--name", "svc")
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 2, out)
	pid, err := strconv.Atoi(fields[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "svc", process.LogFileName), fields[1])
	t.Cleanup(func() {
		p, _ := os.FindProcess(pid)
		_ = p.Kill()
		_, _ = p.Wait()
	})

	// reuse prints the same pid
	again, err := runCLI(t, "--config", cfg, "ensure", "--name", "svc")
	require.NoError(t, err)
	assert.Equal(t, out, again)

	out, err = runCLI(t, "--root", root, "show")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%d svc LIVE", pid))

	start := time.Now()
	out, err = runCLI(t, "--root", root, "kill", "--timeout", "5s")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d svc TERMINATED\n", pid), out)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEnsureReportsStartupFailure(t *testing.T) {
	root := t.TempDir()
	cfg := writeConfig(t, root)
	t.Cleanup(func() { _, _ = runCLI(t, "--root", root, "kill", "--timeout", "2s") })

	_, err := runCLI(t, "--config", cfg, "ensure", "--name", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other")

	_, err = runCLI(t, "--config", cfg, "ensure", "--name", "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestCleanLogsTruncates(t *testing.T) {
	root := t.TempDir()
	info := recordDead(t, root, "svc")
	require.NoError(t, os.WriteFile(info.LogPath, []byte("old output\n"), 0o600))

	_, err := runCLI(t, "--root", root, "clean-logs")
	require.NoError(t, err)
	b, err := os.ReadFile(info.LogPath)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	xcmd := &command{global: &GlobalFlags{Root: t.TempDir()}}
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- xcmd.Serve(ctx, &out, ServeFlags{Addr: "127.0.0.1:0", Metrics: true, TLSDir: t.TempDir(), TLSAutoGen: true})
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Contains(t, out.String(), "HTTPS")
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServerConfigLayering(t *testing.T) {
	got := serverConfig(config.ServerConfig{}, ServeFlags{})
	assert.Equal(t, config.DefaultServerAddr, got.Addr)
	assert.Equal(t, config.DefaultBasePath, got.BasePath)
	assert.False(t, got.TLS.Enabled())

	file := config.ServerConfig{Addr: "0.0.0.0:9000", BasePath: "/x", TLS: xtls.Config{Dir: "/certs"}}
	got = serverConfig(file, ServeFlags{Metrics: true, TLSAutoGen: true})
	assert.Equal(t, "0.0.0.0:9000", got.Addr)
	assert.Equal(t, "/x", got.BasePath)
	assert.True(t, got.Metrics)
	assert.Equal(t, "/certs", got.TLS.Dir)
	assert.True(t, got.TLS.AutoGenerate)

	got = serverConfig(file, ServeFlags{Addr: "127.0.0.1:1", TLSCert: "c.pem", TLSKey: "k.pem"})
	assert.Equal(t, "127.0.0.1:1", got.Addr)
	assert.Equal(t, xtls.Config{CertFile: "c.pem", KeyFile: "k.pem"}, got.TLS)
}
