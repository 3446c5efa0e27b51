// Package echoserver turns a test binary into the external processes the
// controller tests launch. Call MainIfRequested first thing in TestMain and
// use Command to build the launch arguments.
package echoserver

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Modes.
const (
	ModeServer   = "server"   // noisy startup, forks children, answers pings
	ModeChild    = "child"    // sleeps until killed
	ModeStubborn = "stubborn" // ignores SIGTERM
	ModeLines    = "lines"    // prints a configurable amount of noise then a marker
)

// Environment knobs.
const (
	EnvMode     = "XPROCESS_ECHO_SERVER"
	EnvChildren = "XPROCESS_ECHO_CHILDREN" // server: number of forked children (default 5)
	EnvLines    = "XPROCESS_ECHO_LINES"    // lines: non-blank noise lines before the marker
	EnvBlank    = "XPROCESS_ECHO_BLANK"    // lines: blank lines before the noise
	EnvMarker   = "XPROCESS_ECHO_MARKER"   // lines: marker text, empty for none
	EnvDelay    = "XPROCESS_ECHO_DELAY"    // lines: delay before the marker
	EnvResponse = "RESPONSE"               // server: reply per received line (default "1")
)

// AddrFile is written into the working directory by the server before it
// reports "started".
const AddrFile = "echo.addr"

// Marker is printed by the server once it accepts connections.
const Marker = "started"

// MainIfRequested runs the helper and exits when the binary was started as
// one. It returns immediately otherwise.
func MainIfRequested() {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		return
	}
	os.Exit(run(mode))
}

// Command returns the argument vector and environment that launch the current
// binary in mode. extra is merged into the returned environment.
func Command(mode string, extra map[string]string) ([]string, map[string]string) {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	env := map[string]string{EnvMode: mode}
	for k, v := range extra {
		env[k] = v
	}
	return []string{exe, "-test.run=^$"}, env
}

// ReadAddr returns the address the server in dir listens on.
func ReadAddr(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, AddrFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func run(mode string) int {
	switch mode {
	case ModeServer:
		return serve()
	case ModeChild:
		sleepForever()
		return 0
	case ModeStubborn:
		signal.Ignore(syscall.SIGTERM)
		fmt.Println(Marker)
		sleepForever()
		return 0
	case ModeLines:
		return lines()
	}
	fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
	return 2
}

func sleepForever() {
	for {
		time.Sleep(time.Hour)
	}
}

func serve() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := writeAddr(ln.Addr().String()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	forkChildren(intEnv(EnvChildren, 5))

	w := os.Stderr
	for i := 0; i < 100; i++ {
		_, _ = w.WriteString("\n")
	}
	for i := 0; i < 5; i++ {
		_, _ = fmt.Fprintf(w, "%d , %% /.%%,@%%@._%%%%# #/%%/ %%\n", i)
	}
	for i := 0; i < 5; i++ {
		// no newline: the fragments run into the marker line
		_, _ = w.Write([]byte("\xca\xff\xe6\xfe\x70P\x80\x81\xe7\xee\xf6\xc4\x93adå\xffráøū"))
	}
	_, _ = w.WriteString(Marker + "\n")

	response := os.Getenv(EnvResponse)
	if response == "" {
		response = "1"
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return 1
		}
		go handle(conn, response)
	}
}

func handle(conn net.Conn, response string) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	for n := 0; ; n++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "%d %q\n", n, line)
		if _, err := conn.Write([]byte(response)); err != nil {
			return
		}
	}
}

func writeAddr(addr string) error {
	tmp := AddrFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(addr+"\n"), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, AddrFile)
}

func forkChildren(n int) {
	args, env := Command(ModeChild, nil)
	for i := 0; i < n; i++ {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Env = append(os.Environ(), EnvMode+"="+env[EnvMode])
		if err := cmd.Start(); err != nil {
			fmt.Fprintln(os.Stderr, "fork child:", err)
		}
	}
}

func lines() int {
	for i := 0; i < intEnv(EnvBlank, 0); i++ {
		fmt.Println()
	}
	for i := 0; i < intEnv(EnvLines, 0); i++ {
		fmt.Printf("noise line %d\n", i+1)
	}
	if d, err := time.ParseDuration(os.Getenv(EnvDelay)); err == nil {
		time.Sleep(d)
	}
	if marker := os.Getenv(EnvMarker); marker != "" {
		fmt.Println(marker)
	}
	sleepForever()
	return 0
}

func intEnv(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return def
}
