package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PIDMeta is the optional second line of a pid file. StartUnix lets a reader
// tell a live process apart from an unrelated one that reused the pid.
type PIDMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// ReadPIDFile reads a pid file written by WritePIDFile.
// The first line holds the decimal pid. A second line, when present, holds
// PIDMeta as JSON; files that contain only the pid yield a zero PIDMeta.
func ReadPIDFile(path string) (int, PIDMeta, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, PIDMeta{}, err
	}
	content := strings.ReplaceAll(string(b), "\r\n", "\n")
	pidLine, rest, _ := strings.Cut(content, "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, PIDMeta{}, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, PIDMeta{}, fmt.Errorf("invalid pid in %s: %d", path, pid)
	}
	var meta PIDMeta
	metaLine, _, _ := strings.Cut(strings.TrimSpace(rest), "\n")
	if metaLine != "" {
		// meta is advisory; keep the pid even when it cannot be parsed
		_ = json.Unmarshal([]byte(metaLine), &meta)
	}
	return pid, meta, nil
}

// WritePIDFile persists pid and, when meta.StartUnix is known, the meta line.
func WritePIDFile(path string, pid int, meta PIDMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	content := strconv.Itoa(pid)
	if meta.StartUnix > 0 {
		mb, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		content += "\n" + string(mb)
	}
	return os.WriteFile(path, []byte(content+"\n"), 0o600)
}
