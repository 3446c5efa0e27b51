//go:build !windows

package server

import (
	"encoding/json"
	"net/http"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/xprocess/internal/process"
)

func TestTerminateLiveProcess(t *testing.T) {
	h, ctl := setupRouter(t, "/api")
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	require.NoError(t, process.Load(ctl.Root(), "sleeper").Record(cmd.Process.Pid))

	rec := doReq(t, h, http.MethodGet, "/api/processes/sleeper", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v processView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Running)
	assert.Equal(t, cmd.Process.Pid, v.PID)

	start := time.Now()
	rec = doReq(t, h, http.MethodPost, "/api/processes/sleeper/terminate?timeout=5s", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tv terminationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tv))
	assert.Equal(t, "TERMINATED", tv.Result)
	assert.Equal(t, 1, tv.Code)
	assert.Less(t, time.Since(start), 5*time.Second)

	rec = doReq(t, h, http.MethodGet, "/api/processes/sleeper", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.False(t, v.Running)
}
