package server

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/xprocess/internal/controller"
	"github.com/loykin/xprocess/internal/process"
	xtls "github.com/loykin/xprocess/internal/tls"
)

func setupRouter(t *testing.T, base string) (http.Handler, *controller.Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl, err := controller.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctl.Close() })
	return NewRouter(ctl, base).Handler(), ctl
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// recordDead leaves a control directory whose pid file names a process that
// is not running.
func recordDead(t *testing.T, ctl *controller.Controller, name string) {
	t.Helper()
	info := process.Load(ctl.Root(), name)
	require.NoError(t, process.WritePIDFile(info.PIDPath, 1<<22-1, process.PIDMeta{StartUnix: 1}))
}

func TestListEmpty(t *testing.T) {
	h, _ := setupRouter(t, "/api/")
	rec := doReq(t, h, http.MethodGet, "/api/processes", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListShowsControlDirs(t *testing.T) {
	h, ctl := setupRouter(t, "")
	recordDead(t, ctl, "b")
	require.NoError(t, os.MkdirAll(process.Load(ctl.Root(), "a").ControlDir, 0o750))

	rec := doReq(t, h, http.MethodGet, "/processes", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var arr []processView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arr))
	require.Len(t, arr, 2)
	assert.Equal(t, "a", arr[0].Name)
	assert.Equal(t, 0, arr[0].PID)
	assert.Equal(t, "b", arr[1].Name)
	assert.False(t, arr[1].Running)
}

func TestStatusUnknownAndInvalid(t *testing.T) {
	h, _ := setupRouter(t, "/x")
	rec := doReq(t, h, http.MethodGet, "/x/processes/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doReq(t, h, http.MethodGet, "/x/processes/a..b", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doReq(t, h, http.MethodGet, "/x/processes/bad*name", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusDead(t *testing.T) {
	h, ctl := setupRouter(t, "")
	recordDead(t, ctl, "svc")
	rec := doReq(t, h, http.MethodGet, "/processes/svc", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v processView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "svc", v.Name)
	assert.False(t, v.Running)
	assert.Equal(t, process.Load(ctl.Root(), "svc").LogPath, v.LogPath)
}

func TestTerminateDeadIsNoop(t *testing.T) {
	h, ctl := setupRouter(t, "")
	recordDead(t, ctl, "svc")
	rec := doReq(t, h, http.MethodPost, "/processes/svc/terminate?tree=false&timeout=1s", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v terminationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "NO PROCESS FOUND", v.Result)
	assert.Equal(t, 0, v.Code)
}

func TestTerminateRejectsBadQuery(t *testing.T) {
	h, _ := setupRouter(t, "")
	for _, q := range []string{"?tree=maybe", "?timeout=soon", "?timeout=-1s"} {
		rec := doReq(t, h, http.MethodPost, "/processes/svc/terminate"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		rec = doReq(t, h, http.MethodPost, "/terminate-all"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestTerminateAllNothingRunning(t *testing.T) {
	h, ctl := setupRouter(t, "")
	recordDead(t, ctl, "one")
	recordDead(t, ctl, "two")
	rec := doReq(t, h, http.MethodPost, "/terminate-all", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out terminateAllResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Terminated)
	require.Len(t, out.Results, 2)
	for _, r := range out.Results {
		assert.Equal(t, "NO PROCESS FOUND", r.Result)
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/processes", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServerStartClose(t *testing.T) {
	ctl, err := controller.New(t.TempDir())
	require.NoError(t, err)
	srv, err := NewServer("127.0.0.1:0", "/x", ctl, map[string]http.Handler{
		"/metrics": http.NotFoundHandler(),
	})
	require.NoError(t, err)
	_ = srv.Close()
}

func TestNewTLSServerServesHTTPS(t *testing.T) {
	ctl, err := controller.New(t.TempDir())
	require.NoError(t, err)
	tlsCfg, err := xtls.Setup(xtls.Config{Dir: t.TempDir(), AutoGenerate: true})
	require.NoError(t, err)

	srv, err := NewTLSServer("127.0.0.1:0", "/api", ctl, nil, tlsCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	client := &http.Client{
		Timeout: 5 * time.Second,
		// #nosec G402 self-signed test certificate
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
	}
	resp, err := client.Get("https://" + srv.Addr + "/api/processes")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNormalizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
		{"//v1/api//", "/v1/api"},
	}
	for _, c := range cases {
		if got := normalizeBase(c.in); got != c.want {
			t.Fatalf("normalizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestRespondLeavesPathsUnescaped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	respond(c, http.StatusCreated, map[string]string{"pattern": "<ready> & up"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "{\"pattern\":\"<ready> & up\"}\n", rec.Body.String())
}

func TestRouterMountsInEcho(t *testing.T) {
	h, ctl := setupRouter(t, "/api")
	recordDead(t, ctl, "svc")

	e := echo.New()
	e.Any("/api", echo.WrapHandler(h))
	e.Any("/api/*", echo.WrapHandler(h))

	rec := doReq(t, e, http.MethodGet, "/api/processes/svc", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v processView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "svc", v.Name)
	assert.False(t, v.Running)

	rec = doReq(t, e, http.MethodPost, "/api/processes/svc/terminate?tree=false", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var term terminationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &term))
	assert.Equal(t, int(process.ResultNoop), term.Code)
}
