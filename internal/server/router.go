package server

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/xprocess/internal/controller"
	"github.com/loykin/xprocess/internal/process"
)

// Controller is the subset of *controller.Controller the router serves.
type Controller interface {
	List() ([]controller.Listing, error)
	Info(name string) *process.Info
	Terminate(name string, opts ...process.TerminateOption) (process.Result, error)
	TerminateAll(opts ...process.TerminateOption) (bool, []controller.Termination, error)
}

// Router provides embeddable HTTP handlers for inspecting and terminating
// the processes under a controller root.
// Endpoints:
//
//	GET  {basePath}/processes                  list every control directory
//	GET  {basePath}/processes/:name            status of one process
//	POST {basePath}/processes/:name/terminate  query: tree=true&timeout=20s
//	POST {basePath}/terminate-all              query: tree=true&timeout=20s
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      Controller
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(ctl Controller, basePath string) *Router {
	return &Router{ctl: ctl, basePath: normalizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/processes", r.handleList)
	group.GET("/processes/:name", r.handleStatus)
	group.POST("/processes/:name/terminate", r.handleTerminate)
	group.POST("/terminate-all", r.handleTerminateAll)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router. The
// returned server's Addr is the bound address. Extra handlers are mounted next to it, keyed by path (e.g. "/metrics").
func NewServer(addr, basePath string, ctl Controller, extra map[string]http.Handler) (*http.Server, error) {
	return NewTLSServer(addr, basePath, ctl, extra, nil)
}

// NewTLSServer is NewServer serving HTTPS when tlsCfg is not nil.
func NewTLSServer(addr, basePath string, ctl Controller, extra map[string]http.Handler, tlsCfg *tls.Config) (*http.Server, error) {
	r := NewRouter(ctl, basePath)
	var h http.Handler = r.Handler()
	if len(extra) > 0 {
		mux := http.NewServeMux()
		for path, eh := range extra {
			mux.Handle(path, eh)
		}
		mux.Handle("/", h)
		h = mux
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// tree termination may wait for two full stages
		WriteTimeout: 2*process.DefaultTerminateTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server.Addr = ln.Addr().String()
	go func() {
		if tlsCfg != nil {
			_ = server.ServeTLS(ln, "", "")
			return
		}
		_ = server.Serve(ln)
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type processView struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
	LogPath string `json:"log_path"`
}

type terminationView struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	Result string `json:"result"`
	Code   int    `json:"code"`
}

type terminateAllResp struct {
	Terminated bool              `json:"terminated"`
	Results    []terminationView `json:"results"`
}

func viewOf(info *process.Info, running bool) processView {
	return processView{Name: info.Name, PID: info.PID, Running: running, LogPath: info.LogPath}
}

func terminationOf(info *process.Info, res process.Result) terminationView {
	return terminationView{Name: info.Name, PID: info.PID, Result: res.String(), Code: int(res)}
}

func (r *Router) handleList(c *gin.Context) {
	listings, err := r.ctl.List()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]processView, 0, len(listings))
	for _, l := range listings {
		out = append(out, viewOf(l.Info, l.Running))
	}
	respond(c, http.StatusOK, out)
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Param("name")
	if err := controller.ValidateName(name); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	info := r.ctl.Info(name)
	if _, err := os.Stat(info.ControlDir); errors.Is(err, os.ErrNotExist) {
		fail(c, http.StatusNotFound, errors.New("unknown process: "+name))
		return
	}
	respond(c, http.StatusOK, viewOf(info, info.IsRunning(true)))
}

func (r *Router) handleTerminate(c *gin.Context) {
	name := c.Param("name")
	if err := controller.ValidateName(name); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	opts, err := terminateOptions(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	res, err := r.ctl.Terminate(name, opts...)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	respond(c, http.StatusOK, terminationOf(r.ctl.Info(name), res))
}

func (r *Router) handleTerminateAll(c *gin.Context) {
	opts, err := terminateOptions(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	terminated, terms, err := r.ctl.TerminateAll(opts...)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	out := terminateAllResp{Terminated: terminated, Results: make([]terminationView, 0, len(terms))}
	for _, t := range terms {
		out.Results = append(out.Results, terminationOf(t.Info, t.Result))
	}
	respond(c, http.StatusOK, out)
}

// terminateOptions reads the optional tree and timeout query parameters.
func terminateOptions(c *gin.Context) ([]process.TerminateOption, error) {
	var opts []process.TerminateOption
	if v := c.Query("tree"); v != "" {
		tree, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("invalid tree: " + v)
		}
		opts = append(opts, process.WithProcessTree(tree))
	}
	if v := c.Query("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("invalid timeout: " + v)
		}
		opts = append(opts, process.WithTimeout(d))
	}
	return opts, nil
}

// normalizeBase turns " api/ " and "/api" alike into "/api"; "/" means no prefix.
func normalizeBase(bp string) string {
	bp = strings.Trim(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	return "/" + bp
}

// respond writes v as a JSON document with status code. Log paths and
// patterns are left unescaped.
func respond(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	enc := json.NewEncoder(c.Writer)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func fail(c *gin.Context, code int, err error) {
	respond(c, code, errorResp{Error: err.Error()})
}
