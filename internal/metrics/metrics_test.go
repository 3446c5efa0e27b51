package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndHelpersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncEnsure("echo", OutcomeLaunch)
	IncEnsure("echo", OutcomeReuse)
	IncEnsure("echo", OutcomeReuse)
	ObserveStartup("echo", 0.25)
	IncTermination("echo", "TERMINATED")
	SetRunning("echo", true)

	if v := testutil.ToFloat64(ensures.WithLabelValues("echo", OutcomeReuse)); v != 2 {
		t.Fatalf("reuse count: %v", v)
	}
	if v := testutil.ToFloat64(terminations.WithLabelValues("echo", "TERMINATED")); v != 1 {
		t.Fatalf("termination count: %v", v)
	}
	if v := testutil.ToFloat64(running.WithLabelValues("echo")); v != 1 {
		t.Fatalf("running gauge: %v", v)
	}
	SetRunning("echo", false)
	if v := testutil.ToFloat64(running.WithLabelValues("echo")); v != 0 {
		t.Fatalf("running gauge after stop: %v", v)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"xprocess_controller_ensure_total":             false,
		"xprocess_controller_startup_duration_seconds": false,
		"xprocess_process_terminations_total":          false,
		"xprocess_process_running":                     false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}

func TestHandlerServes(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), "# HELP") {
		t.Fatalf("unexpected metrics response %d", resp.StatusCode)
	}
}
