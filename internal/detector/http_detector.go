package detector

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDetector reports ready once a GET on URL answers with ExpectStatus
// (any 2xx when zero).
type HTTPDetector struct {
	URL          string
	ExpectStatus int
	Timeout      time.Duration
}

func (d HTTPDetector) Alive() (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	req, err := http.NewRequest(http.MethodGet, d.URL, nil)
	if err != nil {
		return false, fmt.Errorf("http detector: %w", err)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return false, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if d.ExpectStatus != 0 {
		return resp.StatusCode == d.ExpectStatus, nil
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func (d HTTPDetector) Describe() string { return "http:" + d.URL }
