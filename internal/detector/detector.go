package detector

import "time"

// Detector is an active readiness probe for a launched process: a command
// that succeeds, a port that accepts connections or an HTTP endpoint that
// answers. It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the process is detected as ready.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// DefaultProbeTimeout bounds a single network probe attempt.
const DefaultProbeTimeout = time.Second

// Check adapts d into a startup check. Probe errors count as "not ready yet".
func Check(d Detector) func() bool {
	return func() bool {
		ok, err := d.Alive()
		return err == nil && ok
	}
}
