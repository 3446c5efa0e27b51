package detector

import (
	"net"
	"time"
)

// TCPDetector reports ready once Address accepts a TCP connection.
type TCPDetector struct {
	Address string
	Timeout time.Duration
}

func (d TCPDetector) Alive() (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	conn, err := net.DialTimeout("tcp", d.Address, timeout)
	if err != nil {
		// refused or unreachable just means not ready yet
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

func (d TCPDetector) Describe() string { return "tcp:" + d.Address }
