package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

// Config selects the certificate of the HTTP API. Explicit files win over
// a directory; a directory may get a self-signed pair generated into it.
type Config struct {
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	Dir          string `mapstructure:"dir"`
	AutoGenerate bool   `mapstructure:"auto_generate"`
	MinVersion   string `mapstructure:"min_version"` // 1.2|1.3 (default 1.3)
}

// Enabled reports whether any certificate source is configured.
func (c Config) Enabled() bool {
	return (c.CertFile != "" && c.KeyFile != "") || c.Dir != ""
}

// parseTLSVersion parses TLS version string and returns the corresponding constant
func parseTLSVersion(ver string) (uint16, error) {
	switch strings.ToLower(ver) {
	case "", "default", "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// safeReadFile reads file content safely within base directory
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// certificateLoader reloads the pair on every handshake so that rotated
// files are picked up without a restart.
func certificateLoader(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	certDir := filepath.Dir(certFile)
	keyDir := filepath.Dir(keyFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := safeReadFile(certDir, certFile)
		if err != nil {
			return nil, err
		}
		keyPEM, err := safeReadFile(keyDir, keyFile)
		if err != nil {
			return nil, err
		}
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		return &pair, err
	}
}

// Setup returns the server TLS configuration, or nil when c is not enabled.
func Setup(c Config) (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	minVer, err := parseTLSVersion(c.MinVersion)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := c.CertFile, c.KeyFile
	if certPath == "" || keyPath == "" {
		certPath = filepath.Join(c.Dir, tlsCrt)
		keyPath = filepath.Join(c.Dir, tlsKey)
		if !certificatesExist(certPath, keyPath) {
			if !c.AutoGenerate {
				return nil, fmt.Errorf("no certificate in %s and auto_generate is off", c.Dir)
			}
			if err := generateCertificate(c.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	// #nosec G402 minimum version is configurable down to 1.2
	return &tls.Config{
		GetCertificate: certificateLoader(certPath, keyPath),
		MinVersion:     minVer,
	}, nil
}

// certificatesExist checks if both certificate files exist
func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

// generateCertificate writes a self-signed localhost pair into destDir.
func generateCertificate(destDir string) error {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   "localhost",
		Organization: "xprocess",
		DNSNames:     []string{"localhost"},
		IPAddresses:  []string{"127.0.0.1", "::1"},
		NotAfter:     time.Now().AddDate(1, 0, 0),
		CertPath:     filepath.Join(destDir, tlsCrt),
		KeyPath:      filepath.Join(destDir, tlsKey),
		CACertPath:   filepath.Join(destDir, tlsCaCrt),
	})
}
