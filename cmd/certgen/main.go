// Command certgen writes a self-signed server certificate for local TLS.
// Existing files are left alone unless -force is given.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/identity-gateway/observability"
)

type options struct {
	dir      string
	hosts    []string
	validFor time.Duration
	force    bool
}

func main() {
	var (
		dir   = flag.String("out", "certs", "directory for cert.pem and key.pem")
		hosts = flag.String("hosts", "localhost,host.docker.internal", "comma separated DNS names")
		days  = flag.Int("days", 365, "validity in days")
		force = flag.Bool("force", false, "overwrite existing files")
	)
	flag.Parse()

	logger, err := observability.NewLogger("info", "text")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	opts := options{
		dir:      *dir,
		hosts:    splitHosts(*hosts),
		validFor: time.Duration(*days) * 24 * time.Hour,
		force:    *force,
	}

	written, err := generate(opts, time.Now())
	if err != nil {
		logger.Fatal("certificate generation failed", zap.Error(err))
	}
	if !written {
		logger.Info("certificate already exists, not regenerating", zap.String("dir", opts.dir))
		return
	}
	logger.Info("certificate written",
		zap.String("dir", opts.dir),
		zap.Strings("hosts", opts.hosts))
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// generate writes cert.pem and key.pem into opts.dir. It reports false when
// the certificate already exists and opts.force is unset.
func generate(opts options, now time.Time) (bool, error) {
	if len(opts.hosts) == 0 {
		return false, errors.New("at least one host is required")
	}
	certPath := filepath.Join(opts.dir, "cert.pem")
	keyPath := filepath.Join(opts.dir, "key.pem")

	if !opts.force {
		if _, err := os.Stat(certPath); err == nil {
			return false, nil
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return false, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return false, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.hosts[0]},
		DNSNames:              opts.hosts,
		NotBefore:             now.Add(-10 * time.Minute),
		NotAfter:              now.Add(opts.validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return false, fmt.Errorf("create certificate: %w", err)
	}

	if err := os.MkdirAll(opts.dir, 0o755); err != nil {
		return false, fmt.Errorf("create output dir: %w", err)
	}
	if err := writePEM(certPath, "CERTIFICATE", der, 0o644); err != nil {
		return false, err
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0o600); err != nil {
		return false, err
	}
	return true, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
