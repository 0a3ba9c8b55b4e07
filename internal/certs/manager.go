// Package certs obtains and installs TLS certificates for sites, either
// automatically through ACME webroot validation or from an uploaded
// certificate/key pair. Certificate material lives under a restricted
// per-domain directory referenced directly by the rendered vhosts.
package certs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/validate"
)

const (
	fullchainName = "fullchain.pem"
	privkeyName   = "privkey.pem"

	// renewWindow is how close to expiry a certificate must be before
	// RenewDue re-requests it.
	renewWindow = 30 * 24 * time.Hour
)

var (
	ErrCertificateMismatch = errors.New("private key does not match certificate")
	ErrCertificateExpired  = errors.New("certificate is already expired")
	ErrInvalidCertificate  = errors.New("certificate could not be parsed")
	ErrInvalidDomain       = errors.New("invalid domain name")
)

// Manager issues, installs, and renews per-domain certificates.
type Manager struct {
	dataDir      string // ACME account state
	certsDir     string // per-domain certificate material
	directoryURL string // optional ACME directory override (staging)
	logger       *slog.Logger

	// request performs issuance for RenewDue. Points at RequestAuto;
	// tests swap it out to avoid a live CA.
	request func(ctx context.Context, domain, webrootDir, email string, includeWWW bool) (*models.CertResult, error)
}

// NewManager creates a certificate manager. dataDir holds ACME account
// state; certsDir holds the issued certificates.
func NewManager(dataDir, certsDir, directoryURL string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		dataDir:      dataDir,
		certsDir:     certsDir,
		directoryURL: directoryURL,
		logger:       logger,
	}
	m.request = m.RequestAuto
	return m
}

// CertPaths returns the fullchain and private key paths for a domain.
// The files may not exist yet.
func (m *Manager) CertPaths(domain string) (certPath, keyPath string) {
	dir := filepath.Join(m.certsDir, domain)
	return filepath.Join(dir, fullchainName), filepath.Join(dir, privkeyName)
}

// CertExists reports whether certificate material is installed for domain.
func (m *Manager) CertExists(domain string) bool {
	certPath, keyPath := m.CertPaths(domain)
	_, cerr := os.Stat(certPath)
	_, kerr := os.Stat(keyPath)
	return cerr == nil && kerr == nil
}

// RequestAuto obtains a certificate via ACME webroot validation against
// the site's htdocs directory. ACME-level failures (DNS not pointing at
// this host, port 80 unreachable, CA rate limits) come back as a
// CertResult with FailedReason set; the error return is reserved for
// local I/O problems.
func (m *Manager) RequestAuto(ctx context.Context, domain, webrootDir, email string, includeWWW bool) (*models.CertResult, error) {
	if !validate.Domain(domain) {
		return nil, ErrInvalidDomain
	}
	if email == "" {
		return nil, fmt.Errorf("acme email is required")
	}

	user, err := m.loadOrCreateACMEUser(email)
	if err != nil {
		return nil, err
	}

	result := &models.CertResult{Domain: domain}

	client, err := m.newACMEClient(user, webrootDir)
	if err != nil {
		result.FailedReason = fmt.Sprintf("acme setup failed: %v", err)
		return result, nil
	}

	domains := []string{domain}
	if includeWWW {
		domains = append(domains, "www."+domain)
	}

	// Obtain can take seconds to minutes; the caller is expected to
	// tolerate that latency.
	res, err := obtain(client, domains)
	if err != nil {
		m.logger.Warn("certificate request failed", "domain", domain, "error", err)
		result.FailedReason = fmt.Sprintf("certificate authority refused issuance: %v", err)
		return result, nil
	}

	expiry, err := certExpiry(res.Certificate)
	if err != nil {
		return nil, err
	}

	certPath, keyPath, err := m.writeCertFiles(domain, res.Certificate, res.PrivateKey)
	if err != nil {
		return nil, err
	}

	result.CertPath = certPath
	result.KeyPath = keyPath
	result.Expiry = expiry
	m.logger.Info("certificate issued", "domain", domain, "expiry", expiry)
	return result, nil
}

// InstallManual validates and installs an uploaded certificate/key pair.
// The pair is fully validated before anything touches the certificate
// directory: a mismatched key writes nothing.
func (m *Manager) InstallManual(domain string, certPEM, keyPEM []byte) (*models.CertResult, error) {
	if !validate.Domain(domain) {
		return nil, ErrInvalidDomain
	}

	cert, err := parseLeafCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	if time.Now().After(cert.NotAfter) {
		return nil, ErrCertificateExpired
	}

	// X509KeyPair verifies the private key against the certificate's
	// public key.
	if _, err := tls.X509KeyPair(certPEM, keyPEM); err != nil {
		return nil, ErrCertificateMismatch
	}

	certPath, keyPath, err := m.writeCertFiles(domain, certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	m.logger.Info("manual certificate installed", "domain", domain, "expiry", cert.NotAfter)
	return &models.CertResult{
		Domain:   domain,
		CertPath: certPath,
		KeyPath:  keyPath,
		Expiry:   cert.NotAfter,
	}, nil
}

// RenewCandidate describes a certificate eligible for renewal.
// IncludeWWW must match the coverage of the original issuance so the
// renewed certificate keeps serving every name in the vhost.
type RenewCandidate struct {
	Domain     string
	WebrootDir string
	Expiry     time.Time
	IncludeWWW bool
}

// RenewDue re-requests certificates within the renewal window. Invoked
// by the scheduler, not by this package itself. One failed domain does
// not stop the rest.
func (m *Manager) RenewDue(ctx context.Context, email string, candidates []RenewCandidate) []*models.CertResult {
	var results []*models.CertResult
	for _, c := range candidates {
		if time.Until(c.Expiry) > renewWindow {
			continue
		}
		res, err := m.request(ctx, c.Domain, c.WebrootDir, email, c.IncludeWWW)
		if err != nil {
			res = &models.CertResult{Domain: c.Domain, FailedReason: err.Error()}
		}
		if !res.OK() {
			m.logger.Warn("certificate renewal failed", "domain", c.Domain, "reason", res.FailedReason)
		}
		results = append(results, res)
	}
	return results
}

// RemoveCert deletes a domain's certificate directory. Missing material
// is not an error.
func (m *Manager) RemoveCert(domain string) error {
	if !validate.Domain(domain) {
		return ErrInvalidDomain
	}
	return os.RemoveAll(filepath.Join(m.certsDir, domain))
}

// writeCertFiles writes the fullchain (0644) and key (0600) under the
// domain's 0700 directory.
func (m *Manager) writeCertFiles(domain string, certPEM, keyPEM []byte) (certPath, keyPath string, err error) {
	dir := filepath.Join(m.certsDir, domain)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("create certificate directory: %w", err)
	}

	certPath, keyPath = m.CertPaths(domain)
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return "", "", fmt.Errorf("write certificate: %w", err)
	}
	return certPath, keyPath, nil
}

// parseLeafCertificate decodes the first PEM block as an X.509 certificate.
func parseLeafCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidCertificate
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, ErrInvalidCertificate
	}
	return cert, nil
}

// certExpiry extracts NotAfter from a PEM certificate bundle.
func certExpiry(certPEM []byte) (time.Time, error) {
	cert, err := parseLeafCertificate(certPEM)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}
