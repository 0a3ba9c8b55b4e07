package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
)

// makeCertPair generates a self-signed certificate and key for domain.
func makeCertPair(t *testing.T, domain string, notAfter time.Time) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{domain},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	return NewManager(filepath.Join(root, "data"), filepath.Join(root, "certs"), "", nil)
}

func TestInstallManual(t *testing.T) {
	m := newTestManager(t)
	expiry := time.Now().Add(365 * 24 * time.Hour)
	certPEM, keyPEM := makeCertPair(t, "example.com", expiry)

	res, err := m.InstallManual("example.com", certPEM, keyPEM)
	if err != nil {
		t.Fatalf("InstallManual failed: %v", err)
	}
	if !res.OK() {
		t.Fatalf("unexpected failure reason: %s", res.FailedReason)
	}
	if got := res.Expiry.Unix(); got != expiry.Unix() {
		t.Errorf("expiry = %v, want %v", res.Expiry, expiry)
	}

	certPath, keyPath := m.CertPaths("example.com")
	if _, err := os.Stat(certPath); err != nil {
		t.Errorf("fullchain not written: %v", err)
	}
	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key permissions = %o, want 0600", perm)
	}
	if !m.CertExists("example.com") {
		t.Error("CertExists = false after install")
	}
}

func TestInstallManualMismatchedKey(t *testing.T) {
	m := newTestManager(t)
	certPEM, _ := makeCertPair(t, "example.com", time.Now().Add(24*time.Hour))
	_, otherKey := makeCertPair(t, "other.com", time.Now().Add(24*time.Hour))

	_, err := m.InstallManual("example.com", certPEM, otherKey)
	if !errors.Is(err, ErrCertificateMismatch) {
		t.Fatalf("got %v, want ErrCertificateMismatch", err)
	}

	// Nothing may be written on a mismatch.
	if m.CertExists("example.com") {
		t.Error("certificate files written despite mismatch")
	}
	if _, err := os.Stat(filepath.Join(m.certsDir, "example.com")); !os.IsNotExist(err) {
		t.Error("certificate directory created despite mismatch")
	}
}

func TestInstallManualExpired(t *testing.T) {
	m := newTestManager(t)
	certPEM, keyPEM := makeCertPair(t, "example.com", time.Now().Add(-time.Hour))

	if _, err := m.InstallManual("example.com", certPEM, keyPEM); !errors.Is(err, ErrCertificateExpired) {
		t.Fatalf("got %v, want ErrCertificateExpired", err)
	}
	if m.CertExists("example.com") {
		t.Error("expired certificate was installed")
	}
}

func TestInstallManualGarbage(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.InstallManual("example.com", []byte("not a cert"), []byte("not a key")); !errors.Is(err, ErrInvalidCertificate) {
		t.Fatalf("got %v, want ErrInvalidCertificate", err)
	}
}

func TestInstallManualInvalidDomain(t *testing.T) {
	m := newTestManager(t)
	certPEM, keyPEM := makeCertPair(t, "example.com", time.Now().Add(24*time.Hour))

	if _, err := m.InstallManual("../etc", certPEM, keyPEM); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("got %v, want ErrInvalidDomain", err)
	}
}

func TestRemoveCert(t *testing.T) {
	m := newTestManager(t)
	certPEM, keyPEM := makeCertPair(t, "example.com", time.Now().Add(24*time.Hour))

	if _, err := m.InstallManual("example.com", certPEM, keyPEM); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveCert("example.com"); err != nil {
		t.Fatalf("RemoveCert failed: %v", err)
	}
	if m.CertExists("example.com") {
		t.Error("certificate material still present")
	}

	// Removing again is fine.
	if err := m.RemoveCert("example.com"); err != nil {
		t.Errorf("second RemoveCert failed: %v", err)
	}
}

func TestRenewDue(t *testing.T) {
	m := newTestManager(t)

	type issued struct {
		domain     string
		includeWWW bool
	}
	var requests []issued
	m.request = func(ctx context.Context, domain, webrootDir, email string, includeWWW bool) (*models.CertResult, error) {
		requests = append(requests, issued{domain, includeWWW})
		return &models.CertResult{
			Domain: domain,
			Expiry: time.Now().Add(90 * 24 * time.Hour),
		}, nil
	}

	candidates := []RenewCandidate{
		{Domain: "both.com", WebrootDir: "/x", Expiry: time.Now().Add(10 * 24 * time.Hour), IncludeWWW: true},
		{Domain: "apex.com", WebrootDir: "/x", Expiry: time.Now().Add(10 * 24 * time.Hour), IncludeWWW: false},
		{Domain: "fresh.com", WebrootDir: "/x", Expiry: time.Now().Add(60 * 24 * time.Hour), IncludeWWW: true},
	}
	results := m.RenewDue(context.Background(), "admin@example.com", candidates)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	want := []issued{{"both.com", true}, {"apex.com", false}}
	if len(requests) != len(want) {
		t.Fatalf("got %d requests, want %d", len(requests), len(want))
	}
	for i, w := range want {
		if requests[i] != w {
			t.Errorf("request %d = %+v, want %+v", i, requests[i], w)
		}
	}
}

func TestRenewDueContinuesAfterFailure(t *testing.T) {
	m := newTestManager(t)
	m.request = func(ctx context.Context, domain, webrootDir, email string, includeWWW bool) (*models.CertResult, error) {
		if domain == "bad.com" {
			return &models.CertResult{Domain: domain, FailedReason: "issuance refused"}, nil
		}
		return &models.CertResult{Domain: domain, Expiry: time.Now().Add(90 * 24 * time.Hour)}, nil
	}

	due := time.Now().Add(5 * 24 * time.Hour)
	results := m.RenewDue(context.Background(), "admin@example.com", []RenewCandidate{
		{Domain: "bad.com", WebrootDir: "/x", Expiry: due},
		{Domain: "good.com", WebrootDir: "/x", Expiry: due},
	})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].OK() {
		t.Error("bad.com renewal unexpectedly succeeded")
	}
	if !results[1].OK() {
		t.Errorf("good.com renewal failed: %s", results[1].FailedReason)
	}
}

func TestCertExpiryParsing(t *testing.T) {
	expiry := time.Now().Add(90 * 24 * time.Hour)
	certPEM, _ := makeCertPair(t, "example.com", expiry)

	got, err := certExpiry(certPEM)
	if err != nil {
		t.Fatal(err)
	}
	if got.Unix() != expiry.Unix() {
		t.Errorf("certExpiry = %v, want %v", got, expiry)
	}
}
