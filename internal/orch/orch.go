// Package orch sequences site, database, account, and certificate
// operations across the filesystem, nginx, MariaDB, the OS user table,
// and the metadata store. Every operation takes the site's lock for its
// full duration, applies external side effects first, and commits
// metadata last, so a stored row always describes artifacts that exist.
package orch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BenEgeDeniz/lalapanel/internal/audit"
	"github.com/BenEgeDeniz/lalapanel/internal/certs"
	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/store"
)

var (
	ErrInvalidDomain     = errors.New("invalid domain name")
	ErrUnsupportedPHP    = errors.New("unsupported php version")
	ErrInvalidSSLMode    = errors.New("invalid ssl mode")
	ErrCertRequestFailed = errors.New("certificate request failed")
)

// SiteFiles manages the per-site directory tree.
type SiteFiles interface {
	SiteDir(domain string) string
	HtdocsDir(domain string) string
	CreateSiteDirs(domain string) error
	DeleteSiteDirs(domain string) error
}

// VhostManager renders and activates nginx vhosts.
type VhostManager interface {
	RenderVhost(site *models.Site, certPath, keyPath string) (string, error)
	WriteAndActivate(ctx context.Context, domain, configText string) error
	DeactivateAndRemove(ctx context.Context, domain string) error
	VhostExists(domain string) bool
	Reload(ctx context.Context) error
}

// CertManager obtains and installs TLS certificates.
type CertManager interface {
	CertPaths(domain string) (certPath, keyPath string)
	CertExists(domain string) bool
	RequestAuto(ctx context.Context, domain, webrootDir, email string, includeWWW bool) (*models.CertResult, error)
	InstallManual(domain string, certPEM, keyPEM []byte) (*models.CertResult, error)
	RenewDue(ctx context.Context, email string, candidates []certs.RenewCandidate) []*models.CertResult
	RemoveCert(domain string) error
}

// DatabaseProvisioner issues MariaDB DDL.
type DatabaseProvisioner interface {
	Provision(ctx context.Context, dbName, dbUser, password string) error
	Deprovision(ctx context.Context, dbName, dbUser string) error
}

// AccountProvisioner manages scoped OS accounts.
type AccountProvisioner interface {
	CreateAccount(ctx context.Context, username, siteDir, password string, mode models.AccessMode) error
	SetPassword(ctx context.Context, username, password string) error
	DeleteAccount(ctx context.Context, username string) error
}

// Orchestrator coordinates all mutating panel operations.
type Orchestrator struct {
	store    *store.Store
	fs       SiteFiles
	vhosts   VhostManager
	certs    CertManager
	db       DatabaseProvisioner
	accounts AccountProvisioner
	audit    *audit.Logger
	logger   *slog.Logger

	acmeEmail   string
	phpVersions []string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st *store.Store, fs SiteFiles, vhosts VhostManager, cm CertManager,
	db DatabaseProvisioner, accounts AccountProvisioner,
	auditLog *audit.Logger, logger *slog.Logger,
	acmeEmail string, phpVersions []string) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       st,
		fs:          fs,
		vhosts:      vhosts,
		certs:       cm,
		db:          db,
		accounts:    accounts,
		audit:       auditLog,
		logger:      logger,
		acmeEmail:   acmeEmail,
		phpVersions: phpVersions,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockDomain serializes operations per domain. The returned function
// releases the lock.
func (o *Orchestrator) lockDomain(domain string) func() {
	o.mu.Lock()
	m, ok := o.locks[domain]
	if !ok {
		m = &sync.Mutex{}
		o.locks[domain] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (o *Orchestrator) supportedPHP(v string) bool {
	for _, s := range o.phpVersions {
		if s == v {
			return true
		}
	}
	return false
}
