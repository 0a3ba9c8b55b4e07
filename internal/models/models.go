package models

import (
	"time"
)

// SSLMode describes how a site's TLS certificate is managed.
type SSLMode string

const (
	SSLModeNone       SSLMode = "none"
	SSLModeAuto       SSLMode = "auto"        // ACME webroot, domain + www
	SSLModeAutoDomain SSLMode = "domain-only" // ACME webroot, domain only
	SSLModeManual     SSLMode = "manual"      // uploaded cert/key pair
)

// UsesACME reports whether the mode is renewed automatically.
func (m SSLMode) UsesACME() bool {
	return m == SSLModeAuto || m == SSLModeAutoDomain
}

// Valid reports whether m is a known SSL mode.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeNone, SSLModeAuto, SSLModeAutoDomain, SSLModeManual:
		return true
	}
	return false
}

// PHPLimits holds the per-site PHP settings injected into the vhost.
type PHPLimits struct {
	UploadMaxSizeMB  int `json:"upload_max_size_mb"`
	MemoryLimitMB    int `json:"memory_limit_mb"`
	MaxExecutionSecs int `json:"max_execution_secs"`
}

// DefaultPHPLimits are applied when a site is created without explicit limits.
func DefaultPHPLimits() PHPLimits {
	return PHPLimits{
		UploadMaxSizeMB:  64,
		MemoryLimitMB:    256,
		MaxExecutionSecs: 120,
	}
}

// Site represents a hosted website.
type Site struct {
	ID         int64      `json:"id"`
	Domain     string     `json:"domain"`
	PHPVersion string     `json:"php_version"`
	SSLMode    SSLMode    `json:"ssl_mode"`
	SSLExpiry  *time.Time `json:"ssl_expiry,omitempty"`
	PHPLimits  PHPLimits  `json:"php_limits"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Database represents a MariaDB database owned by a site. The password is
// returned once on creation and never read back out of the store.
type Database struct {
	ID        int64     `json:"id"`
	SiteID    int64     `json:"site_id"`
	Name      string    `json:"db_name"`
	Username  string    `json:"db_user"`
	Password  string    `json:"db_password,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AccessMode describes what a system account may do.
type AccessMode string

const (
	AccessFTPOnly AccessMode = "ftp-only" // chrooted SFTP, no shell
	AccessSSHFTP  AccessMode = "ssh-ftp"  // full login shell
)

// SystemAccount represents an OS-level user scoped to a site directory.
type SystemAccount struct {
	ID         int64      `json:"id"`
	SiteID     int64      `json:"site_id"`
	Username   string     `json:"username"`
	AccessMode AccessMode `json:"access_mode"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Credential is the single panel admin login. Exactly one row exists.
type Credential struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CertResult reports the outcome of a certificate operation.
type CertResult struct {
	Domain       string    `json:"domain"`
	CertPath     string    `json:"cert_path,omitempty"`
	KeyPath      string    `json:"key_path,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	FailedReason string    `json:"failed_reason,omitempty"`
}

// OK reports whether the certificate operation succeeded.
func (r *CertResult) OK() bool { return r.FailedReason == "" }
