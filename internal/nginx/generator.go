// Package nginx renders per-site virtual host configs and drives the
// write -> test -> activate cycle against a running nginx. A candidate
// config is only ever activated after "nginx -t" passes; on failure the
// previously active config is restored and no reload happens.
package nginx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/run"
	"github.com/BenEgeDeniz/lalapanel/internal/validate"
)

// ErrInvalidDomain is returned when a vhost operation receives a domain
// that fails validation.
var ErrInvalidDomain = errors.New("invalid domain name")

// ConfigValidationError reports an "nginx -t" failure. Stderr goes to the
// audit log, never to an unauthenticated response.
type ConfigValidationError struct {
	Domain string
	Stderr string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("nginx config test failed for %s", e.Domain)
}

// VhostData is the input to the vhost template.
type VhostData struct {
	Domain      string
	HtdocsDir   string
	TmpDir      string
	AccessLog   string
	ErrorLog    string
	PHPSocket   string
	SSL         bool
	CertPath    string
	KeyPath     string
	UploadMB    int
	MemoryMB    int
	MaxExecSecs int
}

// Generator renders and activates vhost configs.
type Generator struct {
	runner       run.Runner
	availableDir string
	enabledDir   string
	sitesRoot    string
	logDir       string
}

// NewGenerator creates a Generator writing into the given nginx config
// directories.
func NewGenerator(runner run.Runner, availableDir, enabledDir, sitesRoot, logDir string) *Generator {
	return &Generator{
		runner:       runner,
		availableDir: availableDir,
		enabledDir:   enabledDir,
		sitesRoot:    sitesRoot,
		logDir:       logDir,
	}
}

// SocketPath returns the PHP-FPM socket for a PHP version. Matches the
// Ubuntu php-fpm package layout.
func SocketPath(phpVersion string) string {
	return fmt.Sprintf("/run/php/php%s-fpm.sock", phpVersion)
}

// RenderVhost renders the vhost config for a site. Pure function of its
// inputs: identical site records produce byte-identical output.
func (g *Generator) RenderVhost(site *models.Site, certPath, keyPath string) (string, error) {
	if !validate.Domain(site.Domain) {
		return "", ErrInvalidDomain
	}
	if !validate.PHPVersion(site.PHPVersion) {
		return "", fmt.Errorf("invalid php version %q", site.PHPVersion)
	}

	data := VhostData{
		Domain:      site.Domain,
		HtdocsDir:   filepath.Join(g.sitesRoot, site.Domain, "htdocs"),
		TmpDir:      filepath.Join(g.sitesRoot, site.Domain, "tmp"),
		AccessLog:   filepath.Join(g.logDir, site.Domain+".access.log"),
		ErrorLog:    filepath.Join(g.logDir, site.Domain+".error.log"),
		PHPSocket:   SocketPath(site.PHPVersion),
		SSL:         site.SSLMode != models.SSLModeNone,
		CertPath:    certPath,
		KeyPath:     keyPath,
		UploadMB:    site.PHPLimits.UploadMaxSizeMB,
		MemoryMB:    site.PHPLimits.MemoryLimitMB,
		MaxExecSecs: site.PHPLimits.MaxExecutionSecs,
	}

	if data.SSL && (certPath == "" || keyPath == "") {
		return "", fmt.Errorf("ssl enabled for %s but certificate paths are empty", site.Domain)
	}

	var sb strings.Builder
	if err := vhostTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render vhost: %w", err)
	}
	return sb.String(), nil
}

func (g *Generator) availablePath(domain string) string {
	return filepath.Join(g.availableDir, domain+".conf")
}

func (g *Generator) enabledPath(domain string) string {
	return filepath.Join(g.enabledDir, domain+".conf")
}

// WriteAndActivate writes the config to sites-available, links it into
// sites-enabled, and runs the nginx config test. Only a passing test is
// followed by a reload; a failing one restores whatever was active before
// and returns a *ConfigValidationError.
func (g *Generator) WriteAndActivate(ctx context.Context, domain, configText string) error {
	if !validate.Domain(domain) {
		return ErrInvalidDomain
	}

	for _, dir := range []string{g.availableDir, g.enabledDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	availablePath := g.availablePath(domain)
	enabledPath := g.enabledPath(domain)

	// Keep the previous config so a failed test can roll back.
	previous, prevErr := os.ReadFile(availablePath)
	hadPrevious := prevErr == nil
	_, lerr := os.Lstat(enabledPath)
	wasEnabled := lerr == nil

	if err := os.WriteFile(availablePath, []byte(configText), 0644); err != nil {
		return fmt.Errorf("write vhost config: %w", err)
	}
	if !wasEnabled {
		if err := os.Symlink(availablePath, enabledPath); err != nil {
			return fmt.Errorf("enable vhost: %w", err)
		}
	}

	if err := g.testConfig(ctx); err != nil {
		// Restore the old state; the running nginx was never reloaded,
		// so the active config is unchanged.
		if !wasEnabled {
			_ = os.Remove(enabledPath)
		}
		if hadPrevious {
			_ = os.WriteFile(availablePath, previous, 0644)
		} else {
			_ = os.Remove(availablePath)
		}

		var te *run.ToolError
		stderr := ""
		if errors.As(err, &te) {
			stderr = te.Stderr
		}
		return &ConfigValidationError{Domain: domain, Stderr: stderr}
	}

	return g.Reload(ctx)
}

// DeactivateAndRemove disables and deletes a site's vhost, then reloads.
// Reload runs regardless of prior state; it is idempotent.
func (g *Generator) DeactivateAndRemove(ctx context.Context, domain string) error {
	if !validate.Domain(domain) {
		return ErrInvalidDomain
	}

	if err := os.Remove(g.enabledPath(domain)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove enabled vhost: %w", err)
	}
	if err := os.Remove(g.availablePath(domain)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vhost config: %w", err)
	}

	return g.Reload(ctx)
}

// VhostExists reports whether a config file exists for the domain.
func (g *Generator) VhostExists(domain string) bool {
	_, err := os.Stat(g.availablePath(domain))
	return err == nil
}

func (g *Generator) testConfig(ctx context.Context) error {
	_, err := g.runner.Run(ctx, "nginx", "-t")
	return err
}

// Reload reloads nginx via systemctl.
func (g *Generator) Reload(ctx context.Context) error {
	if _, err := g.runner.Run(ctx, "systemctl", "reload", "nginx"); err != nil {
		return fmt.Errorf("reload nginx: %w", err)
	}
	return nil
}
