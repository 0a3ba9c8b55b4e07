// Package sitefs creates and removes the per-site directory trees under
// the sites root. The layout {root}/{domain}/htdocs and {root}/{domain}/tmp
// is a hard contract: the rendered nginx vhosts reference these paths
// directly.
package sitefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BenEgeDeniz/lalapanel/internal/pathguard"
	"github.com/BenEgeDeniz/lalapanel/internal/validate"
)

var (
	ErrSiteDirExists = errors.New("site directory already exists")
	ErrInvalidDomain = errors.New("invalid domain name")
)

const defaultIndex = `<?php
// Placeholder page created by LalaPanel.
echo "<h1>" . htmlspecialchars($_SERVER['HTTP_HOST'] ?? 'It works!') . "</h1>";
echo "<p>Upload your site to the htdocs directory to replace this page.</p>";
`

// Manager manages site directory trees under a fixed root.
type Manager struct {
	sitesRoot string
}

// NewManager creates a filesystem manager rooted at sitesRoot. The root is
// created if missing so pathguard can canonicalize it.
func NewManager(sitesRoot string) (*Manager, error) {
	if err := os.MkdirAll(sitesRoot, 0755); err != nil {
		return nil, fmt.Errorf("create sites root: %w", err)
	}
	return &Manager{sitesRoot: sitesRoot}, nil
}

// SiteDir returns the directory for a domain without touching the disk.
func (m *Manager) SiteDir(domain string) string {
	return filepath.Join(m.sitesRoot, domain)
}

// HtdocsDir returns the web root for a domain.
func (m *Manager) HtdocsDir(domain string) string {
	return filepath.Join(m.sitesRoot, domain, "htdocs")
}

// CreateSiteDirs creates {root}/{domain}/htdocs and {root}/{domain}/tmp
// and writes a placeholder index. Creating a tree that already exists is
// an error, not a no-op: a duplicate create means the caller skipped the
// metadata uniqueness check.
func (m *Manager) CreateSiteDirs(domain string) error {
	if !validate.Domain(domain) {
		return ErrInvalidDomain
	}

	siteDir := m.SiteDir(domain)
	if _, err := os.Stat(siteDir); err == nil {
		return ErrSiteDirExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat site directory: %w", err)
	}

	for _, dir := range []string{
		filepath.Join(siteDir, "htdocs"),
		filepath.Join(siteDir, "tmp"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	indexPath := filepath.Join(siteDir, "htdocs", "index.php")
	if err := os.WriteFile(indexPath, []byte(defaultIndex), 0644); err != nil {
		return fmt.Errorf("write placeholder index: %w", err)
	}

	return nil
}

// DeleteSiteDirs removes the whole tree for a domain. The target is
// re-verified through pathguard before the recursive delete; this is the
// single most dangerous call in the panel and must never see an
// unvalidated path.
func (m *Manager) DeleteSiteDirs(domain string) error {
	if !validate.Domain(domain) {
		return ErrInvalidDomain
	}

	target, err := pathguard.ResolveScoped(m.sitesRoot, domain)
	if err != nil {
		return err
	}

	resolvedRoot, rerr := filepath.EvalSymlinks(m.sitesRoot)
	if rerr != nil {
		return pathguard.ErrAccessDenied
	}
	if target != filepath.Join(resolvedRoot, domain) {
		return pathguard.ErrAccessDenied
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove site directory: %w", err)
	}
	return nil
}
