package sitefs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BenEgeDeniz/lalapanel/internal/pathguard"
)

func TestCreateSiteDirs(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := m.CreateSiteDirs("example.com"); err != nil {
		t.Fatalf("CreateSiteDirs failed: %v", err)
	}

	for _, dir := range []string{
		m.HtdocsDir("example.com"),
		filepath.Join(m.SiteDir("example.com"), "tmp"),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("missing %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	index := filepath.Join(m.HtdocsDir("example.com"), "index.php")
	data, err := os.ReadFile(index)
	if err != nil {
		t.Fatalf("missing placeholder index: %v", err)
	}
	if len(data) == 0 {
		t.Error("placeholder index is empty")
	}
}

func TestCreateSiteDirsDuplicate(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := m.CreateSiteDirs("example.com"); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateSiteDirs("example.com"); !errors.Is(err, ErrSiteDirExists) {
		t.Errorf("second create: got %v, want ErrSiteDirExists", err)
	}
}

func TestCreateSiteDirsRejectsBadDomain(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, d := range []string{"", "../escape", "a b.com", "UPPER.com"} {
		if err := m.CreateSiteDirs(d); !errors.Is(err, ErrInvalidDomain) {
			t.Errorf("CreateSiteDirs(%q): got %v, want ErrInvalidDomain", d, err)
		}
	}
}

func TestDeleteSiteDirs(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := m.CreateSiteDirs("example.com"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteSiteDirs("example.com"); err != nil {
		t.Fatalf("DeleteSiteDirs failed: %v", err)
	}
	if _, err := os.Stat(m.SiteDir("example.com")); !os.IsNotExist(err) {
		t.Error("site directory still exists after delete")
	}
}

func TestDeleteSiteDirsRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(filepath.Join(root, "sites"))
	if err != nil {
		t.Fatal(err)
	}

	victim := filepath.Join(root, "victim")
	if err := os.MkdirAll(victim, 0755); err != nil {
		t.Fatal(err)
	}

	// Domain validation rejects traversal strings outright.
	if err := m.DeleteSiteDirs("../victim"); !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("traversal delete: got %v, want ErrInvalidDomain", err)
	}
	if _, err := os.Stat(victim); err != nil {
		t.Fatal("victim directory was removed")
	}
}

func TestDeleteSiteDirsRejectsSymlinkedSite(t *testing.T) {
	root := t.TempDir()
	sites := filepath.Join(root, "sites")
	m, err := NewManager(sites)
	if err != nil {
		t.Fatal(err)
	}

	outside := filepath.Join(root, "outside")
	if err := os.MkdirAll(outside, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(sites, "evil.com")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if err := m.DeleteSiteDirs("evil.com"); !errors.Is(err, pathguard.ErrAccessDenied) {
		t.Errorf("symlinked site delete: got %v, want ErrAccessDenied", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatal("symlink target was removed")
	}
}
