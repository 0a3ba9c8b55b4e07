package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveScopedAllows(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "htdocs", "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []string{
		"htdocs",
		"htdocs/sub",
		"htdocs/newfile.txt", // does not exist yet
		".",
	}
	for _, rel := range tests {
		got, err := ResolveScoped(base, rel)
		if err != nil {
			t.Errorf("ResolveScoped(%q) error: %v", rel, err)
			continue
		}
		resolvedBase, _ := filepath.EvalSymlinks(base)
		if got != resolvedBase && !isUnder(got, resolvedBase) {
			t.Errorf("ResolveScoped(%q) = %q, not under base", rel, got)
		}
	}
}

func isUnder(p, base string) bool {
	rel, err := filepath.Rel(base, p)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && (rel == "." || rel[0] != '.')
}

func TestResolveScopedDeniesTraversal(t *testing.T) {
	base := t.TempDir()

	for _, rel := range []string{
		"..",
		"../other",
		"a/../../escape",
		"a/b/../../../etc/passwd",
	} {
		if _, err := ResolveScoped(base, rel); !errors.Is(err, ErrAccessDenied) {
			t.Errorf("ResolveScoped(%q) = %v, want ErrAccessDenied", rel, err)
		}
	}
}

func TestResolveScopedDeniesSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "base")
	outside := filepath.Join(root, "outside")
	for _, d := range []string{base, outside} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(base, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if _, err := ResolveScoped(base, "link"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("symlink escape resolved, want ErrAccessDenied (err=%v)", err)
	}
	if _, err := ResolveScoped(base, "link/file.txt"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("file under symlink escape resolved, want ErrAccessDenied (err=%v)", err)
	}
}

func TestResolveScopedMissingBase(t *testing.T) {
	if _, err := ResolveScoped("/nonexistent-lalapanel-base", "x"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("missing base: got %v, want ErrAccessDenied", err)
	}
}
