// Package pathguard confines user-influenced paths to a base directory.
// Every recursive delete and file operation on site content must go
// through ResolveScoped first.
package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrAccessDenied is returned when a path escapes its base directory or
// cannot be canonicalized. Callers treat it as terminal; it is never
// retried.
var ErrAccessDenied = errors.New("access denied: path escapes base directory")

// ResolveScoped joins relPath onto baseDir, canonicalizes both (symlinks,
// "." and ".." resolved), and returns the result only if it still lives
// under baseDir. The target itself does not need to exist yet; its nearest
// existing ancestor is resolved instead so symlinked parents cannot smuggle
// the path outside the base.
func ResolveScoped(baseDir, relPath string) (string, error) {
	resolvedBase, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", ErrAccessDenied
	}

	joined := filepath.Join(resolvedBase, relPath)

	resolved, err := resolveToExisting(joined)
	if err != nil {
		return "", ErrAccessDenied
	}

	if resolved != resolvedBase && !strings.HasPrefix(resolved, resolvedBase+string(filepath.Separator)) {
		return "", ErrAccessDenied
	}

	return resolved, nil
}

// resolveToExisting canonicalizes path. If the leaf does not exist yet,
// the nearest existing ancestor is canonicalized and the remaining lexical
// suffix re-appended.
func resolveToExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := filepath.Dir(path)
	if dir == path {
		return "", err
	}
	resolvedDir, rerr := resolveToExisting(dir)
	if rerr != nil {
		return "", rerr
	}
	return filepath.Join(resolvedDir, filepath.Base(path)), nil
}
