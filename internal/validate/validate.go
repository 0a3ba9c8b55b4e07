// Package validate holds the input validators that gate every value
// reaching the shell, SQL, or filesystem layers. All functions are pure
// and must be called before an identifier is interpolated anywhere.
package validate

import (
	"regexp"
	"strings"
)

var (
	// Domain labels: alphanumeric with inner hyphens, no leading/trailing hyphen
	labelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

	// MariaDB identifiers (database and user names)
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{1,64}$`)

	// OS usernames - lowercase, underscore, 32 char platform limit
	usernameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,31}$`)

	phpVersionRegex = regexp.MustCompile(`^\d+\.\d+$`)
)

// Domain reports whether s is an acceptable hostname: lowercase letters,
// digits, hyphens and dots, 1-253 characters, at least two labels, each
// label 1-63 characters without a leading or trailing hyphen, and an
// alphabetic TLD.
func Domain(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !labelRegex.MatchString(label) {
			return false
		}
	}
	// TLD must be alphabetic
	tld := labels[len(labels)-1]
	for _, c := range tld {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// Identifier reports whether s is safe to use as a MariaDB database or
// user name. This is the sole injection defense for DDL, which cannot be
// parameterized.
func Identifier(s string) bool {
	return identifierRegex.MatchString(s)
}

// Username reports whether s is an acceptable OS account name.
func Username(s string) bool {
	return usernameRegex.MatchString(s)
}

// PHPVersion reports whether s looks like a PHP version such as "8.3".
// Whether the version is actually installed is checked against config.
func PHPVersion(s string) bool {
	return phpVersionRegex.MatchString(s)
}

// RelativePath reports whether s is a relative path free of parent
// traversal. Leading slashes, ".." segments, and NUL bytes are rejected.
func RelativePath(s string) bool {
	if s == "" || strings.HasPrefix(s, "/") {
		return false
	}
	if strings.ContainsRune(s, 0) {
		return false
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
