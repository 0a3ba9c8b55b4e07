// Package dbprov provisions MariaDB databases and users for sites. All
// DDL goes through the mysql client as root over the local socket;
// identifiers are validated immediately before statement construction so
// nothing caller-controlled ever reaches the SQL text unchecked.
package dbprov

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BenEgeDeniz/lalapanel/internal/run"
	"github.com/BenEgeDeniz/lalapanel/internal/validate"
)

// maxNameLen is MariaDB's identifier limit for database names.
const maxNameLen = 64

var hexRe = regexp.MustCompile(`^[0-9a-f]+$`)

// Provisioner creates and drops MariaDB databases and their owning users.
type Provisioner struct {
	runner run.Runner
	logger *slog.Logger
}

func NewProvisioner(runner run.Runner, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{runner: runner, logger: logger}
}

// DeriveNames builds a database name and username from the site domain.
// The name is the sanitized domain plus a short digest suffix that also
// forms the username, keeping the pair visibly tied to its site.
func DeriveNames(domain string) (dbName, dbUser string) {
	sum := md5.Sum([]byte(domain))
	return NamesWithSuffix(domain, hex.EncodeToString(sum[:])[:6])
}

// NamesWithSuffix builds the name pair with an explicit suffix. Used
// when the digest suffix collides with an existing record.
func NamesWithSuffix(domain, suffix string) (dbName, dbUser string) {
	base := strings.ToLower(domain)
	base = strings.NewReplacer(".", "_", "-", "_").Replace(base)

	// Leave room for the separator and suffix inside the 64-char limit.
	if max := maxNameLen - len(suffix) - 1; len(base) > max {
		base = base[:max]
	}
	return base + "_" + suffix, "u_" + suffix
}

// RandomSuffix returns six random hex characters for collision retries.
func RandomSuffix() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate name suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GeneratePassword returns a random 32-character hex password.
func GeneratePassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate database password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Provision creates the database and a localhost-only user granted on
// that one database. On a partial failure the already-created objects
// are dropped again so the server is left clean.
func (p *Provisioner) Provision(ctx context.Context, dbName, dbUser, password string) error {
	if !validate.Identifier(dbName) || !validate.Identifier(dbUser) {
		return fmt.Errorf("invalid database identifier")
	}
	if !hexRe.MatchString(password) {
		return fmt.Errorf("invalid database password")
	}

	if err := p.sql(ctx, fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", dbName)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	if err := p.sql(ctx, fmt.Sprintf("CREATE USER '%s'@'localhost' IDENTIFIED BY '%s'", dbUser, password)); err != nil {
		p.cleanup(ctx, dbName, "")
		return fmt.Errorf("create database user: %w", err)
	}

	if err := p.sql(ctx, fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'localhost'", dbName, dbUser)); err != nil {
		p.cleanup(ctx, dbName, dbUser)
		return fmt.Errorf("grant privileges: %w", err)
	}

	if err := p.sql(ctx, "FLUSH PRIVILEGES"); err != nil {
		p.cleanup(ctx, dbName, dbUser)
		return fmt.Errorf("flush privileges: %w", err)
	}

	p.logger.Info("database provisioned", "db", dbName, "user", dbUser)
	return nil
}

// Deprovision drops the database and user. Both statements use IF
// EXISTS so a retry after a partial delete succeeds.
func (p *Provisioner) Deprovision(ctx context.Context, dbName, dbUser string) error {
	if !validate.Identifier(dbName) || !validate.Identifier(dbUser) {
		return fmt.Errorf("invalid database identifier")
	}

	if err := p.sql(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", dbName)); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	if err := p.sql(ctx, fmt.Sprintf("DROP USER IF EXISTS '%s'@'localhost'", dbUser)); err != nil {
		return fmt.Errorf("drop database user: %w", err)
	}
	if err := p.sql(ctx, "FLUSH PRIVILEGES"); err != nil {
		return fmt.Errorf("flush privileges: %w", err)
	}

	p.logger.Info("database removed", "db", dbName, "user", dbUser)
	return nil
}

// cleanup undoes a partial Provision. Errors are logged, not returned:
// the original failure is what the caller needs to see.
func (p *Provisioner) cleanup(ctx context.Context, dbName, dbUser string) {
	if dbUser != "" {
		if err := p.sql(ctx, fmt.Sprintf("DROP USER IF EXISTS '%s'@'localhost'", dbUser)); err != nil {
			p.logger.Warn("cleanup of database user failed", "user", dbUser, "error", err)
		}
	}
	if err := p.sql(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", dbName)); err != nil {
		p.logger.Warn("cleanup of database failed", "db", dbName, "error", err)
	}
}

func (p *Provisioner) sql(ctx context.Context, stmt string) error {
	_, err := p.runner.Run(ctx, "mysql", "-u", "root", "-e", stmt)
	return err
}
