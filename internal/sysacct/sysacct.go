// Package sysacct manages the OS accounts that give site owners SFTP or
// SSH access. Accounts are scoped to their site directory: ftp-only
// accounts are chrooted there through an sshd Match block, ssh-ftp
// accounts get a login shell with the site directory as home.
package sysacct

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/run"
	"github.com/BenEgeDeniz/lalapanel/internal/validate"
)

const (
	// JailGroup is the group whose members sshd chroots into their home.
	JailGroup = "lalapanel-jail"

	jailMarkerBegin = "# BEGIN LALAPANEL JAIL"
	jailMarkerEnd   = "# END LALAPANEL JAIL"

	nologinShell = "/usr/sbin/nologin"
	loginShell   = "/bin/bash"
)

// jailBlock is appended to sshd_config once. sshd requires the chroot
// target to be root-owned, which the site directory is.
var jailBlock = jailMarkerBegin + ` - managed section, do not edit
Match Group ` + JailGroup + `
    ChrootDirectory %h
    ForceCommand internal-sftp -d /htdocs
    AllowTcpForwarding no
    X11Forwarding no
    PermitTunnel no
    AllowAgentForwarding no
    PasswordAuthentication yes
` + jailMarkerEnd + "\n"

var ErrInvalidUsername = fmt.Errorf("invalid username")

// Manager creates and removes scoped OS accounts.
type Manager struct {
	runner     run.Runner
	sshdConfig string
	logger     *slog.Logger
}

func NewManager(runner run.Runner, sshdConfigPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{runner: runner, sshdConfig: sshdConfigPath, logger: logger}
}

// GeneratePassword returns a random 24-character hex password.
func GeneratePassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate account password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// EnsureJail installs the sshd chroot section and creates the jail
// group. Safe to call on every startup; an already-configured host is
// left untouched and sshd is not reloaded.
func (m *Manager) EnsureJail(ctx context.Context) error {
	if _, err := m.runner.Run(ctx, "groupadd", "-f", JailGroup); err != nil {
		return fmt.Errorf("create jail group: %w", err)
	}

	data, err := os.ReadFile(m.sshdConfig)
	if err != nil {
		return fmt.Errorf("read sshd config: %w", err)
	}
	if strings.Contains(string(data), jailMarkerBegin) {
		return nil
	}

	updated := string(data)
	if !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}
	updated += "\n" + jailBlock

	if err := os.WriteFile(m.sshdConfig, []byte(updated), 0644); err != nil {
		return fmt.Errorf("write sshd config: %w", err)
	}

	if _, err := m.runner.Run(ctx, "systemctl", "reload", "ssh"); err != nil {
		return fmt.Errorf("reload ssh: %w", err)
	}

	m.logger.Info("ssh jail configured", "group", JailGroup)
	return nil
}

// CreateAccount creates the OS user with the site directory as home and
// sets its password over stdin. A failure after useradd removes the
// half-created user again.
func (m *Manager) CreateAccount(ctx context.Context, username, siteDir, password string, mode models.AccessMode) error {
	if !validate.Username(username) {
		return ErrInvalidUsername
	}

	shell := loginShell
	if mode == models.AccessFTPOnly {
		shell = nologinShell
	}

	if _, err := m.runner.Run(ctx, "useradd", "-M", "-d", siteDir, "-s", shell, username); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if _, err := m.runner.RunInput(ctx, username+":"+password, "chpasswd"); err != nil {
		if _, derr := m.runner.Run(ctx, "userdel", username); derr != nil {
			m.logger.Warn("cleanup of half-created user failed", "username", username, "error", derr)
		}
		return fmt.Errorf("set password: %w", err)
	}

	if mode == models.AccessFTPOnly {
		if _, err := m.runner.Run(ctx, "usermod", "-aG", JailGroup, username); err != nil {
			if _, derr := m.runner.Run(ctx, "userdel", username); derr != nil {
				m.logger.Warn("cleanup of half-created user failed", "username", username, "error", derr)
			}
			return fmt.Errorf("add user to jail group: %w", err)
		}
	}

	m.logger.Info("system account created", "username", username, "mode", mode)
	return nil
}

// SetPassword updates an existing account's password over stdin.
func (m *Manager) SetPassword(ctx context.Context, username, password string) error {
	if !validate.Username(username) {
		return ErrInvalidUsername
	}
	if _, err := m.runner.RunInput(ctx, username+":"+password, "chpasswd"); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// DeleteAccount removes the OS user. The home directory is the site
// directory and stays; site files outlive their accounts. A user that
// is already gone is not an error.
func (m *Manager) DeleteAccount(ctx context.Context, username string) error {
	if !validate.Username(username) {
		return ErrInvalidUsername
	}

	if _, err := m.runner.Run(ctx, "userdel", username); err != nil {
		if te, ok := run.AsToolError(err); ok && strings.Contains(te.Stderr, "does not exist") {
			return nil
		}
		return fmt.Errorf("delete user: %w", err)
	}

	m.logger.Info("system account removed", "username", username)
	return nil
}
