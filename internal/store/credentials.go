package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
)

// GetCredential returns the single admin credential, or ErrNotFound if the
// panel has not been bootstrapped yet. The id=1 CHECK constraint on the
// table keeps the single-admin model an enforced invariant rather than a
// convention.
func (s *Store) GetCredential(ctx context.Context) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, updated_at FROM credentials WHERE id = 1`).
		Scan(&cred.Username, &cred.PasswordHash, &cred.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// SetCredential creates or replaces the admin credential.
func (s *Store) SetCredential(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, username, password_hash, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET username = excluded.username,
			password_hash = excluded.password_hash, updated_at = excluded.updated_at`,
		username, passwordHash, time.Now().UTC())
	return err
}

// RecordLoginAttempt stores one failed or attempted login for rate limiting.
func (s *Store) RecordLoginAttempt(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (ip_address, attempted_at) VALUES (?, ?)`,
		ip, time.Now().UTC())
	return err
}

// CountRecentLoginAttempts returns the login attempts from ip within the window.
func (s *Store) CountRecentLoginAttempts(ctx context.Context, ip string, window time.Duration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE ip_address = ? AND attempted_at > ?`,
		ip, time.Now().UTC().Add(-window)).Scan(&n)
	return n, err
}

// ClearOldLoginAttempts deletes attempts older than the retention period.
func (s *Store) ClearOldLoginAttempts(ctx context.Context, retention time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE attempted_at < ?`,
		time.Now().UTC().Add(-retention))
	return err
}
