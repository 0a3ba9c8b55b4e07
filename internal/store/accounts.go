package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
)

// CreateSystemAccount inserts a system account row.
func (s *Store) CreateSystemAccount(ctx context.Context, acct *models.SystemAccount) (*models.SystemAccount, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO system_accounts (site_id, username, access_mode, created_at) VALUES (?, ?, ?, ?)`,
		acct.SiteID, acct.Username, string(acct.AccessMode), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	created := *acct
	created.ID = id
	created.CreatedAt = now
	return &created, nil
}

// GetSystemAccount fetches a system account by ID.
func (s *Store) GetSystemAccount(ctx context.Context, id int64) (*models.SystemAccount, error) {
	var acct models.SystemAccount
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, username, access_mode, created_at FROM system_accounts WHERE id = ?`, id).
		Scan(&acct.ID, &acct.SiteID, &acct.Username, &mode, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	acct.AccessMode = models.AccessMode(mode)
	return &acct, nil
}

// GetSystemAccountByUsername fetches a system account by its username.
func (s *Store) GetSystemAccountByUsername(ctx context.Context, username string) (*models.SystemAccount, error) {
	var acct models.SystemAccount
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, username, access_mode, created_at FROM system_accounts WHERE username = ?`, username).
		Scan(&acct.ID, &acct.SiteID, &acct.Username, &mode, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	acct.AccessMode = models.AccessMode(mode)
	return &acct, nil
}

// ListSystemAccountsForSite returns the accounts scoped to a site.
func (s *Store) ListSystemAccountsForSite(ctx context.Context, siteID int64) ([]*models.SystemAccount, error) {
	return s.queryAccounts(ctx,
		`SELECT id, site_id, username, access_mode, created_at FROM system_accounts WHERE site_id = ? ORDER BY id`, siteID)
}

// ListSystemAccounts returns all system accounts, newest first.
func (s *Store) ListSystemAccounts(ctx context.Context) ([]*models.SystemAccount, error) {
	return s.queryAccounts(ctx,
		`SELECT id, site_id, username, access_mode, created_at FROM system_accounts ORDER BY created_at DESC, id DESC`)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]*models.SystemAccount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accts []*models.SystemAccount
	for rows.Next() {
		var acct models.SystemAccount
		var mode string
		if err := rows.Scan(&acct.ID, &acct.SiteID, &acct.Username, &mode, &acct.CreatedAt); err != nil {
			return nil, err
		}
		acct.AccessMode = models.AccessMode(mode)
		accts = append(accts, &acct)
	}
	return accts, rows.Err()
}

// DeleteSystemAccount removes a system account record.
func (s *Store) DeleteSystemAccount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM system_accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
