package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
)

// CreateSite inserts a site row. Returns ErrConflict if the domain is taken.
func (s *Store) CreateSite(ctx context.Context, site *models.Site) (*models.Site, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (domain, php_version, ssl_mode, ssl_expiry,
			upload_max_size_mb, memory_limit_mb, max_execution_secs,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.Domain, site.PHPVersion, string(site.SSLMode), site.SSLExpiry,
		site.PHPLimits.UploadMaxSizeMB, site.PHPLimits.MemoryLimitMB, site.PHPLimits.MaxExecutionSecs,
		now, now,
	)
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

	created := *site
	created.ID = id
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

func scanSite(row interface{ Scan(...any) error }) (*models.Site, error) {
	var site models.Site
	var sslMode string
	var sslExpiry sql.NullTime
	err := row.Scan(&site.ID, &site.Domain, &site.PHPVersion, &sslMode, &sslExpiry,
		&site.PHPLimits.UploadMaxSizeMB, &site.PHPLimits.MemoryLimitMB, &site.PHPLimits.MaxExecutionSecs,
		&site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		return nil, err
	}
	site.SSLMode = models.SSLMode(sslMode)
	if sslExpiry.Valid {
		site.SSLExpiry = &sslExpiry.Time
	}
	return &site, nil
}

const siteColumns = `id, domain, php_version, ssl_mode, ssl_expiry,
	upload_max_size_mb, memory_limit_mb, max_execution_secs, created_at, updated_at`

// GetSite fetches a site by ID.
func (s *Store) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return site, err
}

// GetSiteByDomain fetches a site by its domain.
func (s *Store) GetSiteByDomain(ctx context.Context, domain string) (*models.Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE domain = ?`, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return site, err
}

// ListSites returns all sites, newest first.
func (s *Store) ListSites(ctx context.Context) ([]*models.Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+siteColumns+` FROM sites ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// UpdateSitePHPVersion sets a site's PHP version.
func (s *Store) UpdateSitePHPVersion(ctx context.Context, id int64, version string) error {
	return s.updateSite(ctx, id, `php_version = ?`, version)
}

// UpdateSiteSSL sets a site's SSL mode and expiry.
func (s *Store) UpdateSiteSSL(ctx context.Context, id int64, mode models.SSLMode, expiry *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET ssl_mode = ?, ssl_expiry = ?, updated_at = ? WHERE id = ?`,
		string(mode), expiry, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UpdateSitePHPLimits sets a site's PHP limits.
func (s *Store) UpdateSitePHPLimits(ctx context.Context, id int64, limits models.PHPLimits) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET upload_max_size_mb = ?, memory_limit_mb = ?, max_execution_secs = ?, updated_at = ? WHERE id = ?`,
		limits.UploadMaxSizeMB, limits.MemoryLimitMB, limits.MaxExecutionSecs, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) updateSite(ctx context.Context, id int64, setClause string, val any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET `+setClause+`, updated_at = ? WHERE id = ?`,
		val, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteSite removes a site row. Database and system account rows cascade.
func (s *Store) DeleteSite(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
