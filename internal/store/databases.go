package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
)

// CreateDatabase inserts a database row for a site. The generated password
// is deliberately not persisted; it is shown to the admin exactly once.
func (s *Store) CreateDatabase(ctx context.Context, db *models.Database) (*models.Database, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO databases (site_id, db_name, db_user, created_at) VALUES (?, ?, ?, ?)`,
		db.SiteID, db.Name, db.Username, now)
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

	created := *db
	created.ID = id
	created.CreatedAt = now
	return &created, nil
}

// GetDatabase fetches a database record by ID.
func (s *Store) GetDatabase(ctx context.Context, id int64) (*models.Database, error) {
	var db models.Database
	err := s.db.QueryRowContext(ctx,
		`SELECT id, site_id, db_name, db_user, created_at FROM databases WHERE id = ?`, id).
		Scan(&db.ID, &db.SiteID, &db.Name, &db.Username, &db.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &db, nil
}

// ListDatabases returns all database records, newest first.
func (s *Store) ListDatabases(ctx context.Context) ([]*models.Database, error) {
	return s.queryDatabases(ctx,
		`SELECT id, site_id, db_name, db_user, created_at FROM databases ORDER BY created_at DESC, id DESC`)
}

// ListDatabasesForSite returns the database records owned by a site.
func (s *Store) ListDatabasesForSite(ctx context.Context, siteID int64) ([]*models.Database, error) {
	return s.queryDatabases(ctx,
		`SELECT id, site_id, db_name, db_user, created_at FROM databases WHERE site_id = ? ORDER BY id`, siteID)
}

func (s *Store) queryDatabases(ctx context.Context, query string, args ...any) ([]*models.Database, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dbs []*models.Database
	for rows.Next() {
		var db models.Database
		if err := rows.Scan(&db.ID, &db.SiteID, &db.Name, &db.Username, &db.CreatedAt); err != nil {
			return nil, err
		}
		dbs = append(dbs, &db)
	}
	return dbs, rows.Err()
}

// DatabaseNameExists reports whether a db_name or db_user is already recorded.
func (s *Store) DatabaseNameExists(ctx context.Context, name, user string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM databases WHERE db_name = ? OR db_user = ?`, name, user).Scan(&n)
	return n > 0, err
}

// DeleteDatabase removes a database record.
func (s *Store) DeleteDatabase(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM databases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
