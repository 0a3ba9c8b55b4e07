package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetSetting returns a panel setting value, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var val sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT setting_value FROM panel_settings WHERE setting_key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val.String, nil
}

// SetSetting creates or updates a panel setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO panel_settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}

// AllSettings returns every panel setting as a map.
func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT setting_key, setting_value FROM panel_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v.String
	}
	return settings, rows.Err()
}
