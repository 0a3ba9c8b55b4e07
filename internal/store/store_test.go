package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeSite(domain string) *models.Site {
	return &models.Site{
		Domain:     domain,
		PHPVersion: "8.3",
		SSLMode:    models.SSLModeNone,
		PHPLimits:  models.DefaultPHPLimits(),
	}
}

func TestCreateAndGetSite(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	created, err := s.CreateSite(ctx, makeSite("example.com"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := s.GetSite(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Domain)
	assert.Equal(t, "8.3", got.PHPVersion)
	assert.Equal(t, models.SSLModeNone, got.SSLMode)
	assert.Nil(t, got.SSLExpiry)
	assert.Equal(t, 64, got.PHPLimits.UploadMaxSizeMB)

	byDomain, err := s.GetSiteByDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byDomain.ID)
}

func TestCreateSiteDuplicateDomain(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.CreateSite(ctx, makeSite("example.com"))
	require.NoError(t, err)

	_, err = s.CreateSite(ctx, makeSite("example.com"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGetSiteNotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.GetSite(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetSiteByDomain(context.Background(), "missing.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSitePHPVersion(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	site, err := s.CreateSite(ctx, makeSite("example.com"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateSitePHPVersion(ctx, site.ID, "8.1"))

	got, err := s.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "8.1", got.PHPVersion)

	assert.ErrorIs(t, s.UpdateSitePHPVersion(ctx, 999, "8.1"), ErrNotFound)
}

func TestUpdateSiteSSL(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	site, err := s.CreateSite(ctx, makeSite("example.com"))
	require.NoError(t, err)

	expiry := time.Now().UTC().Add(90 * 24 * time.Hour).Truncate(time.Second)
	require.NoError(t, s.UpdateSiteSSL(ctx, site.ID, models.SSLModeAuto, &expiry))

	got, err := s.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SSLModeAuto, got.SSLMode)
	require.NotNil(t, got.SSLExpiry)
	assert.WithinDuration(t, expiry, *got.SSLExpiry, time.Second)
}

func TestDeleteSiteCascades(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	site, err := s.CreateSite(ctx, makeSite("example.com"))
	require.NoError(t, err)

	_, err = s.CreateDatabase(ctx, &models.Database{SiteID: site.ID, Name: "example_com_abc123", Username: "u_abc123"})
	require.NoError(t, err)
	_, err = s.CreateSystemAccount(ctx, &models.SystemAccount{SiteID: site.ID, Username: "deploy", AccessMode: models.AccessFTPOnly})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSite(ctx, site.ID))

	dbs, err := s.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Empty(t, dbs)

	accts, err := s.ListSystemAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accts)
}

func TestDatabaseUniqueness(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	site, err := s.CreateSite(ctx, makeSite("example.com"))
	require.NoError(t, err)

	_, err = s.CreateDatabase(ctx, &models.Database{SiteID: site.ID, Name: "db_one", Username: "u_one"})
	require.NoError(t, err)

	_, err = s.CreateDatabase(ctx, &models.Database{SiteID: site.ID, Name: "db_one", Username: "u_two"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.CreateDatabase(ctx, &models.Database{SiteID: site.ID, Name: "db_two", Username: "u_one"})
	assert.ErrorIs(t, err, ErrConflict)

	exists, err := s.DatabaseNameExists(ctx, "db_one", "u_x")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.DatabaseNameExists(ctx, "db_x", "u_x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCredentialSingleton(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.GetCredential(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetCredential(ctx, "admin", "hash1"))
	require.NoError(t, s.SetCredential(ctx, "admin", "hash2"))

	cred, err := s.GetCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", cred.Username)
	assert.Equal(t, "hash2", cred.PasswordHash)
}

func TestLoginAttempts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordLoginAttempt(ctx, "10.0.0.1"))
	}
	require.NoError(t, s.RecordLoginAttempt(ctx, "10.0.0.2"))

	n, err := s.CountRecentLoginAttempts(ctx, "10.0.0.1", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.ClearOldLoginAttempts(ctx, 0))

	n, err = s.CountRecentLoginAttempts(ctx, "10.0.0.1", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSettings(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, "panel_domain")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetSetting(ctx, "panel_domain", "panel.example.com"))
	require.NoError(t, s.SetSetting(ctx, "panel_domain", "panel2.example.com"))

	v, err = s.GetSetting(ctx, "panel_domain")
	require.NoError(t, err)
	assert.Equal(t, "panel2.example.com", v)

	all, err := s.AllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "panel2.example.com", all["panel_domain"])
}
