package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BenEgeDeniz/lalapanel/internal/auth"
	"github.com/BenEgeDeniz/lalapanel/internal/certs"
	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/orch"
	"github.com/BenEgeDeniz/lalapanel/internal/store"
)

type stubFS struct{ root string }

func (f stubFS) SiteDir(domain string) string   { return filepath.Join(f.root, domain) }
func (f stubFS) HtdocsDir(domain string) string { return filepath.Join(f.root, domain, "htdocs") }
func (f stubFS) CreateSiteDirs(domain string) error { return nil }
func (f stubFS) DeleteSiteDirs(domain string) error { return nil }

type stubVhosts struct{}

func (stubVhosts) RenderVhost(site *models.Site, certPath, keyPath string) (string, error) {
	return fmt.Sprintf("server_name %s; php%s; %s", site.Domain, site.PHPVersion, certPath), nil
}
func (stubVhosts) WriteAndActivate(ctx context.Context, domain, text string) error { return nil }
func (stubVhosts) DeactivateAndRemove(ctx context.Context, domain string) error   { return nil }
func (stubVhosts) VhostExists(domain string) bool                                 { return false }
func (stubVhosts) Reload(ctx context.Context) error                               { return nil }

type stubCerts struct{ dir string }

func (c stubCerts) CertPaths(domain string) (string, string) {
	return filepath.Join(c.dir, domain, "fullchain.pem"), filepath.Join(c.dir, domain, "privkey.pem")
}
func (c stubCerts) RequestAuto(ctx context.Context, domain, webrootDir, email string, includeWWW bool) (*models.CertResult, error) {
	certPath, keyPath := c.CertPaths(domain)
	return &models.CertResult{Domain: domain, CertPath: certPath, KeyPath: keyPath,
		Expiry: time.Now().Add(90 * 24 * time.Hour)}, nil
}
func (c stubCerts) InstallManual(domain string, certPEM, keyPEM []byte) (*models.CertResult, error) {
	certPath, keyPath := c.CertPaths(domain)
	return &models.CertResult{Domain: domain, CertPath: certPath, KeyPath: keyPath,
		Expiry: time.Now().Add(365 * 24 * time.Hour)}, nil
}
func (c stubCerts) RenewDue(ctx context.Context, email string, candidates []certs.RenewCandidate) []*models.CertResult {
	return nil
}
func (stubCerts) RemoveCert(domain string) error { return nil }
func (stubCerts) CertExists(domain string) bool  { return false }

type stubDB struct{}

func (stubDB) Provision(ctx context.Context, dbName, dbUser, password string) error { return nil }
func (stubDB) Deprovision(ctx context.Context, dbName, dbUser string) error         { return nil }

type stubAccounts struct{}

func (stubAccounts) CreateAccount(ctx context.Context, username, siteDir, password string, mode models.AccessMode) error {
	return nil
}
func (stubAccounts) SetPassword(ctx context.Context, username, password string) error { return nil }
func (stubAccounts) DeleteAccount(ctx context.Context, username string) error         { return nil }

func setupServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(filepath.Join(root, "panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hash, err := auth.HashPassword("panel password")
	require.NoError(t, err)
	require.NoError(t, st.SetCredential(context.Background(), "admin", hash))

	versions := []string{"8.3", "8.2", "8.1"}
	o := orch.New(st, stubFS{root: root}, stubVhosts{}, stubCerts{dir: root},
		stubDB{}, stubAccounts{}, nil, nil, "admin@example.com", versions)
	authSvc := auth.NewService(st, []byte("test-secret"))

	return NewServer(o, st, authSvc, versions, nil)
}

func doJSON(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func loginToken(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "admin", "password": "panel password"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func TestHealthIsPublic(t *testing.T) {
	s := setupServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	s := setupServer(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/sites"},
		{http.MethodPost, "/api/v1/sites"},
		{http.MethodGet, "/api/v1/databases"},
		{http.MethodGet, "/api/v1/accounts"},
		{http.MethodGet, "/api/v1/settings"},
		{http.MethodGet, "/api/v1/me"},
	}
	for _, p := range paths {
		rec := doJSON(t, s, p.method, p.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/v1/sites", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := setupServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "admin", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentUser(t *testing.T) {
	s := setupServer(t)
	token := loginToken(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "admin", resp["username"])
}

func TestRefreshToken(t *testing.T) {
	s := setupServer(t)
	token := loginToken(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/auth/refresh", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])

	rec = doJSON(t, s, http.MethodGet, "/api/v1/me", resp["token"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSiteLifecycle(t *testing.T) {
	s := setupServer(t)
	token := loginToken(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sites", token, map[string]interface{}{
		"domain": "example.com", "php_version": "8.3",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Site *models.Site `json:"site"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotNil(t, created.Site)
	require.Equal(t, "example.com", created.Site.Domain)

	// Duplicate domain conflicts.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/sites", token, map[string]interface{}{
		"domain": "example.com", "php_version": "8.3",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/sites", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)

	// Provision a database; the password appears once in the response.
	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/sites/%d/databases", created.Site.ID), token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var db models.Database
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &db))
	require.NotEmpty(t, db.Password)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/sites/%d/databases", created.Site.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), db.Password)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/sites/%d/php", created.Site.ID), token,
		map[string]string{"php_version": "8.2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/v1/sites/%d", created.Site.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/sites/%d", created.Site.ID), token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSiteValidation(t *testing.T) {
	s := setupServer(t)
	token := loginToken(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sites", token,
		map[string]string{"php_version": "8.3"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/sites", token,
		map[string]string{"domain": "example.com", "php_version": "5.6"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/sites", token,
		map[string]string{"domain": "not a domain", "php_version": "8.3"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnableSSLManualRequiresPEM(t *testing.T) {
	s := setupServer(t)
	token := loginToken(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sites", token, map[string]interface{}{
		"domain": "example.com", "php_version": "8.3",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Site *models.Site `json:"site"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/sites/%d/ssl", created.Site.ID), token,
		map[string]string{"mode": "manual"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := setupServer(t)
	token := loginToken(t, s)

	rec := doJSON(t, s, http.MethodPut, "/api/v1/settings", token,
		map[string]string{"acme_email": "ops@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/settings", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	require.Equal(t, "ops@example.com", settings["acme_email"])

	rec = doJSON(t, s, http.MethodGet, "/api/v1/settings/acme_email", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var single map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	require.Equal(t, "ops@example.com", single["acme_email"])
}

func TestAccountPasswordReset(t *testing.T) {
	s := setupServer(t)
	token := loginToken(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sites", token, map[string]interface{}{
		"domain": "example.com", "php_version": "8.3",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Site *models.Site `json:"site"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/sites/%d/accounts", created.Site.ID), token,
		map[string]string{"username": "example_ftp", "access_mode": "ftp-only"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var acctResp struct {
		Account  *models.SystemAccount `json:"account"`
		Password string                `json:"password"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acctResp))
	require.NotEmpty(t, acctResp.Password)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%d/password", acctResp.Account.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reset))
	require.NotEmpty(t, reset["password"])
	require.NotEqual(t, acctResp.Password, reset["password"])

	rec = doJSON(t, s, http.MethodPost, "/api/v1/accounts/9999/password", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
