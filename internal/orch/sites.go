package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/BenEgeDeniz/lalapanel/internal/certs"
	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/store"
	"github.com/BenEgeDeniz/lalapanel/internal/validate"
)

// CreateSiteRequest are the inputs to CreateSite. Manual SSL is not
// available at creation time; a certificate upload comes later through
// EnableSSL.
type CreateSiteRequest struct {
	Domain         string
	PHPVersion     string
	SSLMode        models.SSLMode
	CreateDatabase bool
	PHPLimits      *models.PHPLimits
}

// CreateSiteResult carries the persisted site plus the one-time
// database credentials and certificate outcome, when requested.
type CreateSiteResult struct {
	Site     *models.Site       `json:"site"`
	Database *models.Database   `json:"database,omitempty"`
	Cert     *models.CertResult `json:"cert,omitempty"`
}

// CreateSite provisions a new site: directory tree, vhost, optional
// certificate, optional database, metadata last. A failure after the
// directory tree exists rolls back every step already completed before
// the error surfaces.
func (o *Orchestrator) CreateSite(ctx context.Context, req CreateSiteRequest) (res *CreateSiteResult, err error) {
	defer func() { o.audit.Record("create_site", err, "domain", req.Domain) }()

	if !validate.Domain(req.Domain) {
		return nil, ErrInvalidDomain
	}
	if !o.supportedPHP(req.PHPVersion) {
		return nil, ErrUnsupportedPHP
	}
	if !req.SSLMode.Valid() || req.SSLMode == models.SSLModeManual {
		return nil, ErrInvalidSSLMode
	}

	unlock := o.lockDomain(req.Domain)
	defer unlock()

	if _, gerr := o.store.GetSiteByDomain(ctx, req.Domain); gerr == nil {
		return nil, store.ErrConflict
	} else if !errors.Is(gerr, store.ErrNotFound) {
		return nil, gerr
	}
	// A vhost file with no metadata row was not written by the panel;
	// refuse to overwrite it.
	if o.vhosts.VhostExists(req.Domain) {
		return nil, store.ErrConflict
	}

	limits := models.DefaultPHPLimits()
	if req.PHPLimits != nil {
		limits = *req.PHPLimits
	}
	site := &models.Site{
		Domain:     req.Domain,
		PHPVersion: req.PHPVersion,
		SSLMode:    models.SSLModeNone,
		PHPLimits:  limits,
	}
	res = &CreateSiteResult{}

	if err = o.fs.CreateSiteDirs(req.Domain); err != nil {
		return nil, err
	}
	// Cleanup runs in reverse order of the steps completed so far.
	var cleanup []func()
	fail := func(cause error) (*CreateSiteResult, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		if derr := o.fs.DeleteSiteDirs(req.Domain); derr != nil {
			o.logger.Warn("cleanup of site directories failed", "domain", req.Domain, "error", derr)
		}
		return nil, cause
	}

	text, rerr := o.vhosts.RenderVhost(site, "", "")
	if rerr != nil {
		return fail(rerr)
	}
	if aerr := o.vhosts.WriteAndActivate(ctx, req.Domain, text); aerr != nil {
		return fail(aerr)
	}
	cleanup = append(cleanup, func() {
		if derr := o.vhosts.DeactivateAndRemove(ctx, req.Domain); derr != nil {
			o.logger.Warn("cleanup of vhost failed", "domain", req.Domain, "error", derr)
		}
	})

	if req.SSLMode.UsesACME() {
		certRes, cerr := o.requestCertificate(ctx, site, req.SSLMode)
		if cerr != nil {
			return fail(cerr)
		}
		res.Cert = certRes
		cleanup = append(cleanup, func() {
			if derr := o.certs.RemoveCert(req.Domain); derr != nil {
				o.logger.Warn("cleanup of certificate failed", "domain", req.Domain, "error", derr)
			}
		})

		site.SSLMode = req.SSLMode
		site.SSLExpiry = &certRes.Expiry
		if aerr := o.activateVhost(ctx, site); aerr != nil {
			return fail(aerr)
		}
	}

	if req.CreateDatabase {
		db, dberr := o.provisionDatabase(ctx, req.Domain)
		if dberr != nil {
			return fail(dberr)
		}
		res.Database = db
		cleanup = append(cleanup, func() {
			if derr := o.db.Deprovision(ctx, db.Name, db.Username); derr != nil {
				o.logger.Warn("cleanup of database failed", "db", db.Name, "error", derr)
			}
		})
	}

	// External side effects are all in place; commit metadata.
	stored, serr := o.store.CreateSite(ctx, site)
	if serr != nil {
		return fail(serr)
	}
	if res.Database != nil {
		res.Database.SiteID = stored.ID
		storedDB, dberr := o.store.CreateDatabase(ctx, res.Database)
		if dberr != nil {
			if rerr := o.store.DeleteSite(ctx, stored.ID); rerr != nil {
				o.logger.Warn("rollback of site row failed", "domain", req.Domain, "error", rerr)
			}
			return fail(dberr)
		}
		storedDB.Password = res.Database.Password
		res.Database = storedDB
	}

	res.Site = stored
	o.logger.Info("site created", "domain", stored.Domain, "php", stored.PHPVersion, "ssl", stored.SSLMode)
	return res, nil
}

// DeleteSite tears a site down in reverse creation order. The metadata
// rows go last; their removal is the irreversible commit.
func (o *Orchestrator) DeleteSite(ctx context.Context, siteID int64) (err error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	defer func() { o.audit.Record("delete_site", err, "domain", site.Domain) }()

	unlock := o.lockDomain(site.Domain)
	defer unlock()

	if err = o.vhosts.DeactivateAndRemove(ctx, site.Domain); err != nil {
		return fmt.Errorf("remove vhost: %w", err)
	}
	if err = o.certs.RemoveCert(site.Domain); err != nil {
		return fmt.Errorf("remove certificate: %w", err)
	}

	dbs, err := o.store.ListDatabasesForSite(ctx, site.ID)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		if err = o.db.Deprovision(ctx, db.Name, db.Username); err != nil {
			return fmt.Errorf("drop database %s: %w", db.Name, err)
		}
	}

	accts, err := o.store.ListSystemAccountsForSite(ctx, site.ID)
	if err != nil {
		return err
	}
	for _, a := range accts {
		if err = o.accounts.DeleteAccount(ctx, a.Username); err != nil {
			return fmt.Errorf("delete account %s: %w", a.Username, err)
		}
	}

	if err = o.fs.DeleteSiteDirs(site.Domain); err != nil {
		return fmt.Errorf("delete site files: %w", err)
	}

	// Database and account rows cascade with the site row.
	if err = o.store.DeleteSite(ctx, site.ID); err != nil {
		return err
	}
	o.logger.Info("site deleted", "domain", site.Domain)
	return nil
}

// SwitchPHPVersion re-renders the vhost against the new PHP-FPM socket.
// If the config test rejects the new vhost the old one stays active and
// metadata keeps the old version.
func (o *Orchestrator) SwitchPHPVersion(ctx context.Context, siteID int64, version string) (err error) {
	if !o.supportedPHP(version) {
		return ErrUnsupportedPHP
	}

	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	defer func() { o.audit.Record("switch_php", err, "domain", site.Domain, "version", version) }()

	unlock := o.lockDomain(site.Domain)
	defer unlock()

	updated := *site
	updated.PHPVersion = version
	if err = o.activateVhost(ctx, &updated); err != nil {
		return err
	}

	if err = o.store.UpdateSitePHPVersion(ctx, site.ID, version); err != nil {
		return err
	}
	o.logger.Info("php version switched", "domain", site.Domain, "from", site.PHPVersion, "to", version)
	return nil
}

// UpdatePHPLimits re-renders the vhost with new per-site PHP settings.
func (o *Orchestrator) UpdatePHPLimits(ctx context.Context, siteID int64, limits models.PHPLimits) (err error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	defer func() { o.audit.Record("update_php_limits", err, "domain", site.Domain) }()

	unlock := o.lockDomain(site.Domain)
	defer unlock()

	updated := *site
	updated.PHPLimits = limits
	if err = o.activateVhost(ctx, &updated); err != nil {
		return err
	}
	return o.store.UpdateSitePHPLimits(ctx, site.ID, limits)
}

// EnableSSL turns on TLS for a site, either by requesting an ACME
// certificate or by installing an uploaded pair. The vhost switches to
// the certificate and metadata records the mode only after both steps
// succeed.
func (o *Orchestrator) EnableSSL(ctx context.Context, siteID int64, mode models.SSLMode, certPEM, keyPEM []byte) (res *models.CertResult, err error) {
	if !mode.Valid() || mode == models.SSLModeNone {
		return nil, ErrInvalidSSLMode
	}

	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	defer func() { o.audit.Record("enable_ssl", err, "domain", site.Domain, "mode", mode) }()

	unlock := o.lockDomain(site.Domain)
	defer unlock()

	hadCert := site.SSLMode != models.SSLModeNone && o.certs.CertExists(site.Domain)
	if mode == models.SSLModeManual {
		res, err = o.certs.InstallManual(site.Domain, certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
	} else {
		res, err = o.requestCertificate(ctx, site, mode)
		if err != nil {
			return nil, err
		}
	}

	updated := *site
	updated.SSLMode = mode
	updated.SSLExpiry = &res.Expiry
	if err = o.activateVhost(ctx, &updated); err != nil {
		if !hadCert {
			if derr := o.certs.RemoveCert(site.Domain); derr != nil {
				o.logger.Warn("cleanup of certificate failed", "domain", site.Domain, "error", derr)
			}
		} else {
			// The new pair has already replaced the old one on disk.
			// Metadata keeps the previous mode, but the next reload
			// serves the new material; record the divergence.
			o.audit.Record("enable_ssl_partial", err, "domain", site.Domain, "mode", mode)
		}
		return nil, err
	}

	if err = o.store.UpdateSiteSSL(ctx, site.ID, mode, &res.Expiry); err != nil {
		return nil, err
	}
	o.logger.Info("ssl enabled", "domain", site.Domain, "mode", mode, "expiry", res.Expiry)
	return res, nil
}

// DisableSSL reverts a site to plain HTTP and removes its certificate.
func (o *Orchestrator) DisableSSL(ctx context.Context, siteID int64) (err error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	defer func() { o.audit.Record("disable_ssl", err, "domain", site.Domain) }()

	unlock := o.lockDomain(site.Domain)
	defer unlock()

	updated := *site
	updated.SSLMode = models.SSLModeNone
	updated.SSLExpiry = nil
	if err = o.activateVhost(ctx, &updated); err != nil {
		return err
	}

	if err = o.certs.RemoveCert(site.Domain); err != nil {
		return err
	}
	return o.store.UpdateSiteSSL(ctx, site.ID, models.SSLModeNone, nil)
}

// RenewCertificates re-requests ACME certificates close to expiry and
// records the new expiry dates. The scheduler calls this daily.
func (o *Orchestrator) RenewCertificates(ctx context.Context) ([]*models.CertResult, error) {
	sites, err := o.store.ListSites(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []certs.RenewCandidate
	byDomain := make(map[string]*models.Site)
	for _, s := range sites {
		if !s.SSLMode.UsesACME() || s.SSLExpiry == nil {
			continue
		}
		candidates = append(candidates, certs.RenewCandidate{
			Domain:     s.Domain,
			WebrootDir: o.fs.HtdocsDir(s.Domain),
			Expiry:     *s.SSLExpiry,
			IncludeWWW: s.SSLMode == models.SSLModeAuto,
		})
		byDomain[s.Domain] = s
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	results := o.certs.RenewDue(ctx, o.acmeEmail, candidates)

	renewed := 0
	for _, r := range results {
		o.audit.Record("renew_certificate", nil, "domain", r.Domain, "ok", r.OK())
		if !r.OK() {
			continue
		}
		site := byDomain[r.Domain]
		if uerr := o.store.UpdateSiteSSL(ctx, site.ID, site.SSLMode, &r.Expiry); uerr != nil {
			o.logger.Error("recording renewed expiry failed", "domain", r.Domain, "error", uerr)
			continue
		}
		renewed++
	}

	// Certificate paths are stable, so one reload picks up all the new
	// material.
	if renewed > 0 {
		if rerr := o.vhosts.Reload(ctx); rerr != nil {
			o.logger.Error("nginx reload after renewal failed", "error", rerr)
		}
	}
	return results, nil
}

// requestCertificate runs the ACME flow and converts an issuance
// failure into an error; creation and SSL-enable both treat a refused
// certificate as a failed operation.
func (o *Orchestrator) requestCertificate(ctx context.Context, site *models.Site, mode models.SSLMode) (*models.CertResult, error) {
	includeWWW := mode == models.SSLModeAuto
	res, err := o.certs.RequestAuto(ctx, site.Domain, o.fs.HtdocsDir(site.Domain), o.acmeEmail, includeWWW)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("%w: %s", ErrCertRequestFailed, res.FailedReason)
	}
	return res, nil
}

// activateVhost renders the site's vhost and swaps it in.
func (o *Orchestrator) activateVhost(ctx context.Context, site *models.Site) error {
	var certPath, keyPath string
	if site.SSLMode != models.SSLModeNone {
		certPath, keyPath = o.certs.CertPaths(site.Domain)
	}
	text, err := o.vhosts.RenderVhost(site, certPath, keyPath)
	if err != nil {
		return err
	}
	return o.vhosts.WriteAndActivate(ctx, site.Domain, text)
}
