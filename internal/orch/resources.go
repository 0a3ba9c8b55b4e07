package orch

import (
	"context"
	"fmt"

	"github.com/BenEgeDeniz/lalapanel/internal/dbprov"
	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/store"
	"github.com/BenEgeDeniz/lalapanel/internal/sysacct"
	"github.com/BenEgeDeniz/lalapanel/internal/validate"
)

var ErrInvalidUsername = sysacct.ErrInvalidUsername

// CreateSiteDatabase provisions a MariaDB database for an existing site
// and returns the record with its one-time password.
func (o *Orchestrator) CreateSiteDatabase(ctx context.Context, siteID int64) (db *models.Database, err error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	defer func() { o.audit.Record("create_database", err, "domain", site.Domain) }()

	unlock := o.lockDomain(site.Domain)
	defer unlock()

	db, err = o.provisionDatabase(ctx, site.Domain)
	if err != nil {
		return nil, err
	}

	db.SiteID = site.ID
	stored, serr := o.store.CreateDatabase(ctx, db)
	if serr != nil {
		if derr := o.db.Deprovision(ctx, db.Name, db.Username); derr != nil {
			o.logger.Warn("cleanup of database failed", "db", db.Name, "error", derr)
		}
		err = serr
		return nil, err
	}
	stored.Password = db.Password
	o.logger.Info("database created", "domain", site.Domain, "db", stored.Name)
	return stored, nil
}

// DeleteSiteDatabase drops the database and user, then removes the row.
func (o *Orchestrator) DeleteSiteDatabase(ctx context.Context, dbID int64) (err error) {
	db, err := o.store.GetDatabase(ctx, dbID)
	if err != nil {
		return err
	}
	defer func() { o.audit.Record("delete_database", err, "db", db.Name) }()

	site, err := o.store.GetSite(ctx, db.SiteID)
	if err != nil {
		return err
	}
	unlock := o.lockDomain(site.Domain)
	defer unlock()

	if err = o.db.Deprovision(ctx, db.Name, db.Username); err != nil {
		return err
	}
	return o.store.DeleteDatabase(ctx, db.ID)
}

// provisionDatabase derives a collision-free name pair, provisions the
// database, and returns the unsaved record carrying the password.
func (o *Orchestrator) provisionDatabase(ctx context.Context, domain string) (*models.Database, error) {
	name, user := dbprov.DeriveNames(domain)
	for tries := 0; ; tries++ {
		exists, err := o.store.DatabaseNameExists(ctx, name, user)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		if tries >= 5 {
			return nil, fmt.Errorf("could not find a free database name for %s", domain)
		}
		suffix, err := dbprov.RandomSuffix()
		if err != nil {
			return nil, err
		}
		name, user = dbprov.NamesWithSuffix(domain, suffix)
	}

	password, err := dbprov.GeneratePassword()
	if err != nil {
		return nil, err
	}
	if err := o.db.Provision(ctx, name, user, password); err != nil {
		return nil, err
	}
	return &models.Database{Name: name, Username: user, Password: password}, nil
}

// CreateAccount creates a scoped OS account for a site. An empty
// password is replaced by a generated one; either way it is returned
// once and never stored.
func (o *Orchestrator) CreateAccount(ctx context.Context, siteID int64, username, password string, mode models.AccessMode) (acct *models.SystemAccount, plainPassword string, err error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, "", err
	}
	defer func() { o.audit.Record("create_account", err, "domain", site.Domain, "username", username) }()

	if !validate.Username(username) {
		err = ErrInvalidUsername
		return nil, "", err
	}
	if mode != models.AccessFTPOnly && mode != models.AccessSSHFTP {
		err = fmt.Errorf("invalid access mode %q", mode)
		return nil, "", err
	}

	unlock := o.lockDomain(site.Domain)
	defer unlock()

	// The username must be free in metadata before the OS user is
	// created; the insert below re-checks under the unique constraint.
	if _, gerr := o.store.GetSystemAccountByUsername(ctx, username); gerr == nil {
		err = store.ErrConflict
		return nil, "", err
	}

	if password == "" {
		password, err = sysacct.GeneratePassword()
		if err != nil {
			return nil, "", err
		}
	}

	if err = o.accounts.CreateAccount(ctx, username, o.fs.SiteDir(site.Domain), password, mode); err != nil {
		return nil, "", err
	}

	acct = &models.SystemAccount{SiteID: site.ID, Username: username, AccessMode: mode}
	stored, serr := o.store.CreateSystemAccount(ctx, acct)
	if serr != nil {
		if derr := o.accounts.DeleteAccount(ctx, username); derr != nil {
			o.logger.Warn("cleanup of os account failed", "username", username, "error", derr)
		}
		err = serr
		return nil, "", err
	}

	o.logger.Info("system account created", "domain", site.Domain, "username", username, "mode", mode)
	return stored, password, nil
}

// ResetAccountPassword sets a freshly generated password on the OS
// account and returns it once.
func (o *Orchestrator) ResetAccountPassword(ctx context.Context, accountID int64) (plainPassword string, err error) {
	acct, err := o.store.GetSystemAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	defer func() { o.audit.Record("reset_account_password", err, "username", acct.Username) }()

	site, err := o.store.GetSite(ctx, acct.SiteID)
	if err != nil {
		return "", err
	}
	unlock := o.lockDomain(site.Domain)
	defer unlock()

	password, err := sysacct.GeneratePassword()
	if err != nil {
		return "", err
	}
	if err = o.accounts.SetPassword(ctx, acct.Username, password); err != nil {
		return "", err
	}
	return password, nil
}

// DeleteAccount removes the OS user, then the row.
func (o *Orchestrator) DeleteAccount(ctx context.Context, accountID int64) (err error) {
	acct, err := o.store.GetSystemAccount(ctx, accountID)
	if err != nil {
		return err
	}
	defer func() { o.audit.Record("delete_account", err, "username", acct.Username) }()

	site, err := o.store.GetSite(ctx, acct.SiteID)
	if err != nil {
		return err
	}
	unlock := o.lockDomain(site.Domain)
	defer unlock()

	if err = o.accounts.DeleteAccount(ctx, acct.Username); err != nil {
		return err
	}
	return o.store.DeleteSystemAccount(ctx, acct.ID)
}
