package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/http/webroot"
	"github.com/go-acme/lego/v4/registration"
)

// acmeUser implements the registration.User interface.
type acmeUser struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.Email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.Registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// loadOrCreateACMEUser loads the persisted ACME account for email, or
// generates and persists a fresh one.
func (m *Manager) loadOrCreateACMEUser(email string) (*acmeUser, error) {
	accountDir := filepath.Join(m.dataDir, "acme-accounts")
	if err := os.MkdirAll(accountDir, 0700); err != nil {
		return nil, fmt.Errorf("create account directory: %w", err)
	}

	accountFile := filepath.Join(accountDir, email+".json")
	keyFile := filepath.Join(accountDir, email+".key")

	if _, err := os.Stat(accountFile); err == nil {
		data, err := os.ReadFile(accountFile)
		if err != nil {
			return nil, fmt.Errorf("read account file: %w", err)
		}

		var user acmeUser
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("parse account: %w", err)
		}

		keyData, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read account key: %w", err)
		}
		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode account key")
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse account key: %w", err)
		}

		user.key = key
		return &user, nil
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}

	user := &acmeUser{Email: email, key: privateKey}

	keyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("marshal account key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("save account key: %w", err)
	}

	if err := m.saveACMEUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (m *Manager) saveACMEUser(user *acmeUser) error {
	accountFile := filepath.Join(m.dataDir, "acme-accounts", user.Email+".json")

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if err := os.WriteFile(accountFile, data, 0600); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// newACMEClient builds a lego client for the account with the HTTP-01
// webroot solver pointed at the site's htdocs directory.
func (m *Manager) newACMEClient(user *acmeUser, webrootDir string) (*lego.Client, error) {
	config := lego.NewConfig(user)
	config.Certificate.KeyType = certcrypto.EC256
	if m.directoryURL != "" {
		config.CADirURL = m.directoryURL
	}

	client, err := lego.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create acme client: %w", err)
	}

	provider, err := webroot.NewHTTPProvider(webrootDir)
	if err != nil {
		return nil, fmt.Errorf("create webroot provider: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(provider); err != nil {
		return nil, fmt.Errorf("set http-01 provider: %w", err)
	}

	if user.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("register acme account: %w", err)
		}
		user.Registration = reg
		if err := m.saveACMEUser(user); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// obtain requests a certificate bundle for the domains.
func obtain(client *lego.Client, domains []string) (*certificate.Resource, error) {
	return client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
}
