// Package auth handles the single admin login: bcrypt verification
// against the stored credential, JWT session tokens, and per-IP login
// throttling backed by the metadata store.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/BenEgeDeniz/lalapanel/internal/store"
)

const (
	tokenLifetime = 24 * time.Hour

	// Throttle window per source IP.
	maxAttempts   = 5
	attemptWindow = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
)

// Claims are the JWT claims carried by a panel session token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service verifies logins and issues session tokens.
type Service struct {
	store  *store.Store
	secret []byte
}

func NewService(st *store.Store, secret []byte) *Service {
	return &Service{store: st, secret: secret}
}

// HashPassword bcrypt-hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login verifies the admin credential and returns a signed session
// token. Failed attempts are recorded against the source IP; once the
// window fills up further attempts are rejected before the password is
// even looked at.
func (s *Service) Login(ctx context.Context, username, password, ip string) (string, error) {
	count, err := s.store.CountRecentLoginAttempts(ctx, ip, attemptWindow)
	if err != nil {
		return "", err
	}
	if count >= maxAttempts {
		return "", ErrTooManyAttempts
	}

	cred, err := s.store.GetCredential(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if username != cred.Username ||
		bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		if rerr := s.store.RecordLoginAttempt(ctx, ip); rerr != nil {
			return "", rerr
		}
		return "", ErrInvalidCredentials
	}

	return s.issueToken(cred.Username)
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, current, updated string) error {
	cred, err := s.store.GetCredential(ctx)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(updated)
	if err != nil {
		return err
	}
	return s.store.SetCredential(ctx, cred.Username, hash)
}

// Refresh issues a fresh token for an already authenticated session.
func (s *Service) Refresh(claims *Claims) (string, error) {
	return s.issueToken(claims.Username)
}

func (s *Service) issueToken(username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			Issuer:    "lalapanel",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a session token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
