// Package middleware provides the HTTP middleware shared by API routes.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/BenEgeDeniz/lalapanel/internal/auth"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// Auth validates the bearer token on every request and stores the
// session claims in the request context.
func Auth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := svc.ValidateToken(parts[1])
			if err != nil {
				if err == auth.ErrTokenExpired {
					unauthorized(w, "token expired")
					return
				}
				unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims retrieves the session claims set by Auth, or nil.
func GetClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsContextKey).(*auth.Claims)
	return claims
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "` + msg + `"}`))
}
