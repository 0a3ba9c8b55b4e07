package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/BenEgeDeniz/lalapanel/internal/auth"
	"github.com/BenEgeDeniz/lalapanel/internal/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTooManyAttempts):
			s.error(w, http.StatusTooManyRequests, "too many failed login attempts")
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.error(w, http.StatusUnauthorized, "invalid credentials")
		default:
			s.logger.Error("login failed", "error", err)
			s.error(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	s.success(w, map[string]string{"token": token})
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	token, err := s.auth.Refresh(claims)
	if err != nil {
		s.logger.Error("token refresh failed", "error", err)
		s.error(w, http.StatusInternalServerError, "token refresh failed")
		return
	}
	s.success(w, map[string]string{"token": token})
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	s.success(w, map[string]string{"username": claims.Username})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		s.error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.error(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		s.logger.Error("password change failed", "error", err)
		s.error(w, http.StatusInternalServerError, "password change failed")
		return
	}

	s.success(w, map[string]string{"status": "password updated"})
}

// clientIP returns the request's source address. RealIP middleware has
// already resolved proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
