// Package api exposes the panel's REST interface: auth, sites,
// databases, system accounts, and settings. Orchestration errors are
// mapped to generic categorized messages; tool stderr and stack detail
// stay in the logs.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/BenEgeDeniz/lalapanel/internal/auth"
	"github.com/BenEgeDeniz/lalapanel/internal/certs"
	"github.com/BenEgeDeniz/lalapanel/internal/middleware"
	"github.com/BenEgeDeniz/lalapanel/internal/nginx"
	"github.com/BenEgeDeniz/lalapanel/internal/orch"
	"github.com/BenEgeDeniz/lalapanel/internal/store"
)

// Server holds all API handlers and dependencies.
type Server struct {
	router      chi.Router
	orch        *orch.Orchestrator
	store       *store.Store
	auth        *auth.Service
	logger      *slog.Logger
	phpVersions []string
}

// NewServer creates the API server.
func NewServer(o *orch.Orchestrator, st *store.Store, authSvc *auth.Service,
	phpVersions []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orch:        o,
		store:       st,
		auth:        authSvc,
		logger:      logger,
		phpVersions: phpVersions,
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute)) // certificate requests are slow

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.healthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(s.auth))

			r.Post("/auth/refresh", s.refreshToken)
			r.Get("/me", s.getCurrentUser)
			r.Put("/me/password", s.changePassword)

			r.Route("/sites", func(r chi.Router) {
				r.Get("/", s.listSites)
				r.Post("/", s.createSite)
				r.Get("/{id}", s.getSite)
				r.Delete("/{id}", s.deleteSite)
				r.Post("/{id}/php", s.switchPHP)
				r.Put("/{id}/limits", s.updatePHPLimits)
				r.Post("/{id}/ssl", s.enableSSL)
				r.Delete("/{id}/ssl", s.disableSSL)
				r.Post("/{id}/databases", s.createSiteDatabase)
				r.Get("/{id}/databases", s.listSiteDatabases)
				r.Post("/{id}/accounts", s.createAccount)
				r.Get("/{id}/accounts", s.listSiteAccounts)
			})

			r.Route("/databases", func(r chi.Router) {
				r.Get("/", s.listDatabases)
				r.Delete("/{id}", s.deleteDatabase)
			})

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", s.listAccounts)
				r.Post("/{id}/password", s.resetAccountPassword)
				r.Delete("/{id}", s.deleteAccount)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", s.getSettings)
				r.Get("/{key}", s.getSetting)
				r.Put("/", s.updateSettings)
			})

			r.Get("/php-versions", s.listPHPVersions)
		})
	})

	s.router = r
}

// Response helpers
func (s *Server) json(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) error(w http.ResponseWriter, status int, message string) {
	s.json(w, status, map[string]string{"error": message})
}

func (s *Server) success(w http.ResponseWriter, data interface{}) {
	s.json(w, http.StatusOK, data)
}

// opError maps an orchestration error to a generic outward message.
// The full error, including any tool stderr, goes to the log only.
func (s *Server) opError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("operation failed", "op", op, "error", err)

	var cve *nginx.ConfigValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.error(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		s.error(w, http.StatusConflict, "already exists")
	case errors.Is(err, orch.ErrInvalidDomain),
		errors.Is(err, orch.ErrUnsupportedPHP),
		errors.Is(err, orch.ErrInvalidSSLMode),
		errors.Is(err, orch.ErrInvalidUsername):
		s.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, certs.ErrCertificateMismatch),
		errors.Is(err, certs.ErrCertificateExpired),
		errors.Is(err, certs.ErrInvalidCertificate):
		s.error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, orch.ErrCertRequestFailed):
		s.error(w, http.StatusBadGateway, "certificate request failed")
	case errors.As(err, &cve):
		s.error(w, http.StatusUnprocessableEntity, "web server rejected the generated configuration")
	default:
		s.error(w, http.StatusInternalServerError, "operation failed")
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) listPHPVersions(w http.ResponseWriter, r *http.Request) {
	s.success(w, map[string]interface{}{"versions": s.phpVersions})
}
