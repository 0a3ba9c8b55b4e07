package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
	"github.com/BenEgeDeniz/lalapanel/internal/orch"
)

type createSiteRequest struct {
	Domain         string            `json:"domain"`
	PHPVersion     string            `json:"php_version"`
	SSLMode        string            `json:"ssl_mode,omitempty"`
	CreateDatabase bool              `json:"create_database,omitempty"`
	PHPLimits      *models.PHPLimits `json:"php_limits,omitempty"`
}

type switchPHPRequest struct {
	PHPVersion string `json:"php_version"`
}

type enableSSLRequest struct {
	Mode string `json:"mode"`
	// PEM-encoded, required for manual mode only.
	Certificate string `json:"certificate,omitempty"`
	PrivateKey  string `json:"private_key,omitempty"`
}

// idParam parses the {id} route parameter.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.store.ListSites(r.Context())
	if err != nil {
		s.opError(w, "list_sites", err)
		return
	}
	s.success(w, map[string]interface{}{"sites": sites, "total": len(sites)})
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	site, err := s.store.GetSite(r.Context(), id)
	if err != nil {
		s.opError(w, "get_site", err)
		return
	}
	s.success(w, site)
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Domain == "" {
		s.error(w, http.StatusBadRequest, "domain is required")
		return
	}
	if req.PHPVersion == "" {
		s.error(w, http.StatusBadRequest, "php_version is required")
		return
	}

	sslMode := models.SSLModeNone
	if req.SSLMode != "" {
		sslMode = models.SSLMode(req.SSLMode)
	}

	res, err := s.orch.CreateSite(r.Context(), orch.CreateSiteRequest{
		Domain:         req.Domain,
		PHPVersion:     req.PHPVersion,
		SSLMode:        sslMode,
		CreateDatabase: req.CreateDatabase,
		PHPLimits:      req.PHPLimits,
	})
	if err != nil {
		s.opError(w, "create_site", err)
		return
	}

	s.json(w, http.StatusCreated, res)
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	if err := s.orch.DeleteSite(r.Context(), id); err != nil {
		s.opError(w, "delete_site", err)
		return
	}
	s.success(w, map[string]string{"status": "deleted"})
}

func (s *Server) switchPHP(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	var req switchPHPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orch.SwitchPHPVersion(r.Context(), id, req.PHPVersion); err != nil {
		s.opError(w, "switch_php", err)
		return
	}
	s.success(w, map[string]string{"status": "switched", "php_version": req.PHPVersion})
}

func (s *Server) updatePHPLimits(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	var limits models.PHPLimits
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if limits.UploadMaxSizeMB <= 0 || limits.MemoryLimitMB <= 0 || limits.MaxExecutionSecs <= 0 {
		s.error(w, http.StatusBadRequest, "limits must be positive")
		return
	}
	if err := s.orch.UpdatePHPLimits(r.Context(), id, limits); err != nil {
		s.opError(w, "update_php_limits", err)
		return
	}
	s.success(w, limits)
}

func (s *Server) enableSSL(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	var req enableSSLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := models.SSLMode(req.Mode)
	if mode == models.SSLModeManual && (req.Certificate == "" || req.PrivateKey == "") {
		s.error(w, http.StatusBadRequest, "certificate and private_key are required for manual mode")
		return
	}

	res, err := s.orch.EnableSSL(r.Context(), id, mode, []byte(req.Certificate), []byte(req.PrivateKey))
	if err != nil {
		s.opError(w, "enable_ssl", err)
		return
	}
	s.success(w, res)
}

func (s *Server) disableSSL(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	if err := s.orch.DisableSSL(r.Context(), id); err != nil {
		s.opError(w, "disable_ssl", err)
		return
	}
	s.success(w, map[string]string{"status": "ssl disabled"})
}
