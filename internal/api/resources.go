package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BenEgeDeniz/lalapanel/internal/models"
)

type createAccountRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"` // generated when empty
	AccessMode string `json:"access_mode"`
}

func (s *Server) createSiteDatabase(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	db, err := s.orch.CreateSiteDatabase(r.Context(), id)
	if err != nil {
		s.opError(w, "create_database", err)
		return
	}
	// The password appears in this response and nowhere else.
	s.json(w, http.StatusCreated, db)
}

func (s *Server) listSiteDatabases(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	dbs, err := s.store.ListDatabasesForSite(r.Context(), id)
	if err != nil {
		s.opError(w, "list_databases", err)
		return
	}
	s.success(w, map[string]interface{}{"databases": dbs, "total": len(dbs)})
}

func (s *Server) listDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := s.store.ListDatabases(r.Context())
	if err != nil {
		s.opError(w, "list_databases", err)
		return
	}
	s.success(w, map[string]interface{}{"databases": dbs, "total": len(dbs)})
}

func (s *Server) deleteDatabase(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid database id")
		return
	}
	if err := s.orch.DeleteSiteDatabase(r.Context(), id); err != nil {
		s.opError(w, "delete_database", err)
		return
	}
	s.success(w, map[string]string{"status": "deleted"})
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		s.error(w, http.StatusBadRequest, "username is required")
		return
	}

	acct, password, err := s.orch.CreateAccount(r.Context(), id, req.Username, req.Password,
		models.AccessMode(req.AccessMode))
	if err != nil {
		s.opError(w, "create_account", err)
		return
	}

	s.json(w, http.StatusCreated, map[string]interface{}{
		"account":  acct,
		"password": password,
	})
}

func (s *Server) listSiteAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid site id")
		return
	}
	accts, err := s.store.ListSystemAccountsForSite(r.Context(), id)
	if err != nil {
		s.opError(w, "list_accounts", err)
		return
	}
	s.success(w, map[string]interface{}{"accounts": accts, "total": len(accts)})
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.store.ListSystemAccounts(r.Context())
	if err != nil {
		s.opError(w, "list_accounts", err)
		return
	}
	s.success(w, map[string]interface{}{"accounts": accts, "total": len(accts)})
}

func (s *Server) resetAccountPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid account id")
		return
	}
	password, err := s.orch.ResetAccountPassword(r.Context(), id)
	if err != nil {
		s.opError(w, "reset_account_password", err)
		return
	}
	// The new password appears in this response and nowhere else.
	s.success(w, map[string]string{"password": password})
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.error(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := s.orch.DeleteAccount(r.Context(), id); err != nil {
		s.opError(w, "delete_account", err)
		return
	}
	s.success(w, map[string]string{"status": "deleted"})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.AllSettings(r.Context())
	if err != nil {
		s.opError(w, "get_settings", err)
		return
	}
	s.success(w, settings)
}

func (s *Server) getSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := s.store.GetSetting(r.Context(), key)
	if err != nil {
		s.opError(w, "get_setting", err)
		return
	}
	s.success(w, map[string]string{key: value})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]string
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for k, v := range settings {
		if err := s.store.SetSetting(r.Context(), k, v); err != nil {
			s.opError(w, "update_settings", err)
			return
		}
	}
	s.success(w, settings)
}
