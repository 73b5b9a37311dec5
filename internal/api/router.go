package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/formvault/formvault/internal/middleware"
	"github.com/formvault/formvault/internal/pgp"
	"github.com/formvault/formvault/internal/services"
)

type Router struct {
	auth  *services.AuthService
	forms *services.FormService
	keys  *services.KeyService
	subs  *services.SubmissionService
}

func NewRouter() *Router {
	return NewRouterWithStore(NewMemoryStore())
}

func NewRouterWithStore(store Store) *Router {
	policy := pgp.RecipientCertPolicy()
	return &Router{
		auth:  services.NewAuthService(store, middleware.SignToken),
		forms: services.NewFormService(store),
		keys:  services.NewKeyService(store, policy),
		subs:  services.NewSubmissionService(store, policy, nil),
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleAuthRegister) // POST
	mux.HandleFunc("/api/auth/login", rt.handleAuthLogin)       // POST
	mux.HandleFunc("/api/forms", rt.handleForms)                // POST, GET (auth)
	// Mixed group: {id} and {id}/keys are public for form fillers,
	// {id}/submissions is the public intake, export is owner-only.
	mux.HandleFunc("/api/forms/", rt.handleFormScoped)
	// The key and submission-detail groups are owner-only throughout.
	mux.Handle("/api/keys", middleware.RequireAuth(http.HandlerFunc(rt.handleKeys)))
	mux.Handle("/api/keys/", middleware.RequireAuth(http.HandlerFunc(rt.handleKeyScoped)))
	mux.Handle("/api/submissions/", middleware.RequireAuth(http.HandlerFunc(rt.handleSubmissionScoped)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorTooManyRequests:
			status = http.StatusTooManyRequests
		}
		http.Error(w, se.Message, status)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// identity pulls the authenticated (userID, orgID) pair; handlers behind
// RequireAuth can still be hit directly in tests, so a missing identity is
// answered with 401 here as well.
func identity(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	c, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || c.UID == "" || c.OID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", "", false
	}
	return c.UID, c.OID, true
}

func (rt *Router) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		OrgName  string `json:"org_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password, req.Name, req.OrgName)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": res.Token, "org_id": res.OrgID, "user_id": res.UserID})
}

func (rt *Router) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": res.Token, "org_id": res.OrgID, "user_id": res.UserID})
}

func (rt *Router) handleForms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		_, oid, ok := identity(w, r)
		if !ok {
			return
		}
		var req struct {
			Name        string `json:"name"`
			E2EEEnabled bool   `json:"e2ee_enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, err := rt.forms.Create(oid, req.Name, req.E2EEEnabled)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, f)
	case http.MethodGet:
		_, oid, ok := identity(w, r)
		if !ok {
			return
		}
		fs, err := rt.forms.ListByOrg(oid)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"forms": fs})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleFormScoped routes /api/forms/{id}[/...].
func (rt *Router) handleFormScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/forms/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		f, err := rt.forms.Get(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, f)
	case len(parts) == 2 && parts[1] == "keys" && r.Method == http.MethodGet:
		// Public: form fillers fetch the recipient certificates here.
		certs, err := rt.subs.RecipientCerts(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"form_id": id, "recipient_certs": certs})
	case len(parts) == 2 && parts[1] == "submissions" && r.Method == http.MethodPost:
		var req struct {
			EncryptedData string `json:"encrypted_data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := rt.subs.Intake(id, req.EncryptedData)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, res)
	case len(parts) == 3 && parts[1] == "submissions" && parts[2] == "export" && r.Method == http.MethodGet:
		uid, oid, ok := identity(w, r)
		if !ok {
			return
		}
		bundle, err := rt.subs.Export(oid, id, uid)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, bundle)
	default:
		http.NotFound(w, r)
	}
}

func (rt *Router) handleKeys(w http.ResponseWriter, r *http.Request) {
	uid, oid, ok := identity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req struct {
			PublicKey string `json:"public_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec, err := rt.keys.Register(uid, oid, req.PublicKey)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, rec)
	case http.MethodGet:
		keys, err := rt.keys.ListWithIdentity(oid)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"keys": keys})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleKeyScoped routes /api/keys/{id}[/backup].
func (rt *Router) handleKeyScoped(w http.ResponseWriter, r *http.Request) {
	uid, oid, ok := identity(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := rt.keys.Delete(uid, oid, id); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	case len(parts) == 2 && parts[1] == "backup" && r.Method == http.MethodPut:
		var req struct {
			PrivateKey string `json:"private_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := rt.keys.RegisterBackup(uid, oid, id, req.PrivateKey); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	case len(parts) == 2 && parts[1] == "backup" && r.Method == http.MethodGet:
		armored, err := rt.keys.Backup(uid, oid, id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"private_key": armored})
	default:
		http.NotFound(w, r)
	}
}

// handleSubmissionScoped routes /api/submissions/{id}/crypto-details.
func (rt *Router) handleSubmissionScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "crypto-details" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	_, oid, ok := identity(w, r)
	if !ok {
		return
	}
	details, err := rt.subs.CryptoDetails(oid, parts[0])
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, details)
}
