package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stephnangue/doorman/core"
	"github.com/stephnangue/doorman/cred"
	"github.com/stephnangue/doorman/logger"
)

// SetupRequest represents the request body for the setup operation
type SetupRequest struct {
	// Password becomes the admin password. At least 8 characters, at
	// most 72 bytes.
	Password string `json:"password"`

	// DisplayName is an optional label for the admin. It is sanitized
	// and capped; an empty result falls back to a default.
	DisplayName string `json:"display_name,omitempty"`
}

// SetupResponse represents the response from the setup operation
type SetupResponse struct {
	// Token is the first session token, already valid
	Token string `json:"token"`

	// DisplayName is the stored, sanitized display name
	DisplayName string `json:"display_name"`
}

// StatusResponse reports whether the admin credential exists
type StatusResponse struct {
	Configured bool `json:"configured"`
}

// handleSysHealth returns a handler for GET /v1/sys/health
func handleSysHealth(c *core.Core, log *logger.GatedLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		respondOk(w, &StatusResponse{
			Configured: c.Configured(r.Context()),
		})
	})
}

// handleSysSetup returns an HTTP handler for the /v1/sys/setup endpoint.
// It handles:
//   - GET: Check configuration status
//   - PUT/POST: Perform the one-time credential setup
func handleSysSetup(c *core.Core, log *logger.GatedLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			respondOk(w, &StatusResponse{
				Configured: c.Configured(r.Context()),
			})
		case http.MethodPut, http.MethodPost:
			handleSysSetupPut(c, w, r, log)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysSetupPut handles PUT/POST /v1/sys/setup
func handleSysSetupPut(c *core.Core, w http.ResponseWriter, r *http.Request, log *logger.GatedLogger) {
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body")
		return
	}

	token, err := c.SetupUser(r.Context(), req.Password, req.DisplayName)
	if err != nil {
		var verr *cred.ValidationError
		switch {
		case errors.Is(err, core.ErrAlreadyConfigured), errors.Is(err, core.ErrSetupInProgress):
			log.Warn("attempted to configure already configured doorman")
			respondError(w, http.StatusConflict, err.Error())
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error("setup failed", logger.Err(err))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	info, err := c.CredentialInfo(r.Context())
	if err != nil {
		log.Error("failed to read credential after setup", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	setTokenCookie(w, token)
	respondOk(w, &SetupResponse{
		Token:       token,
		DisplayName: info.DisplayName,
	})
}
