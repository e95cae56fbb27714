package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stephnangue/doorman/authorize"
	"github.com/stephnangue/doorman/core"
	"github.com/stephnangue/doorman/cred"
	"github.com/stephnangue/doorman/logger"
)

// LoginRequest represents the request body for the login operation
type LoginRequest struct {
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued session token
type TokenResponse struct {
	Token string `json:"token"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// setTokenCookie attaches the session token for browser clients
func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authorize.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearTokenCookie expires the session cookie
func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authorize.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleAuthLogin returns a handler for POST /v1/auth/login
func handleAuthLogin(c *core.Core, log *logger.GatedLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "failed to parse request body")
			return
		}

		token, err := c.Login(r.Context(), req.Password)
		if err != nil {
			if errors.Is(err, core.ErrInvalidCredentials) {
				// One generic message for wrong password and
				// not-configured alike
				respondError(w, http.StatusUnauthorized, err.Error())
				return
			}
			log.Error("login failed", logger.Err(err))
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		setTokenCookie(w, token)
		respondOk(w, &TokenResponse{Token: token})
	})
}

// handleAuthLogout returns a handler for POST /v1/auth/logout. It revokes
// the presenting token; revocation is best-effort and always succeeds from
// the client's point of view.
func handleAuthLogout(c *core.Core, log *logger.GatedLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		c.RevokeToken(r.Context(), requestToken(r))
		clearTokenCookie(w)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleAuthPassword returns a handler for POST /v1/auth/password
func handleAuthPassword(c *core.Core, log *logger.GatedLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req ChangePasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "failed to parse request body")
			return
		}

		token, err := c.ChangePassword(r.Context(), req.OldPassword, req.NewPassword)
		if err != nil {
			var verr *cred.ValidationError
			switch {
			case errors.Is(err, core.ErrInvalidCredentials):
				respondError(w, http.StatusUnauthorized, err.Error())
			case errors.Is(err, core.ErrNotConfigured):
				respondError(w, http.StatusBadRequest, err.Error())
			case errors.As(err, &verr):
				respondError(w, http.StatusBadRequest, err.Error())
			default:
				log.Error("password change failed", logger.Err(err))
				respondError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}

		setTokenCookie(w, token)
		respondOk(w, &TokenResponse{Token: token})
	})
}

// handleAuthMe returns a handler for GET /v1/auth/me. The response carries
// credential metadata only, never the hash or the session secret.
func handleAuthMe(c *core.Core, log *logger.GatedLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		info, err := c.CredentialInfo(r.Context())
		if err != nil {
			log.Error("failed to read credential info", logger.Err(err))
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		respondOk(w, info)
	})
}
