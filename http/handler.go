package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/stephnangue/doorman/authorize"
	"github.com/stephnangue/doorman/core"
	"github.com/stephnangue/doorman/logger"
)

// HandlerProperties contains configuration for the HTTP handler
type HandlerProperties struct {
	Core   *core.Core
	Logger *logger.GatedLogger
}

type contextKey string

// tokenContextKey carries the validated session token through a request
const tokenContextKey contextKey = "doorman.token"

// requestToken returns the validated token attached by the authorization
// middleware, or "" for public paths.
func requestToken(r *http.Request) string {
	token, _ := r.Context().Value(tokenContextKey).(string)
	return token
}

// Handler creates and returns the main HTTP handler for Doorman.
func Handler(props *HandlerProperties) http.Handler {
	mux := http.NewServeMux()
	core := props.Core
	log := props.Logger

	// Status endpoints - reachable before setup
	mux.Handle("/v1/sys/health", handleSysHealth(core, log))
	mux.Handle("/v1/sys/setup", handleSysSetup(core, log))

	// Auth endpoints
	mux.Handle("/v1/auth/login", handleAuthLogin(core, log))
	mux.Handle("/v1/auth/logout", handleAuthLogout(core, log))
	mux.Handle("/v1/auth/password", handleAuthPassword(core, log))
	mux.Handle("/v1/auth/me", handleAuthMe(core, log))

	// Every request passes the authorization gate before reaching the mux
	handler := wrapAuthHandler(core, mux)

	return wrapGenericHandler(handler)
}

// wrapGenericHandler rejects anything outside the /v1/ API space
func wrapGenericHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			respondError(w, http.StatusNotFound, "path must begin with /v1/")
			return
		}

		handler.ServeHTTP(w, r)
	})
}

// wrapAuthHandler applies the authorization decision to each request:
// deny with a setup-required or unauthorized signal (redirect for browser
// clients, structured error otherwise), or allow and attach the validated
// token to the request context.
func wrapAuthHandler(c *core.Core, handler http.Handler) http.Handler {
	gate := authorize.NewGate(c)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := gate.Evaluate(r)

		switch result.Decision {
		case authorize.Allow:
			if result.Token != "" {
				ctx := context.WithValue(r.Context(), tokenContextKey, result.Token)
				r = r.WithContext(ctx)
			}
			handler.ServeHTTP(w, r)

		case authorize.DenySetupRequired:
			if result.Redirect != "" {
				http.Redirect(w, r, result.Redirect, result.StatusCode)
				return
			}
			respondError(w, result.StatusCode, "doorman is not configured")

		case authorize.DenyUnauthorized:
			if result.Redirect != "" {
				http.Redirect(w, r, result.Redirect, result.StatusCode)
				return
			}
			respondError(w, result.StatusCode, "unauthorized")
		}
	})
}
