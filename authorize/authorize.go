package authorize

import (
	"context"
	"net/http"
	"strings"

	"github.com/hashicorp/go-secure-stdlib/strutil"
)

const (
	// TokenCookie is the session cookie name
	TokenCookie = "doorman_token"

	// TokenHeader is the custom token header, checked after the cookie
	TokenHeader = "X-Doorman-Token"

	// SetupPath is where unconfigured browsers are redirected
	SetupPath = "/v1/sys/setup"

	// LoginPath is where unauthenticated browsers are redirected
	LoginPath = "/v1/auth/login"
)

// publicPaths are reachable without a token, configured or not. Everything
// else is gated.
var publicPaths = []string{
	"/v1/sys/health",
	"/v1/sys/setup",
	"/v1/auth/login",
}

// Decision is the outcome of evaluating a request
type Decision int

const (
	// Allow lets the request through with a validated token
	Allow Decision = iota
	// DenySetupRequired blocks the request because no admin credential
	// exists yet
	DenySetupRequired
	// DenyUnauthorized blocks the request because the token failed
	// validation
	DenyUnauthorized
)

// Result carries the decision plus how to express a denial: a redirect for
// browser-accepted responses, a structured error otherwise.
type Result struct {
	Decision   Decision
	Token      string
	Redirect   string
	StatusCode int
}

// Authenticator is the slice of the core the gate needs
type Authenticator interface {
	Configured(ctx context.Context) bool
	ValidateToken(ctx context.Context, token string) bool
}

// Gate evaluates the authorization decision for inbound requests
type Gate struct {
	auth Authenticator
}

// NewGate creates a gate over the given authenticator
func NewGate(auth Authenticator) *Gate {
	return &Gate{auth: auth}
}

// ExtractToken pulls the session token from a request with fixed
// precedence: cookie, then custom header, then bearer authorization.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}

	authz := r.Header.Get("Authorization")
	if prefix := "Bearer "; len(authz) > len(prefix) && strings.EqualFold(authz[:len(prefix)], prefix) {
		return strings.TrimSpace(authz[len(prefix):])
	}

	return ""
}

// IsPublicPath reports whether the path is on the fixed allow-list
func IsPublicPath(path string) bool {
	return strutil.StrListContains(publicPaths, path)
}

// wantsHTML reports whether the client negotiated a browser response
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// Evaluate decides allow/deny for a request's path and token
func (g *Gate) Evaluate(r *http.Request) Result {
	ctx := r.Context()
	path := r.URL.Path

	if !g.auth.Configured(ctx) {
		if IsPublicPath(path) {
			return Result{Decision: Allow}
		}
		result := Result{
			Decision:   DenySetupRequired,
			StatusCode: http.StatusForbidden,
		}
		if wantsHTML(r) {
			result.Redirect = SetupPath
			result.StatusCode = http.StatusFound
		}
		return result
	}

	if IsPublicPath(path) {
		return Result{Decision: Allow}
	}

	token := ExtractToken(r)
	if !g.auth.ValidateToken(ctx, token) {
		result := Result{
			Decision:   DenyUnauthorized,
			StatusCode: http.StatusUnauthorized,
		}
		if wantsHTML(r) {
			result.Redirect = LoginPath
			result.StatusCode = http.StatusFound
		}
		return result
	}

	return Result{Decision: Allow, Token: token}
}
