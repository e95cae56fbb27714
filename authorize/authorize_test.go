package authorize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeAuth is a canned Authenticator
type fakeAuth struct {
	configured bool
	validToken string
}

func (f *fakeAuth) Configured(ctx context.Context) bool {
	return f.configured
}

func (f *fakeAuth) ValidateToken(ctx context.Context, token string) bool {
	return token != "" && token == f.validToken
}

func request(path string, decorate func(*http.Request)) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if decorate != nil {
		decorate(r)
	}
	return r
}

func TestExtractToken_Precedence(t *testing.T) {
	// Cookie wins over header and bearer
	r := request("/v1/auth/me", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "from-cookie"})
		r.Header.Set(TokenHeader, "from-header")
		r.Header.Set("Authorization", "Bearer from-bearer")
	})
	assert.Equal(t, "from-cookie", ExtractToken(r))

	// Header wins over bearer
	r = request("/v1/auth/me", func(r *http.Request) {
		r.Header.Set(TokenHeader, "from-header")
		r.Header.Set("Authorization", "Bearer from-bearer")
	})
	assert.Equal(t, "from-header", ExtractToken(r))

	r = request("/v1/auth/me", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer from-bearer")
	})
	assert.Equal(t, "from-bearer", ExtractToken(r))

	// Non-bearer authorization schemes are ignored
	r = request("/v1/auth/me", func(r *http.Request) {
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	})
	assert.Empty(t, ExtractToken(r))

	assert.Empty(t, ExtractToken(request("/v1/auth/me", nil)))
}

func TestGate_UnconfiguredDeniesWithSetupSignal(t *testing.T) {
	gate := NewGate(&fakeAuth{configured: false})

	// Public paths stay reachable for the setup flow
	for _, path := range []string{"/v1/sys/health", "/v1/sys/setup", "/v1/auth/login"} {
		result := gate.Evaluate(request(path, nil))
		assert.Equal(t, Allow, result.Decision, path)
	}

	// API clients get a structured error
	result := gate.Evaluate(request("/v1/auth/me", nil))
	assert.Equal(t, DenySetupRequired, result.Decision)
	assert.Equal(t, http.StatusForbidden, result.StatusCode)
	assert.Empty(t, result.Redirect)

	// Browsers get redirected to setup
	result = gate.Evaluate(request("/v1/auth/me", func(r *http.Request) {
		r.Header.Set("Accept", "text/html,application/xhtml+xml")
	}))
	assert.Equal(t, DenySetupRequired, result.Decision)
	assert.Equal(t, http.StatusFound, result.StatusCode)
	assert.Equal(t, SetupPath, result.Redirect)
}

func TestGate_ConfiguredRequiresValidToken(t *testing.T) {
	gate := NewGate(&fakeAuth{configured: true, validToken: "drm.valid"})

	// Missing token
	result := gate.Evaluate(request("/v1/auth/me", nil))
	assert.Equal(t, DenyUnauthorized, result.Decision)
	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)

	// Wrong token, browser negotiation
	result = gate.Evaluate(request("/v1/auth/me", func(r *http.Request) {
		r.Header.Set(TokenHeader, "drm.stale")
		r.Header.Set("Accept", "text/html")
	}))
	assert.Equal(t, DenyUnauthorized, result.Decision)
	assert.Equal(t, http.StatusFound, result.StatusCode)
	assert.Equal(t, LoginPath, result.Redirect)

	// Valid token allows and is attached to the result
	result = gate.Evaluate(request("/v1/auth/me", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "drm.valid"})
	}))
	assert.Equal(t, Allow, result.Decision)
	assert.Equal(t, "drm.valid", result.Token)

	// Public paths skip token validation entirely
	result = gate.Evaluate(request("/v1/sys/health", nil))
	assert.Equal(t, Allow, result.Decision)
}
