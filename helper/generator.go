package helper

import (
	"crypto/rand"
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/hashicorp/go-uuid"
	"github.com/oklog/ulid"
)

// TokenPrefix marks doorman session tokens so they are recognizable in
// logs and configuration without revealing anything about their contents.
const TokenPrefix = "drm."

// tokenEntropy is the number of base62 characters in a session token,
// roughly 190 bits. Collisions are negligible by construction, so callers
// do not need a uniqueness check.
const tokenEntropy = 32

// GenerateSessionToken returns a new opaque bearer token
func GenerateSessionToken() (string, error) {
	random, err := base62.Random(tokenEntropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate token material: %w", err)
	}
	return TokenPrefix + random, nil
}

// GenerateSessionSecret returns a new per-installation secret
func GenerateSessionSecret() (string, error) {
	secret, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return secret, nil
}

// GenerateRequestID returns a sortable unique request identifier
func GenerateRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
