package cred

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum password length in characters
	MinPasswordLength = 8

	// MaxPasswordBytes is the bcrypt effective input limit. Enforced by
	// byte length, not character count, so multi-byte text is rejected
	// rather than silently truncated by the hash.
	MaxPasswordBytes = 72

	// MaxDisplayNameLength is the display name cap in runes
	MaxDisplayNameLength = 64

	// DefaultDisplayName is used when sanitization leaves nothing
	DefaultDisplayName = "Admin"
)

// ValidationError reports a user-correctable input problem. The message
// names the failing rule; it never depends on the stored credential, so it
// cannot leak account state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidatePassword checks a candidate password against the policy
func ValidatePassword(password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &ValidationError{
			Field:  "password",
			Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}
	}
	if len(password) > MaxPasswordBytes {
		return &ValidationError{
			Field:  "password",
			Reason: fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes),
		}
	}
	return nil
}

// HashPassword derives the stored hash from a password. This is the
// deliberately expensive step; its cost is the implicit rate limiter
// against brute-force guessing.
func HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches the stored hash
func VerifyPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// SanitizeDisplayName trims and strips control, zero-width and
// bidirectional-override characters, caps the result, and falls back to
// DefaultDisplayName if nothing printable remains.
func SanitizeDisplayName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case r >= 0x200B && r <= 0x200D: // zero-width space, ZWNJ, ZWJ
			return -1
		case r >= 0x202A && r <= 0x202E: // bidi embeddings and overrides
			return -1
		case r >= 0x2066 && r <= 0x2069: // bidi isolates
			return -1
		case r == 0x2060: // word joiner
			return -1
		case r == 0xFEFF: // byte-order mark
			return -1
		}
		return r
	}, name)

	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > MaxDisplayNameLength {
		cleaned = strings.TrimSpace(string(runes[:MaxDisplayNameLength]))
	}

	if cleaned == "" {
		return DefaultDisplayName
	}
	return cleaned
}
