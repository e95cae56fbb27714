package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stephnangue/doorman/auth/session"
	"github.com/stephnangue/doorman/cred"
	"github.com/stephnangue/doorman/helper"
	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
)

var (
	// ErrAlreadyConfigured is returned if the admin credential already
	// exists. This prevents a re-configuration.
	ErrAlreadyConfigured = errors.New("doorman is already configured")

	// ErrSetupInProgress is returned if another setup call is in flight
	// in this process.
	ErrSetupInProgress = errors.New("setup is already in progress")

	// ErrNotConfigured is returned if an operation requiring an existing
	// credential is invoked before setup.
	ErrNotConfigured = errors.New("doorman is not configured")

	// ErrInvalidCredentials is the single, deliberately generic
	// authentication failure. It is identical whether the service is
	// unconfigured or the password is wrong, so responses cannot be used
	// to probe for account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CoreConfig is used to parameterize a core
type CoreConfig struct {
	Storage physical.Backend
	Logger  logger.Logger

	// SessionConfig tunes the session store; nil means defaults
	SessionConfig *session.Config

	// SessionSecret, when set, is used as the per-installation secret at
	// setup time instead of generating one. It lets cooperating
	// processes share a secret this subsystem never persists on their
	// behalf.
	SessionSecret string
}

// Core gates access to the service: it composes the credential store and
// the session store into the setup, login and authorization operations.
type Core struct {
	logger   logger.Logger
	storage  physical.Backend
	creds    *cred.Store
	sessions *session.Store

	sessionSecret string

	// setupInFlight is the setup guard. It is test-and-set before any
	// suspending step of SetupUser, so two concurrent calls cannot both
	// observe "not configured".
	setupInFlight atomic.Bool
}

// NewCore creates a core and restores the persisted session map
func NewCore(conf *CoreConfig) (*Core, error) {
	if conf.Storage == nil {
		return nil, errors.New("storage backend is required")
	}

	log := conf.Logger
	if log == nil {
		log = logger.NewZerologLogger(logger.DefaultConfig())
	}

	c := &Core{
		logger:        log,
		storage:       conf.Storage,
		creds:         cred.NewStore(conf.Storage, log.WithSubsystem("cred")),
		sessions:      session.NewStore(conf.Storage, log.WithSubsystem("session"), conf.SessionConfig),
		sessionSecret: conf.SessionSecret,
	}

	if err := c.sessions.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to restore session store: %w", err)
	}

	return c, nil
}

// Configured reports whether the admin credential exists. Its existence is
// the service's sole "configured" signal.
func (c *Core) Configured(ctx context.Context) bool {
	configured, err := c.creds.Configured(ctx)
	if err != nil {
		// Fail closed for protected routes, open toward the setup flow
		c.logger.Error("failed to check configuration state", logger.Err(err))
		return false
	}
	return configured
}

// SetupUser performs the one-time credential setup and returns the first
// session token. At most one call can ever succeed.
//
// The in-flight flag only guards this process; the post-hash re-check
// covers external mutation of durable state between the two checks. The
// storage layer has no atomic create-if-absent, so the design assumes a
// single writer process.
func (c *Core) SetupUser(ctx context.Context, password, displayName string) (string, error) {
	// Test-and-set before any suspending step
	if !c.setupInFlight.CompareAndSwap(false, true) {
		return "", ErrSetupInProgress
	}
	defer c.setupInFlight.Store(false)

	if c.Configured(ctx) {
		return "", ErrAlreadyConfigured
	}

	if err := cred.ValidatePassword(password); err != nil {
		return "", err
	}
	name := cred.SanitizeDisplayName(displayName)

	// The expensive, suspending step
	hash, err := cred.HashPassword(password)
	if err != nil {
		return "", err
	}

	// Re-check after the suspension point: the flag does not protect
	// against external mutation of durable state
	if c.Configured(ctx) {
		return "", ErrAlreadyConfigured
	}

	secret := c.sessionSecret
	if secret == "" {
		secret, err = helper.GenerateSessionSecret()
		if err != nil {
			return "", err
		}
	}

	record := &cred.AdminCredential{
		PasswordHash:  hash,
		DisplayName:   name,
		SessionSecret: secret,
		CreatedAt:     time.Now(),
	}
	if err := c.creds.Save(ctx, record); err != nil {
		return "", err
	}

	c.logger.Info("admin credential configured", logger.String("display_name", name))

	return c.sessions.Create(ctx)
}

// Login authenticates the admin password and issues a new session token
func (c *Core) Login(ctx context.Context, password string) (string, error) {
	record, err := c.creds.Load(ctx)
	if err != nil {
		return "", err
	}
	if record == nil || !cred.VerifyPassword(record.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}

	return c.sessions.Create(ctx)
}

// ChangePassword replaces the admin password, revokes every session and
// returns one fresh token for the caller
func (c *Core) ChangePassword(ctx context.Context, oldPassword, newPassword string) (string, error) {
	record, err := c.creds.Load(ctx)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", ErrNotConfigured
	}

	if !cred.VerifyPassword(record.PasswordHash, oldPassword) {
		return "", ErrInvalidCredentials
	}

	if err := cred.ValidatePassword(newPassword); err != nil {
		return "", err
	}

	hash, err := cred.HashPassword(newPassword)
	if err != nil {
		return "", err
	}

	record.PasswordHash = hash
	if err := c.creds.Save(ctx, record); err != nil {
		return "", err
	}

	if err := c.sessions.RevokeAll(ctx); err != nil {
		return "", err
	}

	c.logger.Info("admin password changed, all sessions revoked")

	return c.sessions.Create(ctx)
}

// ValidateToken reports whether the token names a live session. This is
// also the predicate for non-request-response channels such as a
// persistent socket.
func (c *Core) ValidateToken(ctx context.Context, token string) bool {
	return c.sessions.Validate(ctx, token)
}

// RevokeToken removes the session named by token. Best-effort.
func (c *Core) RevokeToken(ctx context.Context, token string) {
	c.sessions.Revoke(ctx, token)
}

// RevokeAll clears the entire session set
func (c *Core) RevokeAll(ctx context.Context) error {
	return c.sessions.RevokeAll(ctx)
}

// CredentialInfo returns the credential metadata. The password hash and
// the session secret never leave the core.
func (c *Core) CredentialInfo(ctx context.Context) (*cred.Info, error) {
	record, err := c.creds.Load(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotConfigured
	}
	return record.Info(), nil
}

// SessionMetrics returns a snapshot of session store counters
func (c *Core) SessionMetrics() map[string]int64 {
	return c.sessions.GetMetrics()
}

// Sessions exposes the session store for tests and composition
func (c *Core) Sessions() *session.Store {
	return c.sessions
}
