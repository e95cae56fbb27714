package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stephnangue/doorman/helper"
	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
)

// sessionsKey is the storage key of the persisted session map
const sessionsKey = "auth/sessions"

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token has expired")
)

// Config holds configuration for the session store
type Config struct {
	// MaxSessions caps the number of live sessions. When a new session
	// would exceed the cap, the least-recently-used sessions are evicted.
	MaxSessions int

	// TTL is the maximum session age. Sessions older than this never
	// validate, regardless of recent use.
	TTL time.Duration

	// FlushInterval bounds how stale the persisted last-used timestamp of
	// a session may be. Membership changes always flush immediately;
	// last-used bookkeeping flushes at most once per interval per session.
	FlushInterval time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		MaxSessions:   20,
		TTL:           720 * time.Hour,
		FlushInterval: 60 * time.Second,
	}
}

// Session is the in-memory session record. The store owns it exclusively.
type Session struct {
	Token      string
	CreatedAt  time.Time
	LastUsedAt time.Time

	// lastFlushedAt tracks when this session's LastUsedAt last reached
	// durable storage. In-memory only.
	lastFlushedAt time.Time

	// seq is the insertion order, used to break eviction ties.
	seq uint64
}

// storedSession is the persisted form of a session
type storedSession struct {
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Metrics tracks operational counters. Guarded by the store mutex.
type Metrics struct {
	TokensCreated   int64
	TokensValidated int64
	TokensExpired   int64
	TokensEvicted   int64
	TokensRevoked   int64
}

// Store is the authoritative in-process session store. The in-memory map
// is the single source of truth; the storage backend is persistence only,
// reloaded once at process start via Load.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nextSeq  uint64

	storage physical.Backend
	config  *Config
	logger  logger.Logger
	metrics Metrics

	// now is the clock, injectable for tests
	now func() time.Time
}

// NewStore creates a session store on the given backend
func NewStore(storage physical.Backend, log logger.Logger, config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}

	return &Store{
		sessions: make(map[string]*Session),
		storage:  storage,
		config:   config,
		logger:   log,
		now:      time.Now,
	}
}

// SetClock replaces the store's clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load restores the persisted session map. Called once at process start.
// A corrupt record starts the store empty rather than failing startup.
func (s *Store) Load(ctx context.Context) error {
	entry, err := s.storage.Get(ctx, sessionsKey)
	if err != nil {
		return fmt.Errorf("failed to read session record: %w", err)
	}
	if entry == nil {
		return nil
	}

	var stored map[string]storedSession
	if err := json.Unmarshal(entry.Value, &stored); err != nil {
		s.logger.Warn("session record is corrupt, starting empty", logger.Err(err))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := make([]string, 0, len(stored))
	for token := range stored {
		tokens = append(tokens, token)
	}
	// Re-derive insertion order from creation time so eviction tie-breaks
	// survive a restart.
	sort.Slice(tokens, func(a, b int) bool {
		return stored[tokens[a]].CreatedAt.Before(stored[tokens[b]].CreatedAt)
	})

	for _, token := range tokens {
		rec := stored[token]
		s.nextSeq++
		s.sessions[token] = &Session{
			Token:         token,
			CreatedAt:     rec.CreatedAt,
			LastUsedAt:    rec.LastUsedAt,
			lastFlushedAt: rec.LastUsedAt,
			seq:           s.nextSeq,
		}
	}

	s.logger.Info("session store loaded", logger.Int("sessions", len(s.sessions)))
	return nil
}

// Create issues a new session token. Expired sessions are pruned first;
// if the store is still at capacity, the least-recently-used sessions are
// evicted to make exactly enough room. The membership change is flushed
// before the token is returned.
func (s *Store) Create(ctx context.Context) (string, error) {
	token, err := helper.GenerateSessionToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	s.evictLocked(s.config.MaxSessions - 1)

	s.nextSeq++
	s.sessions[token] = &Session{
		Token:      token,
		CreatedAt:  now,
		LastUsedAt: now,
		seq:        s.nextSeq,
	}

	if err := s.flushLocked(ctx); err != nil {
		// Keep memory and disk membership consistent
		delete(s.sessions, token)
		return "", fmt.Errorf("failed to persist session: %w", err)
	}

	s.metrics.TokensCreated++
	s.logger.Debug("session created",
		logger.String("token_id", token),
		logger.Int("sessions", len(s.sessions)))

	return token, nil
}

// Validate reports whether the token names a live session. A successful
// validation updates the in-memory last-used timestamp immediately and
// flushes it to storage only when the flush interval has elapsed, bounding
// disk writes under high-frequency polling.
func (s *Store) Validate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		s.logger.Trace("token rejected",
			logger.Err(ErrTokenNotFound),
			logger.String("request_id", middleware.GetReqID(ctx)))
		return false
	}

	now := s.now()
	if now.Sub(sess.CreatedAt) > s.config.TTL {
		delete(s.sessions, token)
		s.metrics.TokensExpired++
		s.logger.Debug("session expired",
			logger.Err(ErrTokenExpired),
			logger.String("token_id", token),
			logger.Time("created_at", sess.CreatedAt),
			logger.String("request_id", middleware.GetReqID(ctx)))
		// Membership changed: flush, but an expired token stays invalid
		// even if the flush fails.
		if err := s.flushLocked(ctx); err != nil {
			s.logger.Error("failed to flush expired session removal", logger.Err(err))
		}
		return false
	}

	sess.LastUsedAt = now

	if now.Sub(sess.lastFlushedAt) > s.config.FlushInterval {
		if err := s.flushLocked(ctx); err != nil {
			// Throttled bookkeeping write: the request is still
			// authenticated, the persisted timestamp just stays stale.
			s.logger.Warn("failed to flush session usage", logger.Err(err))
		}
	}

	s.metrics.TokensValidated++
	return true
}

// Revoke removes the session if present. Revocation is best-effort: flush
// failures are logged, never surfaced, but the in-memory removal always
// happens.
func (s *Store) Revoke(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return
	}

	delete(s.sessions, token)
	s.metrics.TokensRevoked++

	if err := s.flushLocked(ctx); err != nil {
		s.logger.Error("failed to flush session revocation",
			logger.String("token_id", token),
			logger.Err(err))
	}
}

// RevokeAll clears the entire session set and flushes. Used after a
// credential change to force re-authentication everywhere.
func (s *Store) RevokeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := len(s.sessions)
	s.sessions = make(map[string]*Session)

	if err := s.flushLocked(ctx); err != nil {
		return fmt.Errorf("failed to persist session revocation: %w", err)
	}

	s.metrics.TokensRevoked += int64(revoked)
	s.logger.Info("all sessions revoked", logger.Int("count", revoked))
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// GetMetrics returns a snapshot of operational counters
func (s *Store) GetMetrics() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int64{
		"tokens_created":   s.metrics.TokensCreated,
		"tokens_validated": s.metrics.TokensValidated,
		"tokens_expired":   s.metrics.TokensExpired,
		"tokens_evicted":   s.metrics.TokensEvicted,
		"tokens_revoked":   s.metrics.TokensRevoked,
	}
}

// pruneLocked removes every session older than the TTL
func (s *Store) pruneLocked(now time.Time) {
	for token, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > s.config.TTL {
			delete(s.sessions, token)
			s.metrics.TokensExpired++
		}
	}
}

// evictLocked removes least-recently-used sessions until at most limit
// remain. Ties on LastUsedAt fall back to insertion order.
func (s *Store) evictLocked(limit int) {
	if limit < 0 {
		limit = 0
	}
	if len(s.sessions) <= limit {
		return
	}

	ordered := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		ordered = append(ordered, sess)
	}
	sort.Slice(ordered, func(a, b int) bool {
		if ordered[a].LastUsedAt.Equal(ordered[b].LastUsedAt) {
			return ordered[a].seq < ordered[b].seq
		}
		return ordered[a].LastUsedAt.Before(ordered[b].LastUsedAt)
	})

	for _, sess := range ordered[:len(ordered)-limit] {
		delete(s.sessions, sess.Token)
		s.metrics.TokensEvicted++
		s.logger.Debug("session evicted",
			logger.String("token_id", sess.Token),
			logger.Time("last_used_at", sess.LastUsedAt))
	}
}

// flushLocked persists the whole session map as one record. On success,
// every session's flush marker advances, since the persisted record now
// carries its current LastUsedAt.
func (s *Store) flushLocked(ctx context.Context) error {
	stored := make(map[string]storedSession, len(s.sessions))
	for token, sess := range s.sessions {
		stored[token] = storedSession{
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
		}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	entry := &physical.Entry{
		Key:   sessionsKey,
		Value: data,
	}
	if err := s.storage.Put(ctx, entry); err != nil {
		return err
	}

	now := s.now()
	for _, sess := range s.sessions {
		sess.lastFlushedAt = now
	}
	return nil
}
