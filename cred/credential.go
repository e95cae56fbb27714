package cred

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
)

// adminKey is the storage key of the singleton admin credential record
const adminKey = "auth/admin"

// AdminCredential is the singleton credential record. Its existence is the
// sole signal that the service is configured. The record is only ever
// written whole: created by setup, rewritten by change-password.
type AdminCredential struct {
	PasswordHash  []byte    `json:"password_hash"`
	DisplayName   string    `json:"display_name"`
	SessionSecret string    `json:"session_secret"`
	CreatedAt     time.Time `json:"created_at"`
}

// Info is the externally visible view of the credential record. The hash
// and the session secret never cross this boundary.
type Info struct {
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Info returns the metadata view of the credential
func (c *AdminCredential) Info() *Info {
	return &Info{
		DisplayName: c.DisplayName,
		CreatedAt:   c.CreatedAt,
	}
}

// Store persists the admin credential record
type Store struct {
	storage physical.Backend
	logger  logger.Logger
}

// NewStore creates a credential store on the given backend
func NewStore(storage physical.Backend, log logger.Logger) *Store {
	return &Store{
		storage: storage,
		logger:  log,
	}
}

// Load reads the credential record. A missing record returns (nil, nil).
// A corrupt record is treated the same as a missing one: fail-closed for
// protected routes, fail-open only toward the setup flow.
func (s *Store) Load(ctx context.Context) (*AdminCredential, error) {
	entry, err := s.storage.Get(ctx, adminKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential record: %w", err)
	}
	if entry == nil {
		return nil, nil
	}

	var record AdminCredential
	if err := json.Unmarshal(entry.Value, &record); err != nil {
		s.logger.Warn("credential record is corrupt, treating as not configured",
			logger.Err(err))
		return nil, nil
	}

	return &record, nil
}

// Save writes the credential record as a whole-record overwrite
func (s *Store) Save(ctx context.Context, record *AdminCredential) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal credential record: %w", err)
	}

	entry := &physical.Entry{
		Key:   adminKey,
		Value: data,
	}

	if err := s.storage.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to write credential record: %w", err)
	}

	return nil
}

// Configured reports whether an admin credential exists
func (s *Store) Configured(ctx context.Context) (bool, error) {
	record, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}
