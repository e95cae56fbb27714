package physical

import (
	"context"

	"github.com/stephnangue/doorman/logger"
)

// Entry is a single storage record.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is the durable storage contract. Keys are slash-separated paths;
// every Put is a whole-record overwrite.
type Backend interface {
	// Put writes the entry, replacing any existing value.
	Put(ctx context.Context, entry *Entry) error

	// Get fetches the entry at key, or nil if it does not exist.
	Get(ctx context.Context, key string) (*Entry, error)

	// Delete removes the entry at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the immediate children under prefix. Sub-prefixes are
	// reported with a trailing slash.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Factory is the factory function to create a storage backend.
type Factory func(conf map[string]string, log logger.Logger) (Backend, error)
