package inmem

import (
	"context"
	"strings"
	"sync"

	"github.com/armon/go-radix"
	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
)

// Verify interfaces are satisfied
var _ physical.Backend = (*InmemBackend)(nil)

// InmemBackend is an in-memory only physical backend. It is useful for
// testing and development situations where the data is not expected to be
// durable.
type InmemBackend struct {
	sync.RWMutex
	root   *radix.Tree
	logger logger.Logger
}

// NewInmem constructs a new in-memory backend
func NewInmem(_ map[string]string, log logger.Logger) (physical.Backend, error) {
	return &InmemBackend{
		root:   radix.New(),
		logger: log,
	}, nil
}

// Put is used to insert or update an entry
func (i *InmemBackend) Put(ctx context.Context, entry *physical.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	i.Lock()
	defer i.Unlock()

	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	i.root.Insert(entry.Key, value)
	return nil
}

// Get is used to fetch an entry
func (i *InmemBackend) Get(ctx context.Context, key string) (*physical.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.RLock()
	defer i.RUnlock()

	raw, ok := i.root.Get(key)
	if !ok {
		return nil, nil
	}

	value := raw.([]byte)
	out := make([]byte, len(value))
	copy(out, value)

	return &physical.Entry{
		Key:   key,
		Value: out,
	}, nil
}

// Delete is used to permanently delete an entry
func (i *InmemBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	i.Lock()
	defer i.Unlock()

	i.root.Delete(key)
	return nil
}

// List is used to list all the keys under a given prefix, up to the next
// prefix.
func (i *InmemBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.RLock()
	defer i.RUnlock()

	var out []string
	seen := make(map[string]interface{})
	walkFn := func(s string, v interface{}) bool {
		trimmed := strings.TrimPrefix(s, prefix)
		sep := strings.Index(trimmed, "/")
		if sep == -1 {
			out = append(out, trimmed)
		} else {
			trimmed = trimmed[:sep+1]
			if _, ok := seen[trimmed]; !ok {
				out = append(out, trimmed)
				seen[trimmed] = struct{}{}
			}
		}
		return false
	}
	i.root.WalkPrefix(prefix, walkFn)

	return out, nil
}
