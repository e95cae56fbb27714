package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
)

// Verify interfaces are satisfied
var _ physical.Backend = (*FileBackend)(nil)

// FileBackendConfig is the decoded configuration for the file backend
type FileBackendConfig struct {
	// Path is the root directory where entries are stored
	Path string `mapstructure:"path"`
}

// FileBackend is a physical backend that stores each entry as a JSON file
// under a root directory. Writes go to a temporary file first and are
// renamed into place, so an entry on disk is always a complete record.
// Parent directories are created on first write.
type FileBackend struct {
	sync.RWMutex
	path   string
	logger logger.Logger
}

type fileEntry struct {
	Value []byte `json:"value"`
}

// NewFileBackend constructs a file backend rooted at the configured path
func NewFileBackend(conf map[string]string, log logger.Logger) (physical.Backend, error) {
	var cfg FileBackendConfig
	if err := mapstructure.Decode(conf, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode file backend config: %w", err)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("'path' must be set for the file backend")
	}

	return &FileBackend{
		path:   cfg.Path,
		logger: log,
	}, nil
}

// entryPath maps a storage key to its on-disk location. The final path
// element gets an underscore prefix so that a key can never collide with
// the directory of its own sub-keys.
func (b *FileBackend) entryPath(key string) (string, string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", "", fmt.Errorf("invalid key %q", key)
	}

	path := filepath.Join(b.path, filepath.Dir(key))
	name := "_" + filepath.Base(key) + ".json"
	return path, filepath.Join(path, name), nil
}

// Put is used to insert or update an entry
func (b *FileBackend) Put(ctx context.Context, entry *physical.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, fullPath, err := b.entryPath(entry.Key)
	if err != nil {
		return err
	}

	b.Lock()
	defer b.Unlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}

	data, err := json.Marshal(&fileEntry{Value: entry.Value})
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move entry into place: %w", err)
	}

	return nil
}

// Get is used to fetch an entry
func (b *FileBackend) Get(ctx context.Context, key string) (*physical.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, fullPath, err := b.entryPath(key)
	if err != nil {
		return nil, err
	}

	b.RLock()
	defer b.RUnlock()

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}

	var stored fileEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode entry at %q: %w", key, err)
	}

	return &physical.Entry{
		Key:   key,
		Value: stored.Value,
	}, nil
}

// Delete is used to permanently delete an entry
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, fullPath, err := b.entryPath(key)
	if err != nil {
		return err
	}

	b.Lock()
	defer b.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	return nil
}

// List is used to list all the keys under a given prefix, up to the next
// prefix.
func (b *FileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.Contains(prefix, "..") {
		return nil, fmt.Errorf("invalid prefix %q", prefix)
	}

	b.RLock()
	defer b.RUnlock()

	path := filepath.Join(b.path, prefix)
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			out = append(out, name+"/")
			continue
		}
		if strings.HasPrefix(name, "_") && strings.HasSuffix(name, ".json") {
			out = append(out, strings.TrimSuffix(strings.TrimPrefix(name, "_"), ".json"))
		}
	}
	sort.Strings(out)

	return out, nil
}
