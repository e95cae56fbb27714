package cred

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
	"github.com/stephnangue/doorman/physical/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, physical.Backend) {
	t.Helper()
	log := logger.NewZerologLogger(logger.DefaultConfig())
	backend, err := inmem.NewInmem(nil, log)
	require.NoError(t, err)
	return NewStore(backend, log), backend
}

func TestStore_LoadAbsent(t *testing.T) {
	store, _ := testStore(t)

	record, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, record)

	configured, err := store.Configured(context.Background())
	require.NoError(t, err)
	assert.False(t, configured)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	record := &AdminCredential{
		PasswordHash:  []byte("$2a$10$fakehash"),
		DisplayName:   "Alice",
		SessionSecret: "secret-uuid",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, store.Save(ctx, record))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record.PasswordHash, loaded.PasswordHash)
	assert.Equal(t, "Alice", loaded.DisplayName)
	assert.Equal(t, "secret-uuid", loaded.SessionSecret)
	assert.True(t, record.CreatedAt.Equal(loaded.CreatedAt))

	configured, err := store.Configured(ctx)
	require.NoError(t, err)
	assert.True(t, configured)
}

func TestStore_CorruptRecordReadsAsNotConfigured(t *testing.T) {
	store, backend := testStore(t)
	ctx := context.Background()

	err := backend.Put(ctx, &physical.Entry{Key: "auth/admin", Value: []byte("{not json")})
	require.NoError(t, err)

	record, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestCredentialInfo_HidesSecrets(t *testing.T) {
	record := &AdminCredential{
		PasswordHash:  []byte("hash"),
		DisplayName:   "Alice",
		SessionSecret: "secret",
		CreatedAt:     time.Now(),
	}

	info := record.Info()
	assert.Equal(t, "Alice", info.DisplayName)
	assert.Equal(t, record.CreatedAt, info.CreatedAt)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("goodpass1"))

	err := ValidatePassword("")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	err = ValidatePassword("short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")

	// Byte length, not rune count, bounds the upper limit
	err = ValidatePassword(strings.Repeat("é", 40)) // 80 bytes, 40 runes
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 72 bytes")

	assert.NoError(t, ValidatePassword(strings.Repeat("a", 72)))
	assert.Error(t, ValidatePassword(strings.Repeat("a", 73)))
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("goodpass1")
	require.NoError(t, err)
	assert.NotContains(t, string(hash), "goodpass1")

	assert.True(t, VerifyPassword(hash, "goodpass1"))
	assert.False(t, VerifyPassword(hash, "wrongpass"))
	assert.False(t, VerifyPassword(nil, "goodpass1"))
}

func TestSanitizeDisplayName(t *testing.T) {
	// Invisible characters spelled as escapes so the cases stay
	// readable: U+200B zero width space, U+FEFF BOM, U+202E RTL
	// override, U+2060 word joiner, U+200C zero width non-joiner.
	assert.Equal(t, "Alice", SanitizeDisplayName("  Alice\u200b  "))
	assert.Equal(t, "Alice", SanitizeDisplayName("\uFEFFAlice\u202E"))
	assert.Equal(t, "Bob Smith", SanitizeDisplayName("Bob\a Smith\u2060"))

	// Empty after stripping falls back to the default
	assert.Equal(t, DefaultDisplayName, SanitizeDisplayName("  \u200b\u200c  "))
	assert.Equal(t, DefaultDisplayName, SanitizeDisplayName(""))

	long := strings.Repeat("x", 100)
	assert.Len(t, SanitizeDisplayName(long), MaxDisplayNameLength)
}
