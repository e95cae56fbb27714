package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFileBackend(t *testing.T) (physical.Backend, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := NewFileBackend(map[string]string{"path": dir}, logger.NewZerologLogger(logger.DefaultConfig()))
	require.NoError(t, err)
	return b, dir
}

func TestFileBackend_RequiresPath(t *testing.T) {
	_, err := NewFileBackend(map[string]string{}, logger.NewZerologLogger(logger.DefaultConfig()))
	require.Error(t, err)
}

func TestFileBackend_PutGetDelete(t *testing.T) {
	b, dir := testFileBackend(t)
	ctx := context.Background()

	entry, err := b.Get(ctx, "auth/admin")
	require.NoError(t, err)
	assert.Nil(t, entry)

	err = b.Put(ctx, &physical.Entry{Key: "auth/admin", Value: []byte(`{"name":"x"}`)})
	require.NoError(t, err)

	// Parent directory is created on first write
	_, err = os.Stat(filepath.Join(dir, "auth", "_admin.json"))
	require.NoError(t, err)

	entry, err = b.Get(ctx, "auth/admin")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte(`{"name":"x"}`), entry.Value)

	require.NoError(t, b.Delete(ctx, "auth/admin"))
	entry, err = b.Get(ctx, "auth/admin")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, b.Delete(ctx, "auth/admin"))
}

func TestFileBackend_PutOverwritesWholeRecord(t *testing.T) {
	b, _ := testFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/sessions", Value: []byte("first record")}))
	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/sessions", Value: []byte("v2")}))

	entry, err := b.Get(ctx, "auth/sessions")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), entry.Value)
}

func TestFileBackend_List(t *testing.T) {
	b, _ := testFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/admin", Value: []byte("a")}))
	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/sessions", Value: []byte("s")}))
	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/sub/key", Value: []byte("k")}))

	keys, err := b.List(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "sessions", "sub/"}, keys)

	keys, err = b.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileBackend_RejectsTraversalKeys(t *testing.T) {
	b, _ := testFileBackend(t)
	ctx := context.Background()

	err := b.Put(ctx, &physical.Entry{Key: "../escape", Value: []byte("x")})
	require.Error(t, err)

	_, err = b.Get(ctx, "/absolute")
	require.Error(t, err)
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	b, dir := testFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/admin", Value: []byte("durable")}))

	reopened, err := NewFileBackend(map[string]string{"path": dir}, logger.NewZerologLogger(logger.DefaultConfig()))
	require.NoError(t, err)

	entry, err := reopened.Get(ctx, "auth/admin")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("durable"), entry.Value)
}
