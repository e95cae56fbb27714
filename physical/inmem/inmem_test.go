package inmem

import (
	"context"
	"testing"

	"github.com/stephnangue/doorman/logger"
	"github.com/stephnangue/doorman/physical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBackend(t *testing.T) physical.Backend {
	t.Helper()
	b, err := NewInmem(nil, logger.NewZerologLogger(logger.DefaultConfig()))
	require.NoError(t, err)
	return b
}

func TestInmemBackend_PutGetDelete(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	entry, err := b.Get(ctx, "auth/admin")
	require.NoError(t, err)
	assert.Nil(t, entry)

	err = b.Put(ctx, &physical.Entry{Key: "auth/admin", Value: []byte("record")})
	require.NoError(t, err)

	entry, err = b.Get(ctx, "auth/admin")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("record"), entry.Value)

	// Overwrite replaces the whole value
	err = b.Put(ctx, &physical.Entry{Key: "auth/admin", Value: []byte("v2")})
	require.NoError(t, err)
	entry, err = b.Get(ctx, "auth/admin")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), entry.Value)

	require.NoError(t, b.Delete(ctx, "auth/admin"))
	entry, err = b.Get(ctx, "auth/admin")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Deleting a missing key is not an error
	require.NoError(t, b.Delete(ctx, "auth/admin"))
}

func TestInmemBackend_List(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/admin", Value: []byte("a")}))
	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/sessions", Value: []byte("s")}))
	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "auth/sub/key", Value: []byte("k")}))

	keys, err := b.List(ctx, "auth/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"admin", "sessions", "sub/"}, keys)
}

func TestInmemBackend_GetReturnsCopy(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, &physical.Entry{Key: "k", Value: []byte("abc")}))

	entry, err := b.Get(ctx, "k")
	require.NoError(t, err)
	entry.Value[0] = 'z'

	again, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Value)
}
