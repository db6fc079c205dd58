package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	kv, err := NewSQLite(filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	defer kv.Close()

	t.Run("SetGetDelete", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "userEmail", "asha@example.com"))

		val, ok, err := kv.Get(ctx, "userEmail")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "asha@example.com", val)

		require.NoError(t, kv.Delete(ctx, "userEmail"))
		_, ok, err = kv.Get(ctx, "userEmail")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Upsert", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "bookings_x@y.z", "[]"))
		require.NoError(t, kv.Set(ctx, "bookings_x@y.z", `[{"id":"FD_1_a"}]`))

		val, ok, err := kv.Get(ctx, "bookings_x@y.z")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `[{"id":"FD_1_a"}]`, val)
	})

	t.Run("WatchOnWrite", func(t *testing.T) {
		changes := kv.Watch()
		require.NoError(t, kv.Set(ctx, "loginTime", "2026-01-01T00:00:00Z"))
		assert.Equal(t, "loginTime", waitForKey(t, changes))
	})
}

func TestSQLiteInMemory(t *testing.T) {
	kv, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer kv.Close()

	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "k", "v"))
	val, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}
