package session

import (
	"context"
	"testing"
	"time"

	"dynasty/internal/kvstore"
	"dynasty/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *kvstore.Memory) {
	t.Helper()
	kv := kvstore.NewMemory()
	t.Cleanup(func() { kv.Close() })
	logger := zerolog.Nop()
	return NewManager(kv, 24*time.Hour, &logger), kv
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		m, kv := newTestManager(t)

		sess, err := m.Login(ctx, "Asha", "asha@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Asha", sess.Name)
		assert.Equal(t, "asha@example.com", sess.Email)
		assert.NotEmpty(t, sess.Token)

		for _, key := range []string{models.KeyUserName, models.KeyUserEmail, models.KeyAuthToken, models.KeyLoginTime} {
			_, ok, _ := kv.Get(ctx, key)
			assert.True(t, ok, "missing %s", key)
		}
	})

	t.Run("NameTooShort", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Login(ctx, "A", "asha@example.com")
		assert.ErrorIs(t, err, ErrNameTooShort)
	})

	t.Run("NameTrimmedBeforeValidation", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Login(ctx, "  A  ", "asha@example.com")
		assert.ErrorIs(t, err, ErrNameTooShort)
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		m, _ := newTestManager(t)
		for _, email := range []string{"", "nope", "a@b", "a b@c.d", "@x.y"} {
			_, err := m.Login(ctx, "Asha", email)
			assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
		}
	})
}

func TestCurrent(t *testing.T) {
	ctx := context.Background()

	t.Run("Unauthenticated", func(t *testing.T) {
		m, _ := newTestManager(t)
		sess, ok := m.Current(ctx)
		assert.False(t, ok)
		assert.Nil(t, sess)
	})

	t.Run("MissingAnyIdentityField", func(t *testing.T) {
		m, kv := newTestManager(t)
		_, err := m.Login(ctx, "Asha", "asha@example.com")
		require.NoError(t, err)

		// Dropping the token alone makes the session unauthenticated.
		require.NoError(t, kv.Delete(ctx, models.KeyAuthToken))
		_, ok := m.Current(ctx)
		assert.False(t, ok)
	})

	t.Run("ActiveSession", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Login(ctx, "Asha", "asha@example.com")
		require.NoError(t, err)

		sess, ok := m.Current(ctx)
		require.True(t, ok)
		assert.Equal(t, "asha@example.com", sess.Email)
		assert.False(t, sess.LoginTime.IsZero())
	})

	t.Run("ExpiredSessionIsCleared", func(t *testing.T) {
		m, kv := newTestManager(t)
		_, err := m.Login(ctx, "Asha", "asha@example.com")
		require.NoError(t, err)

		stale := time.Now().Add(-25 * time.Hour).Format(time.RFC3339)
		require.NoError(t, kv.Set(ctx, models.KeyLoginTime, stale))

		_, ok := m.Current(ctx)
		assert.False(t, ok)

		// Expiry wipes the identity fields.
		_, ok, _ = kv.Get(ctx, models.KeyAuthToken)
		assert.False(t, ok)
	})

	t.Run("MalformedLoginTimeIsCleared", func(t *testing.T) {
		m, kv := newTestManager(t)
		_, err := m.Login(ctx, "Asha", "asha@example.com")
		require.NoError(t, err)

		require.NoError(t, kv.Set(ctx, models.KeyLoginTime, "not-a-time"))
		_, ok := m.Current(ctx)
		assert.False(t, ok)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t)

	_, err := m.Login(ctx, "Asha", "asha@example.com")
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, models.BookingsKey("asha@example.com"), "[]"))

	require.NoError(t, m.Logout(ctx))

	_, ok := m.Current(ctx)
	assert.False(t, ok)

	// Booking partitions survive a plain logout.
	_, ok, _ = kv.Get(ctx, models.BookingsKey("asha@example.com"))
	assert.True(t, ok)
}

func TestPurgeBookings(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t)

	_, err := m.Login(ctx, "Asha", "asha@example.com")
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, models.BookingsKey("asha@example.com"), "[]"))
	require.NoError(t, kv.Set(ctx, models.BookingsKey("other@example.com"), "[]"))

	require.NoError(t, m.PurgeBookings(ctx))

	_, ok, _ := kv.Get(ctx, models.BookingsKey("asha@example.com"))
	assert.False(t, ok)

	// Only the current owner's partition is purged.
	_, ok, _ = kv.Get(ctx, models.BookingsKey("other@example.com"))
	assert.True(t, ok)
}
