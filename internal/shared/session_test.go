package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	store := NewSessionStore(client, time.Hour)

	sess, err := store.Create(context.Background(), 7, 3)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, int64(7), sess.UserID)
	assert.Equal(t, int64(3), sess.CompanyID)

	loaded, err := store.Load(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, loaded.Token)
	assert.Equal(t, int64(7), loaded.UserID)
	assert.Equal(t, int64(3), loaded.CompanyID)
}

func TestSessionStoreUnknownToken(t *testing.T) {
	client := newTestRedis(t)
	store := NewSessionStore(client, time.Hour)

	_, err := store.Load(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Load(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStoreDestroy(t *testing.T) {
	client := newTestRedis(t)
	store := NewSessionStore(client, time.Hour)

	sess, err := store.Create(context.Background(), 7, 3)
	require.NoError(t, err)

	require.NoError(t, store.Destroy(context.Background(), sess.Token))
	_, err = store.Load(context.Background(), sess.Token)
	require.ErrorIs(t, err, ErrNotFound)

	// Destroy of a missing token is a no-op.
	require.NoError(t, store.Destroy(context.Background(), sess.Token))
	require.NoError(t, store.Destroy(context.Background(), ""))
}

func TestSessionTokensAreUnique(t *testing.T) {
	client := newTestRedis(t)
	store := NewSessionStore(client, time.Hour)

	seen := make(map[string]bool)
	for range 10 {
		sess, err := store.Create(context.Background(), 1, 1)
		require.NoError(t, err)
		require.False(t, seen[sess.Token])
		seen[sess.Token] = true
	}
}
