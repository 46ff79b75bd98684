package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCleaner(t *testing.T) (*RedisCleaner, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCleaner(client, "testd", nil), mr
}

func TestRedisCleaner(t *testing.T) {
	ctx := context.Background()
	cleaner, mr := newTestCleaner(t)

	require.NoError(t, cleaner.Track(ctx, "users"))
	require.NoError(t, cleaner.Track(ctx, "sessions"))
	require.NoError(t, mr.Set("testd:users:1", "alice"))
	require.NoError(t, mr.Set("testd:users:2", "bob"))
	require.NoError(t, mr.Set("testd:sessions:1", "tok"))

	collections, err := cleaner.ListCollections(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"users", "sessions"}, names)

	require.NoError(t, cleaner.DeleteEntries(ctx, "users"))

	assert.False(t, mr.Exists("testd:users:1"))
	assert.False(t, mr.Exists("testd:users:2"))
	// Other collections are untouched.
	assert.True(t, mr.Exists("testd:sessions:1"))

	collections, err = cleaner.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "sessions", collections[0].Name)
}

func TestRedisCleanerEmptyCollection(t *testing.T) {
	ctx := context.Background()
	cleaner, _ := newTestCleaner(t)

	require.NoError(t, cleaner.Track(ctx, "empty"))
	// No entries under the prefix: deletion still untracks the name.
	require.NoError(t, cleaner.DeleteEntries(ctx, "empty"))

	collections, err := cleaner.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, collections)
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, CheckRedisConnection(client))
}

func TestNewRedisClientBadURL(t *testing.T) {
	_, err := NewRedisClient("not-a-url")
	require.Error(t, err)
}

func TestNoopCleaner(t *testing.T) {
	ctx := context.Background()
	var c NoopCleaner

	collections, err := c.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, collections)
	require.NoError(t, c.DeleteEntries(ctx, "anything"))
}
