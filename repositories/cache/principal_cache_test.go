package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/coursework/calendar/models"
	"github.com/coursework/calendar/repositories"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingDirectory struct {
	mu    sync.Mutex
	users map[string]*models.User
	calls int
}

func (d *countingDirectory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if u, ok := d.users[email]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, repositories.ErrNotFound
}

func newDirectory() *countingDirectory {
	admin := models.NewUser("admin@system.local", "admin", "$2a$10$secret", models.RoleAdmin)
	return &countingDirectory{users: map[string]*models.User{admin.Email: admin}}
}

// setupTestRedis returns a client for REDIS_ADDR or skips the test.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupTestRedis(t)
	ctx := context.Background()

	dir := newDirectory()
	cached := NewCachedDirectory(client, dir, time.Minute, zap.NewNop())
	require.NoError(t, cached.Invalidate(ctx, "admin@system.local"))

	first, err := cached.FindByEmail(ctx, "admin@system.local")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Role)

	second, err := cached.FindByEmail(ctx, "admin@system.local")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, dir.calls, "second lookup should be served from redis")
	assert.Empty(t, second.PasswordHash, "cached principals never carry the hash")

	ttl := client.TTL(ctx, keyPrefix+"admin@system.local").Val()
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	require.NoError(t, cached.Invalidate(ctx, "admin@system.local"))
}

func TestCachedDirectory_MissIsNotCached(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupTestRedis(t)
	ctx := context.Background()

	dir := newDirectory()
	cached := NewCachedDirectory(client, dir, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := cached.FindByEmail(ctx, "ghost@system.local")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	}
	assert.Equal(t, 2, dir.calls)
}

func TestCachedDirectory_FallsThroughWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	dir := newDirectory()
	cached := NewCachedDirectory(client, dir, time.Minute, zap.NewNop())

	user, err := cached.FindByEmail(context.Background(), "admin@system.local")
	require.NoError(t, err)
	assert.Equal(t, "admin@system.local", user.Email)
	assert.Equal(t, 1, dir.calls)

	_, err = cached.FindByEmail(context.Background(), "ghost@system.local")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
