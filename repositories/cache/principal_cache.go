// Package cache provides a Redis read-through cache in front of the
// principal directory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coursework/calendar/config"
	"github.com/coursework/calendar/models"
	"github.com/coursework/calendar/repositories"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "calendar:principal:"

// CachedDirectory implements repositories.PrincipalDirectory by consulting
// Redis before the underlying directory. Cached records never carry the
// password hash, so it must not back the login path.
type CachedDirectory struct {
	client redis.UniversalClient
	next   repositories.PrincipalDirectory
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedDirectory wraps next with a Redis cache using the given TTL.
func NewCachedDirectory(client redis.UniversalClient, next repositories.PrincipalDirectory, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	return &CachedDirectory{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger,
	}
}

// NewClient creates a Redis client from a redis:// URL.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// FindByEmail returns the cached principal when present, otherwise loads it
// from the underlying directory and caches it. Redis failures are logged and
// fall through to the directory; misses are never cached.
func (c *CachedDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	key := keyPrefix + email

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var user models.User
		if jsonErr := json.Unmarshal(raw, &user); jsonErr == nil {
			return &user, nil
		}
		c.logger.Warn("discarding corrupt principal cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("principal cache read failed", zap.Error(err))
	}

	user, err := c.next.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encode principal: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("principal cache write failed", zap.Error(err))
	}

	return user, nil
}

// Invalidate drops the cached entry for email.
func (c *CachedDirectory) Invalidate(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, keyPrefix+email).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection.
func (c *CachedDirectory) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
