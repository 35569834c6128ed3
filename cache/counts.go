package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const followerCountKeyPrefix = "basebuzz:followers:"

// FollowerCounts caches the number of followers per user.
// Get reports a miss with found == false. Incr and Decr only touch counts that are cached.
type FollowerCounts interface {
	Get(ctx context.Context, userID int) (count int, found bool, err error)
	Set(ctx context.Context, userID int, count int) error
	Incr(ctx context.Context, userID int) error
	Decr(ctx context.Context, userID int) error
}

// RedisFollowerCounts implements FollowerCounts in Redis.
type RedisFollowerCounts struct {
	client *redis.Client
}

// NewRedisFollowerCounts returns follower counts cached in the given Redis client.
func NewRedisFollowerCounts(client *redis.Client) *RedisFollowerCounts {
	return &RedisFollowerCounts{client: client}
}

func followerCountKey(userID int) string {
	return followerCountKeyPrefix + strconv.Itoa(userID)
}

// Get returns the cached follower count of a user.
func (c *RedisFollowerCounts) Get(ctx context.Context, userID int) (int, bool, error) {
	n, err := c.client.Get(ctx, followerCountKey(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get follower count: %w", err)
	}
	return n, true, nil
}

// Set caches the follower count of a user.
func (c *RedisFollowerCounts) Set(ctx context.Context, userID int, count int) error {
	if err := c.client.Set(ctx, followerCountKey(userID), count, 0).Err(); err != nil {
		return fmt.Errorf("redis set follower count: %w", err)
	}
	return nil
}

// condIncrScript increments the key only if it exists, so a missing count is
// never initialized from a single follow.
var condIncrScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.call("INCR", KEYS[1])
end
return 0
`)

// condDecrScript decrements the key only if it exists and stays non-negative.
var condDecrScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  local val = tonumber(redis.call("GET", KEYS[1]))
  if val and val > 0 then
    return redis.call("DECR", KEYS[1])
  end
end
return 0
`)

// Incr increments a cached follower count.
func (c *RedisFollowerCounts) Incr(ctx context.Context, userID int) error {
	err := condIncrScript.Run(ctx, c.client, []string{followerCountKey(userID)}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis incr follower count: %w", err)
	}
	return nil
}

// Decr decrements a cached follower count.
func (c *RedisFollowerCounts) Decr(ctx context.Context, userID int) error {
	err := condDecrScript.Run(ctx, c.client, []string{followerCountKey(userID)}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis decr follower count: %w", err)
	}
	return nil
}

// NoopFollowerCounts is used when Redis is not configured. Every Get is a miss.
type NoopFollowerCounts struct{}

func (NoopFollowerCounts) Get(context.Context, int) (int, bool, error) { return 0, false, nil }
func (NoopFollowerCounts) Set(context.Context, int, int) error         { return nil }
func (NoopFollowerCounts) Incr(context.Context, int) error             { return nil }
func (NoopFollowerCounts) Decr(context.Context, int) error             { return nil }

var (
	_ FollowerCounts = (*RedisFollowerCounts)(nil)
	_ FollowerCounts = NoopFollowerCounts{}
)
