package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuthFailureLimiter throttles clients that keep presenting bad credentials for an identity.
// Counters are kept per realm, identity and client address, so failures from one address
// do not lock the account out for everyone else.
type AuthFailureLimiter interface {
	// Blocked reports whether the pair is over the failure limit and how long until the window resets.
	Blocked(ctx context.Context, realm Realm, identity, client string) (bool, time.Duration, error)
	RecordFailure(ctx context.Context, realm Realm, identity, client string) error
}

const authFailurePrefix = "auth:fail:"

var recordFailureScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisAuthFailureLimiter counts denials per realm, identity and client in a fixed window.
type RedisAuthFailureLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisAuthFailureLimiter returns nil when limit <= 0 so callers can skip the option.
func NewRedisAuthFailureLimiter(client *redis.Client, limit int, window time.Duration) *RedisAuthFailureLimiter {
	if client == nil || limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisAuthFailureLimiter{client: client, limit: limit, window: window}
}

func (l *RedisAuthFailureLimiter) Blocked(ctx context.Context, realm Realm, identity, client string) (bool, time.Duration, error) {
	key := authFailureKey(realm, identity, client)
	val, err := l.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return false, 0, err
	}
	if count < l.limit {
		return false, 0, nil
	}
	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return true, l.window, nil
	}
	if ttl <= 0 {
		ttl = l.window
	}
	return true, ttl, nil
}

func (l *RedisAuthFailureLimiter) RecordFailure(ctx context.Context, realm Realm, identity, client string) error {
	return recordFailureScript.Run(ctx, l.client, []string{authFailureKey(realm, identity, client)}, l.window.Milliseconds()).Err()
}

// authFailureKey hashes identity and client so e-mail and IP addresses do not appear in redis keys.
func authFailureKey(realm Realm, identity, client string) string {
	sum := sha256.Sum256([]byte(identity + "\x00" + client))
	return authFailurePrefix + string(realm) + ":" + hex.EncodeToString(sum[:16])
}
