package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrScript bumps the counter and sets the expiry only on a new key, in one
// round trip so concurrent callers never share a count.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisStorage shares limiter counters between instances.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) key(k string) string {
	if s.prefix == "" {
		return "ratelimit:" + k
	}
	return strings.Join([]string{s.prefix, "ratelimit", k}, ":")
}

func (s *RedisStorage) Incr(ctx context.Context, key string, ttl time.Duration) (int, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{s.key(key)}, ttl.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	n, ok1 := res[0].(int64)
	pttl, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	if pttl < 0 {
		pttl = 0
	}
	return int(n), time.Duration(pttl) * time.Millisecond, nil
}

func (s *RedisStorage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.PExpire(ctx, s.key(key), ttl).Err()
}

func (s *RedisStorage) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
