package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the session store.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// RedisStore implements Store on a Redis hash per key: field "v" holds the
// version, field "data" the serialized session. Compare-and-put runs as a Lua
// script so the version check and write are atomic.
type RedisStore struct {
	client *redis.Client
}

var casScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'v')
if not v then
  return -1
end
if v ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'v', v + 1, 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the stored value and version, or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	res, err := r.client.HMGet(ctx, key, "v", "data").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(res) != 2 || res[0] == nil || res[1] == nil {
		return nil, 0, ErrNotFound
	}
	var version int64
	if s, ok := res[0].(string); ok {
		if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
			return nil, 0, fmt.Errorf("redis get %s: bad version %q", key, s)
		}
	}
	data, ok := res[1].(string)
	if !ok {
		return nil, 0, fmt.Errorf("redis get %s: unexpected data type %T", key, res[1])
	}
	return []byte(data), version, nil
}

// Put creates or replaces the value, resetting its version to 1.
func (r *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "v", 1, "data", value)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// CompareAndPut writes only if the stored version matches expectedVersion.
func (r *RedisStore) CompareAndPut(ctx context.Context, key string, value []byte, expectedVersion int64, ttl time.Duration) error {
	res, err := casScript.Run(ctx, r.client,
		[]string{key},
		expectedVersion, value, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis cas %s: %w", key, err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrVersionConflict
	default:
		return ErrNotFound
	}
}

// Delete removes the key; deleting a missing key is not an error.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
