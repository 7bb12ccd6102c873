package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore implements CounterStore on Redis. It is the store to use when
// Sentinel instances run on several hosts.
//
// Increments run as a Lua script so that creating the key, adding to it and
// attaching the TTL happen atomically.
type RedisStore struct {
	client    goredis.Cmdable
	closer    func() error
	keyPrefix string
}

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "sentinel:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedisStore creates a store on an existing client. The client must be a
// connected *goredis.Client or *goredis.ClusterClient. Closing the store
// closes the client.
func NewRedisStore(client goredis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "sentinel:",
	}
	if c, ok := client.(interface{ Close() error }); ok {
		s.closer = c.Close
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RedisStoreConfig configures a store created from an address.
type RedisStoreConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is the Redis AUTH password (optional).
	Password string

	// DB is the Redis logical database.
	DB int

	// KeyPrefix is prepended to every counter key.
	// Default: "sentinel:"
	KeyPrefix string

	// DialTimeout bounds connection establishment.
	// Default: 5 seconds
	DialTimeout time.Duration
}

// NewRedisStoreWithConfig connects to Redis and verifies the connection.
func NewRedisStoreWithConfig(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	var opts []RedisOption
	if cfg.KeyPrefix != "" {
		opts = append(opts, WithKeyPrefix(cfg.KeyPrefix))
	}
	return NewRedisStore(client, opts...), nil
}

// incrementScript atomically adds to a counter and attaches a TTL on creation.
// KEYS[1] = counter key
// ARGV[1] = amount
// ARGV[2] = ttl in milliseconds (0 = none)
var incrementScript = goredis.NewScript(`
local value = redis.call("INCRBY", KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 and redis.call("PTTL", KEYS[1]) == -1 then
    redis.call("PEXPIRE", KEYS[1], ttl)
end
return value
`)

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + k
}

// Increment adds amount to key and returns the new value.
func (s *RedisStore) Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	var ttlMs int64
	if ttl > 0 {
		ttlMs = ttl.Milliseconds()
		if ttlMs == 0 {
			ttlMs = 1
		}
	}

	value, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, amount, ttlMs).Int64()
	if err != nil {
		return 0, fmt.Errorf("sentinel/redis: increment: %w", err)
	}
	return value, nil
}

// Get returns the current value of key.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	value, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sentinel/redis: get: %w", err)
	}
	return value, nil
}

// Decrement subtracts amount from key and returns the new value.
func (s *RedisStore) Decrement(ctx context.Context, key string, amount int64) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	value, err := s.client.DecrBy(ctx, s.key(key), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("sentinel/redis: decrement: %w", err)
	}
	return value, nil
}

// Ping verifies Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client when the store owns one.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
