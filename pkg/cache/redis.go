package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only when it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisCache implements Service on Redis. Locks are SET NX leases carrying a
// per-process token so a lease that expired and was retaken is not released.
type RedisCache struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

var _ Service = (*RedisCache)(nil)

// RedisOption adjusts the go-redis client options or the key prefix.
type RedisOption func(*redisSettings)

type redisSettings struct {
	host   string
	port   int
	prefix string
	opts   redis.Options
}

func WithRedisHost(host string) RedisOption {
	return func(s *redisSettings) {
		if host != "" {
			s.host = host
		}
	}
}

func WithRedisPort(port int) RedisOption {
	return func(s *redisSettings) {
		if port > 0 {
			s.port = port
		}
	}
}

func WithRedisPassword(password string) RedisOption {
	return func(s *redisSettings) { s.opts.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(s *redisSettings) { s.opts.DB = db }
}

func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(s *redisSettings) {
		s.opts.PoolSize = size
		s.opts.MinIdleConns = minIdle
		s.opts.PoolTimeout = timeout
	}
}

// WithRedisPrefix namespaces every key, so several deployments can share
// one Redis database.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *redisSettings) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisCache connects and pings; an unreachable server is an error.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	s := redisSettings{
		host:   "localhost",
		port:   6379,
		prefix: "finsense",
		opts:   redis.Options{PoolSize: 10, MinIdleConns: 2, PoolTimeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.opts.Addr = net.JoinHostPort(s.host, strconv.Itoa(s.port))
	client := redis.NewClient(&s.opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", s.opts.Addr, err)
	}
	return &RedisCache{client: client, prefix: s.prefix, tokens: make(map[string]string)}, nil
}

// Client exposes the underlying client for the job queue.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set stores value encoded; expiration 0 keeps it until deleted.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.wrapKey(key), data, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.wrapKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return decode(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Unlink(ctx, c.wrapKeys(keys...)...).Err()
}

func (c *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	n, err := c.client.Exists(ctx, c.wrapKeys(keys...)...).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.wrapKey(key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()
	return true, nil
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return unlockScript.Run(ctx, c.client, []string{c.wrapKey(key)}, token).Err()
}

func (c *RedisCache) wrapKey(key string) string {
	return Key(c.prefix, key)
}

func (c *RedisCache) wrapKeys(keys ...string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.wrapKey(key))
	}
	return out
}
