package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL       = 24 * time.Hour
	defaultKeyPrefix = "chat:presence:"
)

// RedisStore keeps one Redis set of connection ids per username. Each claim
// refreshes the key TTL so claims left behind by a crashed process expire.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

type redisConfig struct {
	opts      redis.Options
	ttl       time.Duration
	keyPrefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

// WithRedisAddr sets the host:port of the Redis server.
func WithRedisAddr(addr string) RedisOption {
	return func(c *redisConfig) { c.opts.Addr = addr }
}

// WithRedisPassword sets the Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(c *redisConfig) { c.opts.Password = password }
}

// WithRedisDB selects the Redis database.
func WithRedisDB(db int) RedisOption {
	return func(c *redisConfig) { c.opts.DB = db }
}

// WithTTL sets how long a username stays claimed without activity.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the prefix of every presence key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) { c.keyPrefix = prefix }
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(ctx context.Context, opts ...RedisOption) (*RedisStore, error) {
	cfg := redisConfig{
		opts:      redis.Options{Addr: "localhost:6379"},
		ttl:       defaultTTL,
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&cfg.opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.opts.Addr, err)
	}

	return &RedisStore{
		client:    client,
		ttl:       cfg.ttl,
		keyPrefix: cfg.keyPrefix,
	}, nil
}

func (s *RedisStore) key(username string) string {
	return s.keyPrefix + normalize(username)
}

func (s *RedisStore) Claim(ctx context.Context, username, connID string) error {
	key := s.key(username)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("claim %q: %w", username, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, username, connID string) error {
	if err := s.client.SRem(ctx, s.key(username), connID).Err(); err != nil {
		return fmt.Errorf("release %q: %w", username, err)
	}
	return nil
}

func (s *RedisStore) IsActive(ctx context.Context, username string) (bool, error) {
	n, err := s.client.SCard(ctx, s.key(username)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w", username, err)
	}
	return n > 0, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
