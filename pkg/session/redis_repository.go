package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository using Redis. It suits
// deployments where the proxy runs on more than one node.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "higherself:chat:").
	Prefix string
	// TTL is the snapshot expiry duration (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisRepository creates a Redis-backed repository.
func NewRedisRepository(cfg RedisConfig) (*RedisRepository, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "higherself:chat:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisRepository{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
	}, nil
}

// NewRedisRepositoryFromClient creates a repository from an existing
// client. This is useful for testing with miniredis.
func NewRedisRepositoryFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "higherself:chat:"
	}
	return &RedisRepository{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// The collection and the current-session reference live under two
// distinct keys, mirroring the persisted state layout of the client.
func (r *RedisRepository) sessionsKey() string {
	return r.prefix + "sessions"
}

func (r *RedisRepository) currentKey() string {
	return r.prefix + "current"
}

// Load retrieves the last saved snapshot.
func (r *RedisRepository) Load(ctx context.Context) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepositoryClosed
	}

	snap := &Snapshot{}

	data, err := r.client.Get(ctx, r.sessionsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return snap, nil
		}
		return nil, fmt.Errorf("redis get sessions: %w", err)
	}

	var sessions []*Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	snap.Sessions = sessions

	current, err := r.client.Get(ctx, r.currentKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get current: %w", err)
	}
	snap.CurrentID = current

	return snap, nil
}

// Save persists the snapshot under the two repository keys.
func (r *RedisRepository) Save(ctx context.Context, snap *Snapshot) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRepositoryClosed
	}

	data, err := json.Marshal(snap.Sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionsKey(), data, r.ttl)
	pipe.Set(ctx, r.currentKey(), snap.CurrentID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save snapshot: %w", err)
	}

	return nil
}

// Close releases the client connection pool.
func (r *RedisRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
