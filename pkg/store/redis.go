package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a Redis store.
type RedisConfig struct {
	// Namespace is prepended to every key and scopes Keys.
	Namespace string
	// ScanBatchSize is the COUNT hint passed to SCAN.
	ScanBatchSize int64
	// TTL applied to written keys. Zero means no expiration.
	TTL time.Duration
}

// Redis stores string values in Redis.
type Redis struct {
	db  redis.UniversalClient
	cfg RedisConfig
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.ScanBatchSize <= 0 {
		cfg.ScanBatchSize = 1000
	}
	return &Redis{db: client, cfg: cfg}
}

// ConnectRedis parses a redis:// URL, dials and pings the server, retrying the
// ping up to retries times.
func ConnectRedis(ctx context.Context, url string, retries int, interval time.Duration) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if retries < 1 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		if i == retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("ping redis: %w", err)
}

func (r *Redis) key(k string) string {
	return r.cfg.Namespace + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.db.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key string, value string) error {
	return r.db.Set(ctx, r.key(key), value, r.cfg.TTL).Err()
}

func (r *Redis) Contains(ctx context.Context, key string) (bool, error) {
	n, err := r.db.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.db.Del(ctx, r.key(key)).Err()
}

// Keys scans the namespace with SCAN so large keyspaces do not block the server.
// Returned keys have the namespace stripped.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := r.cfg.Namespace + "*"
	for {
		batch, next, err := r.db.Scan(ctx, cursor, match, r.cfg.ScanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, r.cfg.Namespace))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Ping reports whether the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.db.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.db.Close()
}

var _ Store[string] = (*Redis)(nil)
