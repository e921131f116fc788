package history

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options configures Open. Only the fields of the selected backend are read.
type Options struct {
	Limit         int
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// Compactor is implemented by backends whose retention is enforced out of band.
type Compactor interface {
	Compact(ctx context.Context) (int64, error)
}

// Open builds the backend named by kind. The closer is never nil.
func Open(ctx context.Context, kind string, opts Options) (Store, io.Closer, error) {
	switch kind {
	case BackendMemory, "":
		s, err := NewMemoryStore(opts.Limit)
		if err != nil {
			return nil, nil, err
		}
		return s, io.NopCloser(nil), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(opts.SQLitePath, opts.Limit)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", opts.RedisAddr, err)
		}
		s, err := NewRedisStore(client, opts.Limit, opts.RedisTTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend: %s", kind)
	}
}
