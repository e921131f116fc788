package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a capped Redis list of JSON-encoded turns.
type RedisStore struct {
	client *redis.Client
	limit  int
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl keeps lists forever.
func NewRedisStore(client *redis.Client, limit int, ttl time.Duration) (*RedisStore, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{client: client, limit: limit, ttl: ttl}, nil
}

func redisKey(sessionID string) string { return "history:" + sessionID }

func (s *RedisStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	val, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	key := redisKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, val)
		pipe.LTrim(ctx, key, int64(-s.limit), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	n := clampLimit(limit, s.limit)
	vals, err := s.client.LRange(ctx, redisKey(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	out := make([]Turn, 0, len(vals))
	for _, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
