package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisConfig contains configuration options for a RedisSink.
type RedisConfig struct {
	// Client is the Redis client instance
	Client redis.UniversalClient

	// Key is the Redis list the records are pushed onto.
	Key string

	// MaxLen bounds the list; older records are trimmed after every push.
	// Default: DefaultCapacity
	MaxLen int64

	Logger *slog.Logger
}

// RedisSink pushes JSON-encoded records onto a capped Redis list, newest
// first. Write failures are logged and otherwise ignored.
type RedisSink[T any] struct {
	client redis.UniversalClient
	key    string
	maxLen int64
	log    *slog.Logger
}

// NewRedisSink creates a sink from cfg.
func NewRedisSink[T any](cfg RedisConfig) (*RedisSink[T], error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RedisSink[T]{client: cfg.Client, key: cfg.Key, maxLen: cfg.MaxLen, log: cfg.Logger}, nil
}

// Record implements Recorder.
func (s *RedisSink[T]) Record(ctx context.Context, rec T) {
	b, err := json.Marshal(rec)
	if err != nil {
		s.log.WarnContext(ctx, "history.redis.marshal.fail", slog.String("key", s.key), slog.String("err", err.Error()))
		return
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, b)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WarnContext(ctx, "history.redis.push.fail", slog.String("key", s.key), slog.String("err", err.Error()))
	}
}

// Recent returns up to n records, newest first.
func (s *RedisSink[T]) Recent(ctx context.Context, n int64) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		var rec T
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Clear deletes the backing list.
func (s *RedisSink[T]) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
