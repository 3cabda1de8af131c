// Package redis provides a Redis Streams backed broker.Broker so that SSE
// streams survive reconnects to a different node.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/netra-systems/zen-sub153/broker"
	"github.com/netra-systems/zen-sub153/internal/jsonrpc"
)

// Broker is a Redis Streams-based implementation of the broker.Broker
// interface. Each namespace is one stream; event ids are stream entry ids.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
	block     time.Duration
}

// Config contains configuration options for the Redis broker.
type Config struct {
	// Client is the Redis client to use. Required.
	Client redis.UniversalClient
	// KeyPrefix is prepended to all Redis keys used by the broker.
	// Defaults to "netra:mcp:broker:" if empty.
	KeyPrefix string
	// MaxLen approximately caps each stream. Defaults to 1000.
	MaxLen int64
	// Block bounds a single XREAD call so context cancellation is observed.
	// Defaults to one second.
	Block time.Duration
}

// New creates a new Redis-based broker instance.
func New(cfg Config) (*Broker, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis broker: client is required")
	}
	b := &Broker{
		client:    cfg.Client,
		keyPrefix: cfg.KeyPrefix,
		maxLen:    cfg.MaxLen,
		block:     cfg.Block,
	}
	if b.keyPrefix == "" {
		b.keyPrefix = "netra:mcp:broker:"
	}
	if b.maxLen <= 0 {
		b.maxLen = 1000
	}
	if b.block <= 0 {
		b.block = time.Second
	}
	return b, nil
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, namespace string, message jsonrpc.Message) (string, error) {
	key := b.streamKey(namespace)
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{"data": []byte(message)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish message to stream %s: %w", key, err)
	}
	return id, nil
}

// Subscribe implements broker.Broker. With an empty lastEventID the stream is
// anchored at the current tail so nothing published after Subscribe returns
// is missed.
func (b *Broker) Subscribe(ctx context.Context, namespace string, lastEventID string) (broker.MessageStream, error) {
	key := b.streamKey(namespace)
	start := lastEventID
	if start == "" {
		last, err := b.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read tail of stream %s: %w", key, err)
		}
		start = "0-0"
		if len(last) == 1 {
			start = last[0].ID
		}
	}
	return &stream{b: b, key: key, cursor: start, done: make(chan struct{})}, nil
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, namespace string) error {
	key := b.streamKey(namespace)
	if err := b.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to cleanup namespace %s: %w", namespace, err)
	}
	return nil
}

func (b *Broker) streamKey(namespace string) string {
	return b.keyPrefix + "stream:" + namespace
}

type stream struct {
	b      *Broker
	key    string
	cursor string

	pending []broker.MessageEnvelope

	closeOnce sync.Once
	done      chan struct{}
}

func (s *stream) Next(ctx context.Context) (broker.MessageEnvelope, error) {
	for len(s.pending) == 0 {
		select {
		case <-s.done:
			return broker.MessageEnvelope{}, io.EOF
		case <-ctx.Done():
			return broker.MessageEnvelope{}, ctx.Err()
		default:
		}

		block := s.b.block
		if dl, ok := ctx.Deadline(); ok {
			if until := time.Until(dl); until < block {
				block = max(until, time.Millisecond)
			}
		}
		res, err := s.b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key, s.cursor},
			Count:   64,
			Block:   block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return broker.MessageEnvelope{}, ctx.Err()
			}
			return broker.MessageEnvelope{}, fmt.Errorf("failed to read from stream %s: %w", s.key, err)
		}
		for _, st := range res {
			for _, msg := range st.Messages {
				s.cursor = msg.ID
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}
				s.pending = append(s.pending, broker.MessageEnvelope{ID: msg.ID, Data: []byte(data)})
			}
		}
	}
	env := s.pending[0]
	s.pending = s.pending[1:]
	return env, nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

var (
	_ broker.Broker        = (*Broker)(nil)
	_ broker.MessageStream = (*stream)(nil)
)
