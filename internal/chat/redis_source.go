package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// RedisSource receives push events from Redis pub/sub, where the business
// API's broadcaster publishes them.
type RedisSource struct {
	client *redis.Client
	pubsub *redis.PubSub
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	newBackOff func() backoff.BackOff
}

// RedisSourceOption customises a RedisSource.
type RedisSourceOption func(*RedisSource)

// WithChannelPrefix sets the prefix the broadcaster puts in front of every
// channel name.
func WithChannelPrefix(prefix string) RedisSourceOption {
	return func(s *RedisSource) { s.prefix = prefix }
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger *slog.Logger) RedisSourceOption {
	return func(s *RedisSource) { s.logger = logger }
}

// NewRedisSource constructs a RedisSource on an existing client. The caller
// keeps ownership of the client.
func NewRedisSource(client *redis.Client, opts ...RedisSourceOption) *RedisSource {
	s := &RedisSource{
		client: client,
		logger: slog.Default(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pubsub = client.Subscribe(context.Background())
	return s
}

// Subscribe implements Source.
func (s *RedisSource) Subscribe(ctx context.Context, channels ...string) error {
	if s.isClosed() {
		return ErrSourceClosed
	}
	if err := s.pubsub.Subscribe(ctx, s.wire(channels)...); err != nil {
		return fmt.Errorf("chat: redis subscribe: %w", err)
	}
	return nil
}

// Unsubscribe implements Source.
func (s *RedisSource) Unsubscribe(ctx context.Context, channels ...string) error {
	if s.isClosed() {
		return nil
	}
	if err := s.pubsub.Unsubscribe(ctx, s.wire(channels)...); err != nil {
		return fmt.Errorf("chat: redis unsubscribe: %w", err)
	}
	return nil
}

// Run implements Source. Receive errors are retried with exponential backoff;
// go-redis restores the subscriptions on reconnect.
func (s *RedisSource) Run(ctx context.Context, handle EventHandler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-stop:
		}
	}()

	retry := s.newBackOff()
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.isClosed() || errors.Is(err, redis.ErrClosed) {
				return ErrSourceClosed
			}
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("chat: redis receive: %w", err)
			}
			s.logger.Warn("chat redis receive", slog.Duration("retry_in", wait), slog.Any("error", err))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		retry.Reset()

		ev, err := DecodeEnvelope(strings.TrimPrefix(msg.Channel, s.prefix), []byte(msg.Payload))
		if err != nil {
			s.logger.Warn("chat redis payload", slog.String("channel", msg.Channel), slog.Any("error", err))
			continue
		}
		handle(ctx, ev)
	}
}

// Close implements Source.
func (s *RedisSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.pubsub.Close()
}

func (s *RedisSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *RedisSource) wire(channels []string) []string {
	if s.prefix == "" {
		return channels
	}
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = s.prefix + ch
	}
	return out
}
