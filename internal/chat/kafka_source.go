package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the source consumes.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaSource.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// GroupID is the consumer group prefix. Every replica holds its own
	// conversation state, so each reads the whole topic under its own group.
	GroupID string
	// Replica names this process in the group id. Empty uses the hostname.
	Replica string
}

// ReplicaGroupID returns the consumer group for one console replica. An empty
// replica falls back to the hostname, then to a random id.
func ReplicaGroupID(prefix, replica string) string {
	replica = strings.TrimSpace(replica)
	if replica == "" {
		if host, err := os.Hostname(); err == nil {
			replica = host
		}
	}
	if replica == "" {
		replica = uuid.NewString()
	}
	if prefix == "" {
		return replica
	}
	return prefix + "-" + replica
}

// KafkaSource consumes push events relayed to a Kafka topic. Each record is
// keyed by channel name, or names it in the envelope, and carries the
// broadcast envelope as its value. Records for channels nobody subscribed to
// are committed and skipped.
type KafkaSource struct {
	reader MessageReader
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]struct{}
	closed   bool

	newBackOff func() backoff.BackOff
}

// NewKafkaSource builds a source reading cfg.Topic under the replica's own
// consumer group.
func NewKafkaSource(cfg KafkaConfig, logger *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("chat: kafka brokers required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("chat: kafka topic required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     ReplicaGroupID(cfg.GroupID, cfg.Replica),
		Topic:       cfg.Topic,
		Dialer:      kafka.DefaultDialer,
		StartOffset: kafka.LastOffset,
	})
	return NewKafkaSourceWithReader(reader, logger), nil
}

// NewKafkaSourceWithReader wraps an existing reader.
func NewKafkaSourceWithReader(reader MessageReader, logger *slog.Logger) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSource{
		reader:   reader,
		logger:   logger,
		channels: make(map[string]struct{}),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 15 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Subscribe implements Source.
func (s *KafkaSource) Subscribe(_ context.Context, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	for _, ch := range channels {
		s.channels[ch] = struct{}{}
	}
	return nil
}

// Unsubscribe implements Source.
func (s *KafkaSource) Unsubscribe(_ context.Context, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.channels, ch)
	}
	return nil
}

func (s *KafkaSource) subscribed(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

// Run implements Source.
func (s *KafkaSource) Run(ctx context.Context, handle EventHandler) error {
	retry := s.newBackOff()
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || s.isClosed() {
				return ErrSourceClosed
			}
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("chat: kafka fetch: %w", err)
			}
			s.logger.Warn("chat kafka fetch", slog.Duration("retry_in", wait), slog.Any("error", err))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		retry.Reset()

		ev, err := DecodeEnvelope(string(msg.Key), msg.Value)
		switch {
		case err != nil:
			s.logger.Warn("chat kafka payload", slog.String("key", string(msg.Key)), slog.Any("error", err))
		case s.subscribed(ev.Channel):
			handle(ctx, ev)
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			s.logger.Warn("chat kafka commit", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		}
	}
}

// Close implements Source.
func (s *KafkaSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.reader.Close()
}

func (s *KafkaSource) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
