package main

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-console/internal/app"
	"github.com/odyssey-erp/odyssey-console/internal/chat"
)

func newRealtimeSource(cfg *app.Config, client *redis.Client, logger *slog.Logger) (chat.Source, error) {
	switch cfg.RealtimeTransport {
	case app.TransportRedis:
		return chat.NewRedisSource(client,
			chat.WithChannelPrefix(cfg.RealtimeChannelPrefix),
			chat.WithRedisLogger(logger),
		), nil
	case app.TransportKafka:
		source, err := chat.NewKafkaSource(chat.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
			Replica: cfg.KafkaReplicaID,
		}, logger)
		if err != nil {
			return nil, err
		}
		return source, nil
	default:
		return nil, fmt.Errorf("unknown realtime transport %q", cfg.RealtimeTransport)
	}
}
