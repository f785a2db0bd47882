package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
)

// Realtime transports understood by the chat hub.
const (
	TransportRedis = "redis"
	TransportKafka = "kafka"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	RateLimit         int           `envconfig:"APP_RATE_LIMIT" default:"120"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"odyssey_console"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	APIBaseURL string        `envconfig:"API_BASE_URL" default:"http://127.0.0.1:8000/api"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"15s"`
	// UpstreamJWTSecret enables signature checks on upstream bearer tokens.
	UpstreamJWTSecret string `envconfig:"UPSTREAM_JWT_SECRET"`

	RealtimeTransport     string   `envconfig:"REALTIME_TRANSPORT" default:"redis"`
	RealtimeChannelPrefix string   `envconfig:"REALTIME_CHANNEL_PREFIX"`
	KafkaBrokers          []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic            string   `envconfig:"KAFKA_TOPIC" default:"console.realtime"`
	KafkaGroupID          string   `envconfig:"KAFKA_GROUP_ID" default:"odyssey-console"`
	KafkaReplicaID        string   `envconfig:"KAFKA_REPLICA_ID"`
	StreamBuffer          int      `envconfig:"STREAM_BUFFER" default:"32"`

	PrincipalCacheTTL time.Duration `envconfig:"PRINCIPAL_CACHE_TTL" default:"60s"`
	ExportRowLimit    int           `envconfig:"EXPORT_ROW_LIMIT" default:"5000"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"5"`
	NotifyInboxLimit  int `envconfig:"NOTIFY_INBOX_LIMIT" default:"50"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return errors.New("api base url must be provided")
	}
	c.RealtimeTransport = strings.ToLower(strings.TrimSpace(c.RealtimeTransport))
	switch c.RealtimeTransport {
	case TransportRedis:
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("kafka transport requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown realtime transport %q", c.RealtimeTransport)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Redis returns the connection options shared by sessions, caches and pub/sub.
func (c *Config) Redis() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Asynq returns the queue connection options for the same Redis server.
func (c *Config) Asynq() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}
