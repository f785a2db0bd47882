package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/odyssey-console/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	inboxPrefix       = "chat:inbox:"
	defaultInboxLimit = 50
	defaultInboxTTL   = 7 * 24 * time.Hour
	previewRunes      = 140
)

// Inbox keeps the most recent chat notifications per company in Redis.
type Inbox struct {
	client *redis.Client
	limit  int64
	ttl    time.Duration
}

// NewInbox constructs an Inbox. Non-positive limit or ttl select defaults.
func NewInbox(client *redis.Client, limit int, ttl time.Duration) *Inbox {
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if ttl <= 0 {
		ttl = defaultInboxTTL
	}
	return &Inbox{client: client, limit: int64(limit), ttl: ttl}
}

// Push records n as the newest notification of its company.
func (i *Inbox) Push(ctx context.Context, n ChatNotifyPayload) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := inboxPrefix + n.CompanyID
	pipe := i.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, i.limit-1)
	pipe.Expire(ctx, key, i.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n notifications for company, newest first.
func (i *Inbox) Recent(ctx context.Context, company string, n int) ([]ChatNotifyPayload, error) {
	if n <= 0 || int64(n) > i.limit {
		n = int(i.limit)
	}
	items, err := i.client.LRange(ctx, inboxPrefix+company, 0, int64(n)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ChatNotifyPayload, 0, len(items))
	for _, item := range items {
		var p ChatNotifyPayload
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ChatNotifyJob delivers chat:notify tasks into the company inbox.
type ChatNotifyJob struct {
	Inbox   *Inbox
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewChatNotifyJob wires dependencies for the notify handler.
func NewChatNotifyJob(inbox *Inbox, logger *slog.Logger, metrics *jobmetrics.Metrics) *ChatNotifyJob {
	return &ChatNotifyJob{Inbox: inbox, Logger: logger, Metrics: metrics}
}

// Handle processes chat notification tasks.
func (j *ChatNotifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Inbox == nil {
		return errors.New("chat notify: handler not configured")
	}
	var payload ChatNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CompanyID == "" || payload.MessageID == "" {
		return fmt.Errorf("chat notify: incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskChatNotify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("company_id", payload.CompanyID),
		slog.String("conversation_id", payload.ConversationID),
		slog.String("message_id", payload.MessageID),
	)
	if err := j.Inbox.Push(ctx, payload); err != nil {
		logger.Error("push chat notification", slog.Any("error", err))
		return err
	}
	logger.Info("chat notification delivered", slog.Int("unread", payload.UnreadCount))
	return nil
}

func (j *ChatNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ChatNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewRunes {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewRunes-1]) + "…"
}
