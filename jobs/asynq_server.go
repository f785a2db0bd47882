package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-console/internal/chat"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if len(cfg.Handlers) == 0 {
		return nil, errors.New("worker: no task handlers")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueChatNotify enqueues a chat notification. A message is enqueued at
// most once; repeats are reported as success.
func (c *Client) EnqueueChatNotify(ctx context.Context, payload ChatNotifyPayload) (*asynq.TaskInfo, error) {
	task, err := NewChatNotifyTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.TaskID(chatNotifyTaskID(payload)),
		asynq.MaxRetry(3),
		asynq.Retention(time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, nil
	}
	return info, err
}

// NotifyMessage implements chat.Notifier.
func (c *Client) NotifyMessage(ctx context.Context, company shared.ID, conv chat.Conversation, msg chat.Message) error {
	payload := ChatNotifyPayload{
		CompanyID:      company.String(),
		ConversationID: conv.ID.String(),
		MessageID:      msg.ID.String(),
		Title:          conv.Title,
		Preview:        preview(msg.Body),
		UnreadCount:    conv.UnreadCount,
		ReceivedAt:     msg.CreatedAt,
	}
	if msg.Sender != nil {
		payload.Sender = msg.Sender.Name
	}
	if payload.ReceivedAt.IsZero() {
		payload.ReceivedAt = time.Now().UTC()
	}
	_, err := c.EnqueueChatNotify(ctx, payload)
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + strconv.Itoa(pending) + `}`))
}

// InboxHandler serves the notifications recorded by ChatNotifyJob.
type InboxHandler struct {
	inbox  *Inbox
	rbac   rbac.Middleware
	logger *slog.Logger
}

// NewInboxHandler constructs an InboxHandler.
func NewInboxHandler(inbox *Inbox, rbacMW rbac.Middleware, logger *slog.Logger) *InboxHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InboxHandler{inbox: inbox, rbac: rbacMW, logger: logger}
}

// MountRoutes attaches the inbox listing.
func (h *InboxHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermChatView)).Get("/", h.list)
}

func (h *InboxHandler) list(w http.ResponseWriter, r *http.Request) {
	company := ""
	if user := rbac.PrincipalFromContext(r.Context()); user != nil {
		company = user.CompanyID.String()
	}
	if company == "" {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			company = sess.Company()
		}
	}
	if company == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "no active company")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.inbox.Recent(r.Context(), company, limit)
	if err != nil {
		h.logger.Error("list chat notifications", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}
