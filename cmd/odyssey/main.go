package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/app"
	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/chat"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/resources"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokenInspector := shared.NewTokenInspector(cfg.UpstreamJWTSecret)

	metrics := observability.NewMetrics()
	api := apiclient.New(apiclient.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.APITimeout,
		UserAgent: "odyssey-console",
		Observer:  metrics.ObserveUpstream,
	}, logger)

	rbacService := rbac.NewService(api, cache.NewJSONCache(redisClient, "console:principal:", cfg.PrincipalCacheTTL))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(api, tokenInspector, rbacService)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, rbacMiddleware)

	chatMetrics := chat.NewMetrics(metrics.Registerer())

	jobClient, err := jobs.NewClient(cfg.Asynq())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	source, err := newRealtimeSource(cfg, redisClient, logger)
	if err != nil {
		logger.Error("init realtime source", slog.Any("error", err))
		os.Exit(1)
	}

	chatStore := chat.NewStore()
	chatCredentials := chat.NewCredentials()
	broadcaster := chat.NewBroadcaster(cfg.StreamBuffer, chatMetrics)
	reconciler := chat.NewReconciler(chatStore, chat.NewAPIFetcher(api, chatCredentials), logger,
		chat.WithNotifier(jobClient),
		chat.WithBroadcaster(broadcaster),
		chat.WithMetrics(chatMetrics),
	)
	hub := chat.NewHub(source, reconciler, chatStore, chatMetrics, logger)
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Warn("chat hub close", slog.Any("error", err))
		}
	}()
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error("chat hub", slog.Any("error", err))
			stop()
		}
	}()
	chatHandler := chat.NewHandler(logger, chat.NewService(api, chatStore, reconciler), hub, broadcaster, chatCredentials, rbacMiddleware)

	inbox := jobs.NewInbox(redisClient, cfg.NotifyInboxLimit, 0)
	inboxHandler := jobs.NewInboxHandler(inbox, rbacMiddleware, logger)

	resourcesHandler := resources.NewHandler(logger, resources.NewService(api, cfg.ExportRowLimit), resources.DefaultRegistry(), rbacMiddleware)

	inspector := asynq.NewInspector(cfg.Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService, rbacMiddleware),
		ChatHandler:        chatHandler,
		InboxHandler:       inboxHandler,
		ResourcesHandler:   resourcesHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	ln, err := net.Listen("tcp", cfg.AppAddr)
	if err != nil {
		logger.Error("listen", slog.String("addr", cfg.AppAddr), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("realtime transport", slog.String("transport", cfg.RealtimeTransport))
	if err := app.Serve(ctx, app.NewServer(cfg, router), ln, logger, 10*time.Second); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
