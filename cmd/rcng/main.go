package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/app"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/audit"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/auth"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/blog"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/committees"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/documents"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/dues"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/events"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/observability"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/db"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/httpx"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/projects"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/quotations"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/storage"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/users"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/view"
	"github.com/kemosabixv/rcng-pwa-sub001/jobs"
	"github.com/kemosabixv/rcng-pwa-sub001/report"
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
	httpx.ExposeInternalErrors(!cfg.IsProduction())

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	var readCache *cache.Cache
	if cfg.CacheEnabled {
		readCache = cache.NewCache(redisClient, cache.WithLogger(logger), cache.WithObserver(metrics))
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	mailQueue := notify.NewQueue(queueClient)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	pdfRenderer := report.NewQuotationRenderer(report.NewClient(cfg.GotenbergURL), templates)

	fileStore, err := storage.NewLocal(cfg.StorageDir, cfg.UploadMaxBytes)
	if err != nil {
		logger.Error("init document storage", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	rbacService := rbac.NewService()
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens, auth.NewRedisDenylist(redisClient), logger)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}

	usersService := users.NewService(users.NewRepository(dbpool), logger)
	committeesService := committees.NewService(committees.NewRepository(dbpool), auditLogger, logger)
	projectsService := projects.NewService(projects.NewRepository(dbpool), readCache, logger)
	duesService := dues.NewService(dues.NewRepository(dbpool), idempotencyStore, logger,
		dues.WithCache(readCache),
		dues.WithNotifier(mailQueue),
		dues.WithAudit(auditLogger),
	)
	documentsService := documents.NewService(documents.NewRepository(dbpool), fileStore, cfg.StorageBaseURL, logger)
	quotationsService := quotations.NewService(quotations.NewRepository(dbpool), logger,
		quotations.WithCache(readCache),
		quotations.WithNotifier(mailQueue),
		quotations.WithAudit(auditLogger),
		quotations.WithRenderer(pdfRenderer),
	)
	blogService := blog.NewService(blog.NewRepository(dbpool), readCache, logger)
	eventsService := events.NewService(events.NewRepository(dbpool), readCache, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		AuthMiddleware:     authMiddleware,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService, authMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		CommitteesHandler:  committees.NewHandler(logger, committeesService, rbacMiddleware),
		ProjectsHandler:    projects.NewHandler(logger, projectsService, rbacMiddleware),
		DuesHandler:        dues.NewHandler(logger, duesService, rbacMiddleware),
		DocumentsHandler:   documents.NewHandler(logger, documentsService, rbacMiddleware, cfg.UploadMaxBytes),
		QuotationsHandler:  quotations.NewHandler(logger, quotationsService, rbacMiddleware),
		BlogHandler:        blog.NewHandler(logger, blogService, rbacMiddleware),
		EventsHandler:      events.NewHandler(logger, eventsService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
