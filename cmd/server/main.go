package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/threadline/internal/api"
	"github.com/lalith-99/threadline/internal/cache"
	"github.com/lalith-99/threadline/internal/config"
	"github.com/lalith-99/threadline/internal/db"
	"github.com/lalith-99/threadline/internal/middleware"
	"github.com/lalith-99/threadline/internal/observ"
	"github.com/lalith-99/threadline/internal/realtime"
	"github.com/lalith-99/threadline/internal/repository"
	"github.com/lalith-99/threadline/internal/repository/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "threadline",
		Short:         "Chat thread, message and project storage service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migrate(cmd.Context())
			},
		},
	)
	return root
}

// setup loads config, builds the logger and connects to Postgres. The
// caller owns the returned cleanup.
func setup(ctx context.Context) (*config.Config, *zap.Logger, *db.DB, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	cleanup := func() {
		database.Close()
		_ = logger.Sync()
	}
	return cfg, logger, database, cleanup, nil
}

func migrate(ctx context.Context) error {
	_, _, database, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return database.Migrate(ctx)
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, database, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	metrics := observ.NewMetrics()

	// ---------------------------------------------------------------
	// Repositories. Every store shares the pool, which is goroutine-safe.
	// ---------------------------------------------------------------
	pool := database.Pool()
	var users repository.UserRepository = postgres.NewUserStore(pool)

	// ---------------------------------------------------------------
	// Redis is optional: without it users are read straight from
	// Postgres and thread events only reach this instance.
	// ---------------------------------------------------------------
	hub := realtime.NewHub(logger)
	var events realtime.Publisher = realtime.NewLocalBroker(hub)

	if cfg.RedisURL != "" {
		c, err := cache.Connect(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer c.Close()

		users = cache.NewUserRepository(users, c, metrics, logger)

		broker := realtime.NewRedisBroker(c.Client(), hub, logger)
		events = broker
		go func() {
			if err := broker.Run(ctx); err != nil {
				logger.Error("thread event subscription stopped", zap.Error(err))
			}
		}()
		logger.Info("redis enabled", zap.Duration("cache_ttl", cfg.CacheTTL))
	}

	var (
		threads  repository.ThreadRepository  = postgres.NewThreadStore(pool, users)
		messages repository.MessageRepository = postgres.NewMessageStore(pool)
		projects repository.ProjectRepository = postgres.NewProjectStore(pool)
	)

	handlers := &api.Handlers{
		Auth:     api.NewAuthHandler(users, cfg.JWTSecret, cfg.JWTTTL, logger),
		Users:    api.NewUserHandler(users, logger),
		Threads:  api.NewThreadHandler(threads, projects, events, logger),
		Messages: api.NewMessageHandler(threads, messages, events, logger),
		Projects: api.NewProjectHandler(projects, events, logger),
		Events:   api.NewEventsHandler(threads, hub, logger),
	}

	// ---------------------------------------------------------------
	// HTTP server
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), metrics.Middleware())

	// Health and metrics stay public so load balancers and scrapers
	// don't need a token.
	router.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	handlers.Register(router, middleware.AuthMiddleware(cfg.JWTSecret))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Close)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting threadline",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// requestLogger replaces gin.Logger so access logs go through zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
