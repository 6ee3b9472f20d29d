package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/ayodejiio/gatelink/internal/alerts"
	"github.com/ayodejiio/gatelink/internal/audit"
	"github.com/ayodejiio/gatelink/internal/config"
	"github.com/ayodejiio/gatelink/internal/handlers"
	"github.com/ayodejiio/gatelink/internal/middleware"
	"github.com/ayodejiio/gatelink/internal/quota"
	"github.com/ayodejiio/gatelink/internal/repository"
	"github.com/ayodejiio/gatelink/internal/services"
	"github.com/ayodejiio/gatelink/internal/webhook"
	"github.com/ayodejiio/gatelink/pkg/cache"
	"github.com/ayodejiio/gatelink/pkg/logger"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", map[string]any{"error": err.Error()})
	}

	// Set log level
	logger.SetLevel(logger.ParseLevel(cfg.Monitoring.LogLevel))
	logger.Info("Starting Gatelink API", map[string]any{
		"version":     "1.0.0",
		"environment": cfg.API.Environment,
	})

	// Initialize database with retry logic
	var repo *repository.Repository
	err = repository.WithRetry(context.Background(), repository.DefaultRetryConfig, func() error {
		var retryErr error
		repo, retryErr = repository.NewRepository(
			cfg.Database.URL,
			cfg.Database.MaxConns,
			cfg.Database.MaxIdleConns,
		)
		return retryErr
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]any{"error": err.Error()})
	}
	defer func() { _ = repo.Close() }()
	logger.Info("Connected to PostgreSQL")

	// Health check database
	if err := repo.HealthCheck(context.Background()); err != nil {
		logger.Fatal("Database health check failed", map[string]any{"error": err.Error()})
	}

	// Initialize Redis cache
	var redisCache *cache.Cache
	err = repository.WithRetry(context.Background(), repository.DefaultRetryConfig, func() error {
		var retryErr error
		redisCache, retryErr = cache.NewCache(cfg.Redis.URL, cfg.Redis.PolicyCacheTTL)
		return retryErr
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", map[string]any{"error": err.Error()})
	}
	defer func() { _ = redisCache.Close() }()
	logger.Info("Connected to Redis")

	// Optional AMQP alert publisher
	var alertPub *alerts.Publisher
	if cfg.Alerts.Enabled {
		alertPub, err = alerts.NewPublisher(cfg.Alerts.AMQPURL, cfg.Alerts.Exchange)
		if err != nil {
			logger.Fatal("Failed to connect to AMQP broker", map[string]any{"error": err.Error()})
		}
		defer alertPub.Close()
		logger.Info("Connected to AMQP broker", map[string]any{"exchange": cfg.Alerts.Exchange})
	}

	// Audit writer
	var auditAlerter audit.Alerter
	if alertPub != nil {
		auditAlerter = alertPub
	}
	recorder := audit.NewRecorder(repo, cfg.Audit.QueueSize, cfg.Audit.FailureAlertThreshold, auditAlerter)
	recorder.Start()
	defer recorder.Close()

	// Webhook dispatcher
	dispatcher := webhook.NewDispatcher(cfg.Webhook.Timeout, cfg.Webhook.QueueSize, cfg.Webhook.Workers)
	dispatcher.Start()
	defer dispatcher.Close()

	// Per-link quota limiter
	limiter := quota.NewLimiter(redisCache, cfg.RateLimit.PerLinkIP, cfg.RateLimit.PerLinkIPWindow)

	// Decision engine
	engine := services.NewEngine(repo, redisCache, limiter, recorder, dispatcher, &cfg.Scoring, &cfg.Engine)
	logger.Info("Initialized decision engine", map[string]any{
		"weights_version": cfg.Scoring.Version,
	})

	// Initialize handlers
	handler := handlers.NewHandler(engine, repo, redisCache)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
		ServerHeader:          "Gatelink",
		AppName:               "Gatelink API v1.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			logger.Error("Request error", map[string]any{
				"error": err.Error(),
				"path":  c.Path(),
				"code":  code,
			})
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(middleware.Recover())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS(cfg.Security.CORSOrigins))

	// Rate limiters
	rateLimiter := middleware.NewRateLimiter(redisCache, &cfg.RateLimit)

	// Routes
	app.Get("/health", handler.Health)
	app.Get("/metrics", handler.Metrics)

	// Visitor-facing routes
	v1 := app.Group("/v1")
	v1.Post("/visit",
		rateLimiter.LimitByIP(),
		handler.Visit,
	)
	app.Get("/r/:slug",
		rateLimiter.LimitByIP(),
		handler.Redirect,
	)

	// Management API
	api := app.Group("/api")
	api.Get("/links/:slug/stats", handler.LinkStats)
	api.Get("/links/:slug/visits", handler.RecentVisits)
	api.Delete("/links/:slug/visits", handler.ClearVisits)

	// Graceful shutdown: stop accepting requests, then drain the audit
	// and webhook queues via the deferred Close calls.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = app.ShutdownWithContext(ctx)
	}()

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	logger.Info("Gatelink API started", map[string]any{
		"address": addr,
	})

	if err := app.Listen(addr); err != nil {
		logger.Fatal("Server error", map[string]any{"error": err.Error()})
	}

	logger.Info("Server shutdown complete")
}
