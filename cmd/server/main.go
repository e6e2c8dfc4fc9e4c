package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/spf13/pflag"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/proximity"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	policyPath := pflag.String("policy", cfg.PolicyPath, "path to the engine policy YAML file")
	port := pflag.String("port", cfg.Port, "HTTP listen port")
	noJanitor := pflag.Bool("no-janitor", false, "disable background pass expiry and retention sweeps")
	pflag.Parse()
	cfg.Port = *port

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	policy, err := config.LoadPolicy(*policyPath)
	if err != nil {
		slog.Error("failed to load policy", "path", *policyPath, "error", err)
		os.Exit(1)
	}
	slog.Info("policy loaded",
		"path", *policyPath,
		"proximity_threshold_meters", policy.ProximityThresholdMeters,
		"proximity_pass_cap", policy.ProximityPassCap,
		"proximity_pass_window", policy.ProximityPassWindow.String(),
	)

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.AttachDatabase(database.DB)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := clock.Real()

	// Event feed
	hub := events.NewHub()
	var broadcaster events.Broadcaster
	if cfg.EventBroadcast == "postgres" {
		broadcaster = events.NewPGBroadcaster(database.DB)
		listener := events.NewPGListener(cfg.DSN(), database.DB, hub)
		go func() {
			if err := listener.Run(ctx); err != nil {
				slog.Error("event listener stopped", "error", err)
			}
		}()
	}
	feed := events.NewFeed(database.DB, hub, broadcaster, clk)

	// Services
	moderationService := services.NewModerationService()
	identityService := services.NewIdentityService(database.DB, clk, policy, moderationService)
	proximityService := services.NewProximityService(database.DB, clk,
		proximity.NewEvaluator(policy.ProximityThresholdMeters, policy.LocationStaleness), identityService)
	connectionService := services.NewConnectionService(database.DB, clk, feed)
	passService := services.NewPassService(database.DB, clk, policy, proximityService, feed)
	ratingService := services.NewRatingService(database.DB, clk, feed)
	authService := services.NewAuthService(database.DB, cfg, clk, moderationService)
	avatarService := services.NewAvatarService(services.NewS3Presigner(cfg),
		cfg.AvatarBucket, cfg.AvatarPublicURL, cfg.AvatarMaxBytes, clk)
	if !avatarService.Enabled() {
		slog.Warn("avatar uploads disabled: AVATAR_BUCKET not set")
	}

	if !*noJanitor {
		services.NewJanitor(database.DB, clk, policy, passService, feed).Start(ctx)
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, database.DB, routes.Handlers{
		Auth:        handlers.NewAuthHandler(authService),
		Health:      handlers.NewHealthHandler(database.DB, clk),
		Config:      handlers.NewConfigHandler(policy),
		Users:       handlers.NewUserHandler(identityService, proximityService, connectionService, ratingService, avatarService),
		Connections: handlers.NewConnectionHandler(connectionService),
		Passes:      handlers.NewPassHandler(passService, ratingService, identityService),
		Events:      handlers.NewEventHandler(ctx, feed, 0),
		Admin:       handlers.NewAdminHandler(database.DB, passService),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	// Ends open event streams and background loops before the listener closes.
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(database.DB); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
