package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

// Handlers bundles everything Setup mounts.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Health      *handlers.HealthHandler
	Config      *handlers.ConfigHandler
	Users       *handlers.UserHandler
	Connections *handlers.ConnectionHandler
	Passes      *handlers.PassHandler
	Events      *handlers.EventHandler
	Admin       *handlers.AdminHandler
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP. The event stream is
	// long-lived and exempt.
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Next:              func(c *fiber.Ctx) bool { return c.Path() == "/api/events/stream" },
	}))

	api.Get("/health", h.Health.Check)
	api.Get("/config", h.Config.GetConfig)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	// Protected routes carry the JWT middleware individually so the public
	// routes above never see it.
	jwt := middleware.JWTProtected(cfg)
	api.Post("/auth/logout", jwt, h.Auth.Logout)
	api.Delete("/auth/account", jwt, h.Auth.DeleteAccount)

	api.Get("/me", jwt, h.Users.Me)
	api.Patch("/me", jwt, h.Users.UpdateMe)
	api.Put("/me/location", jwt, h.Users.UpdateLocation)
	api.Post("/me/avatar", jwt, h.Users.AvatarUpload)
	api.Get("/me/ratings", jwt, h.Users.MyRatings)

	api.Post("/users/scan", jwt, h.Users.Scan)
	api.Get("/users/:id", jwt, h.Users.GetUser)
	api.Get("/leaderboard", jwt, h.Users.Leaderboard)
	api.Post("/nearby", jwt, h.Users.Nearby)

	api.Get("/connections", jwt, h.Connections.List)
	api.Get("/connections/requests", jwt, h.Connections.Requests)
	api.Post("/connections", jwt, h.Connections.Request)
	api.Post("/connections/:id/accept", jwt, h.Connections.Accept)
	api.Post("/connections/:id/decline", jwt, h.Connections.Decline)
	api.Post("/blocks", jwt, h.Connections.Block)

	api.Get("/passes", jwt, h.Passes.List)
	api.Post("/passes", jwt, h.Passes.Create)
	api.Post("/passes/proximity", jwt, h.Passes.CreateProximity)
	api.Get("/passes/:id", jwt, h.Passes.Get)
	api.Post("/passes/:id/confirm", jwt, h.Passes.Confirm)
	api.Get("/passes/:id/ratings", jwt, h.Passes.Ratings)
	api.Post("/passes/:id/ratings", jwt, h.Passes.SubmitRating)

	api.Get("/events", jwt, h.Events.Poll)
	api.Get("/events/stream", jwt, h.Events.Stream)

	// Admin maintenance: X-Admin-Token, or a JWT for an admin user.
	admin := api.Group("/admin", middleware.OptionalJWT(cfg), middleware.AdminRequired(db, cfg))
	admin.Post("/passes/expire", h.Admin.ExpirePasses)
	admin.Get("/logs", h.Admin.Logs)
}
