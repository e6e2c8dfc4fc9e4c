package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewHealthHandler(db *gorm.DB, clk clock.Clock) *HealthHandler {
	return &HealthHandler{db: db, clock: clk}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "ok"
	dbStatus := "ok"
	if err := database.Ping(h.db); err != nil {
		status = "degraded"
		dbStatus = "unhealthy: " + err.Error()
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.HealthResponse{
		Status:    status,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
	})
}
