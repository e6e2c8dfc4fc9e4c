package handlers

import (
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminHandler serves maintenance endpoints for operators.
type AdminHandler struct {
	db     *gorm.DB
	passes *services.PassService
}

func NewAdminHandler(db *gorm.DB, passes *services.PassService) *AdminHandler {
	return &AdminHandler{db: db, passes: passes}
}

// ExpirePasses runs pass expiry immediately instead of waiting for the janitor.
func (h *AdminHandler) ExpirePasses(c *fiber.Ctx) error {
	n, err := h.passes.ExpireStale(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.ExpireResponse{Expired: n})
}

func (h *AdminHandler) Logs(c *fiber.Ctx) error {
	logs, err := logging.RecentSystemLogs(c.UserContext(), h.db, c.Query("level"), c.QueryInt("limit", 100))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(logs)
}
