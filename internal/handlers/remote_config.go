package handlers

import (
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

// ConfigHandler publishes the engine policy clients pace themselves by:
// how often to poll nearby, and the thresholds the server enforces.
type ConfigHandler struct {
	policy config.Policy
}

func NewConfigHandler(policy config.Policy) *ConfigHandler {
	return &ConfigHandler{policy: policy}
}

func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	p := h.policy
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(dto.ClientConfigResponse{
		ProximityThresholdMeters:  p.ProximityThresholdMeters,
		LocationStalenessSeconds:  int(p.LocationStaleness.Seconds()),
		NearbyPollIntervalSeconds: int(p.NearbyPollInterval.Seconds()),
		ProximityPassCap:          p.ProximityPassCap,
		ProximityPassWindowHours:  p.ProximityPassWindow.Hours(),
		RatingWindowHours:         p.RatingWindow.Hours(),
		LeaderboardMaxLimit:       p.LeaderboardMaxLimit,
		ScanPrefix:                models.ScanPrefix,
	})
}
