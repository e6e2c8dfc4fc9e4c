package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminRequired lets a request through when any of these hold:
// 1. X-Admin-Token matches the configured token
// 2. the JWT subject is listed in ADMIN_USER_IDS
// 3. the user's stored role is admin
//
// The token check runs first so operators can call admin routes without a
// user session; mount it before JWTProtected in that case.
func AdminRequired(db *gorm.DB, cfg *config.Config) fiber.Handler {
	adminUserIDs := parseCSV(cfg.AdminUserIDs)

	return func(c *fiber.Ctx) error {
		if cfg.AdminToken != "" && c.Get("X-Admin-Token") == cfg.AdminToken {
			return c.Next()
		}

		userID, err := session.GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Code: "unauthorized", Message: "Unauthorized",
			})
		}

		if contains(adminUserIDs, userID.String()) {
			return c.Next()
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).Select("role").First(&user, "id = ?", userID).Error; err == nil {
			if user.Role == "admin" {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Code: "forbidden", Message: "Admin access required",
		})
	}
}

// OptionalJWT runs the JWT middleware only when a bearer token is present,
// so admin token callers can skip it.
func OptionalJWT(cfg *config.Config) fiber.Handler {
	protected := JWTProtected(cfg)
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			return c.Next()
		}
		return protected(c)
	}
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
