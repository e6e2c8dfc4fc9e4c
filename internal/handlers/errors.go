package handlers

import (
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidPass):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrAvatarUnavailable):
		return fiber.StatusServiceUnavailable
	}
	switch services.KindOf(err) {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindStateConflict:
		return fiber.StatusConflict
	case services.KindRateLimited:
		return fiber.StatusTooManyRequests
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindTransient:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// respondError writes the standard error body for err. Server-side failures
// are logged and reported to Sentry with a generic message.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := dto.ErrorResponse{Error: true, Code: services.CodeOf(err), Message: err.Error()}

	var rl *services.RateLimitError
	if errors.As(err, &rl) {
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		body.RetryAfter = secs
		body.Message = services.ErrRateLimited.Error()
	}

	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err.Error(),
			"request_id", requestID(c),
		)
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		if status == fiber.StatusServiceUnavailable {
			body.Message = "Service temporarily unavailable"
		} else {
			body.Message = "Internal server error"
		}
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Code: "bad_request", Message: msg,
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Code: "unauthorized", Message: "Unauthorized",
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
