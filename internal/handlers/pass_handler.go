package handlers

import (
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/proximity"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// PassHandler serves interaction passes and the ratings submitted on them.
type PassHandler struct {
	passes   *services.PassService
	ratings  *services.RatingService
	identity *services.IdentityService
}

func NewPassHandler(passes *services.PassService, ratings *services.RatingService, identity *services.IdentityService) *PassHandler {
	return &PassHandler{passes: passes, ratings: ratings, identity: identity}
}

func (h *PassHandler) List(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	passes, err := h.passes.ListPasses(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewPassResponses(passes))
}

func (h *PassHandler) Get(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid pass id")
	}

	pass, err := h.passes.GetPass(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewPassResponse(pass))
}

// Create issues a manual pass (meet, call or chat) with a connection.
func (h *PassHandler) Create(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.CreatePassRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == uuid.Nil {
		return badRequest(c, "user_id and kind are required")
	}

	pass, err := h.passes.CreateManualPass(c.UserContext(), userID, req.UserID, models.PassKind(req.Kind))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewPassResponse(pass))
}

// CreateProximity issues a gps_proximity pass. When the body carries a
// location it is stored first so the check sees the caller's latest fix.
func (h *PassHandler) CreateProximity(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.ProximityPassRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == uuid.Nil {
		return badRequest(c, "user_id is required")
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return badRequest(c, "latitude and longitude must be sent together")
	}

	ctx := c.UserContext()
	if req.Latitude != nil {
		point := proximity.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if err := h.identity.UpdateLocation(ctx, userID, point); err != nil {
			return respondError(c, err)
		}
	}

	pass, err := h.passes.CreateProximityPass(ctx, userID, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewPassResponse(pass))
}

func (h *PassHandler) Confirm(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid pass id")
	}

	pass, err := h.passes.ConfirmPass(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewPassResponse(pass))
}

func (h *PassHandler) Ratings(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid pass id")
	}

	ratings, err := h.ratings.RatingsForPass(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewRatingResponses(ratings))
}

// SubmitRating rates the counterpart on a pass. The response only shows the
// caller's own rating; the other side becomes visible once both are in.
func (h *PassHandler) SubmitRating(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid pass id")
	}
	var req dto.SubmitRatingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx := c.UserContext()
	var ratee uuid.UUID
	if req.RateeID != nil {
		ratee = *req.RateeID
	} else {
		pass, err := h.passes.GetPass(ctx, id, userID)
		if err != nil {
			return respondError(c, err)
		}
		ratee = pass.Other(userID)
	}

	rating, err := h.ratings.SubmitRating(ctx, id, userID, ratee, req.Score)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewRatingResponse(rating))
}
