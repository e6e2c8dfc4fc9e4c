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

// UserHandler serves the caller's own profile, other users' profiles, the
// leaderboard and the nearby scan.
type UserHandler struct {
	identity    *services.IdentityService
	proximity   *services.ProximityService
	connections *services.ConnectionService
	ratings     *services.RatingService
	avatars     *services.AvatarService
}

func NewUserHandler(
	identity *services.IdentityService,
	proximity *services.ProximityService,
	connections *services.ConnectionService,
	ratings *services.RatingService,
	avatars *services.AvatarService,
) *UserHandler {
	return &UserHandler{
		identity:    identity,
		proximity:   proximity,
		connections: connections,
		ratings:     ratings,
		avatars:     avatars,
	}
}

func (h *UserHandler) Me(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	user, err := h.identity.GetUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewMeResponse(user))
}

func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := h.identity.UpdateProfile(c.UserContext(), userID, services.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURI:   req.AvatarURI,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewMeResponse(user))
}

func (h *UserHandler) UpdateLocation(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	point, ok := parseLocation(c)
	if !ok {
		return badRequest(c, "latitude and longitude are required")
	}

	if err := h.identity.UpdateLocation(c.UserContext(), userID, point); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *UserHandler) AvatarUpload(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.AvatarUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	up, err := h.avatars.PresignUpload(c.UserContext(), userID, req.ContentType, req.FileSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.AvatarUploadResponse{
		UploadURL: up.UploadURL,
		Method:    up.Method,
		Headers:   up.Headers,
		AvatarURI: up.AvatarURI,
		ExpiresAt: up.ExpiresAt,
	})
}

func (h *UserHandler) MyRatings(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ratings, err := h.ratings.RevealedRatingsFor(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewRatingResponses(ratings))
}

func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	viewer, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user id")
	}

	user, err := h.identity.GetUser(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return h.profile(c, viewer, user)
}

func (h *UserHandler) Scan(c *fiber.Ctx) error {
	viewer, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := h.identity.ResolveScan(c.UserContext(), req.Code)
	if err != nil {
		return respondError(c, err)
	}
	return h.profile(c, viewer, user)
}

func (h *UserHandler) profile(c *fiber.Ctx, viewer uuid.UUID, user *models.User) error {
	rel, conn, err := h.connections.Relationship(c.UserContext(), viewer, user.ID)
	if err != nil {
		return respondError(c, err)
	}
	resp := dto.ProfileResponse{User: dto.NewUserResponse(user), Relationship: string(rel)}
	if conn != nil {
		resp.ConnectionID = &conn.ID
	}
	return c.JSON(resp)
}

func (h *UserHandler) Leaderboard(c *fiber.Ctx) error {
	users, err := h.identity.Leaderboard(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewUserResponses(users))
}

// Nearby stores the caller's location and lists connections within range.
func (h *UserHandler) Nearby(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	point, ok := parseLocation(c)
	if !ok {
		return badRequest(c, "latitude and longitude are required")
	}

	nearby, err := h.proximity.QueryNearby(c.UserContext(), userID, point)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]dto.NearbyUserResponse, len(nearby))
	for i := range nearby {
		out[i] = dto.NearbyUserResponse{
			User:           dto.NewUserResponse(&nearby[i].User),
			DistanceMeters: nearby[i].DistanceMeters,
		}
	}
	return c.JSON(out)
}

func parseLocation(c *fiber.Ctx) (proximity.Point, bool) {
	var req dto.LocationRequest
	if err := c.BodyParser(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		return proximity.Point{}, false
	}
	return proximity.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}, true
}
