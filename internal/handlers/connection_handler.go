package handlers

import (
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ConnectionHandler struct {
	connections *services.ConnectionService
}

func NewConnectionHandler(connections *services.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

func (h *ConnectionHandler) List(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	views, err := h.connections.ListConnections(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(viewResponses(views))
}

func (h *ConnectionHandler) Requests(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	views, err := h.connections.ListPendingRequests(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(viewResponses(views))
}

func (h *ConnectionHandler) Request(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.ConnectionRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == uuid.Nil {
		return badRequest(c, "user_id is required")
	}

	conn, err := h.connections.RequestConnection(c.UserContext(), userID, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewConnectionResponse(conn, nil))
}

func (h *ConnectionHandler) Accept(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid connection id")
	}

	conn, err := h.connections.AcceptConnection(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewConnectionResponse(conn, nil))
}

func (h *ConnectionHandler) Decline(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid connection id")
	}

	if err := h.connections.DeclineConnection(c.UserContext(), id, userID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectionHandler) Block(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req dto.BlockRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == uuid.Nil {
		return badRequest(c, "user_id is required")
	}

	if err := h.connections.BlockUser(c.UserContext(), userID, req.UserID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "User blocked"})
}

func viewResponses(views []services.ConnectionView) []dto.ConnectionResponse {
	out := make([]dto.ConnectionResponse, len(views))
	for i := range views {
		out[i] = dto.NewConnectionResponse(&views[i].Connection, &views[i].Counterpart)
	}
	return out
}
