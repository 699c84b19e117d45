package api

import (
	"errors"
	"strings"

	"github.com/example/realtime-chat-server/modules/chat"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHistoryLimit  = chat.RecentHistoryLimit
	maxHistoryLimit      = chat.DefaultMaxHistory
	defaultActivityLimit = 50
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket endpoint
	app.Use("/ws", m.gateway.UpgradeMiddleware())
	app.Get("/ws", m.gateway.Handler())

	api := app.Group("/api/v1")

	api.Get("/rooms", m.listRooms)
	api.Post("/rooms", m.createRoom)
	api.Get("/rooms/:id", m.getRoom)
	api.Get("/rooms/:id/history", m.getHistory)

	api.Post("/session", m.checkSession)
	api.Get("/activity", m.listActivity)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.gateway.ConnectionCount(),
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	rooms, err := m.chatAdapter.ListRooms(c.UserContext())
	if err != nil {
		return m.chatError(c, err)
	}
	return c.JSON(RoomListResponse{Rooms: rooms, Total: len(rooms)})
}

// createRoom handles POST /api/v1/rooms.
func (m *APIModule) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	room, err := m.chatAdapter.CreateRoom(c.UserContext(), req.Name, req.Description)
	if err != nil {
		return m.chatError(c, err)
	}

	// Connected sockets see the new room immediately.
	m.gateway.BroadcastRoomList()

	return c.Status(fiber.StatusCreated).JSON(room)
}

// getRoom handles GET /api/v1/rooms/:id.
func (m *APIModule) getRoom(c *fiber.Ctx) error {
	room, err := m.chatAdapter.GetRoom(c.UserContext(), c.Params("id"))
	if err != nil {
		return m.chatError(c, err)
	}
	return c.JSON(room)
}

// getHistory handles GET /api/v1/rooms/:id/history.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	roomID := c.Params("id")
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := m.chatAdapter.GetHistory(c.UserContext(), roomID, limit)
	if err != nil {
		return m.chatError(c, err)
	}

	return c.JSON(HistoryResponse{
		RoomID:   roomID,
		Messages: messages,
		Total:    len(messages),
	})
}

// checkSession handles POST /api/v1/session. It is the login check that
// rejects usernames already held by a live connection.
func (m *APIModule) checkSession(c *fiber.Ctx) error {
	var req SessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	username := strings.TrimSpace(req.Username)
	if err := chat.ValidateUsername(username); err != nil {
		return m.chatError(c, err)
	}

	active, err := m.presence.IsActive(c.UserContext(), username)
	if err != nil {
		m.logger.Error("Presence lookup failed", "username", username, "error", err)
		return fiber.ErrServiceUnavailable
	}
	if active {
		return m.chatError(c, chat.ErrUsernameTaken)
	}

	return c.JSON(SessionResponse{Username: username, Available: true})
}

// listActivity handles GET /api/v1/activity.
func (m *APIModule) listActivity(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultActivityLimit)
	entries := m.activity.Recent(limit)
	return c.JSON(ActivityResponse{Entries: entries, Total: len(entries)})
}

// chatError writes the response for an error returned by the chat module.
func (m *APIModule) chatError(c *fiber.Ctx, err error) error {
	code := chat.ErrorCode(err)
	if code == "" {
		m.logger.Error("Chat request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "internal_error",
			Message: "Internal Server Error",
		})
	}
	return c.Status(statusFor(err)).JSON(ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, chat.ErrDuplicateName), errors.Is(err, chat.ErrUsernameTaken):
		return fiber.StatusConflict
	case errors.Is(err, chat.ErrNotAMember):
		return fiber.StatusForbidden
	default:
		return fiber.StatusBadRequest
	}
}
