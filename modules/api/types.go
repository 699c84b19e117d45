package api

import (
	domain "github.com/example/realtime-chat-server/domain/chat"
	"github.com/example/realtime-chat-server/modules/activity"
)

// CreateRoomRequest is the API request to create a room.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []domain.Room `json:"rooms"`
	Total int           `json:"total"`
}

// HistoryResponse is the API response for message history.
type HistoryResponse struct {
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
	Total    int              `json:"total"`
}

// SessionRequest is the login check request.
type SessionRequest struct {
	Username string `json:"username"`
}

// SessionResponse is returned when a username is free to use.
type SessionResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// ActivityResponse is the API response for the activity feed.
type ActivityResponse struct {
	Entries []activity.Entry `json:"entries"`
	Total   int              `json:"total"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
