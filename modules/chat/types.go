package chat

import (
	"context"

	domain "github.com/example/realtime-chat-server/domain/chat"
)

// Request-reply service names registered by the chat module.
const (
	ServiceListRooms  = "list-rooms"
	ServiceGetRoom    = "get-room"
	ServiceGetHistory = "get-history"
	ServiceCreateRoom = "create-room"
)

// ListRoomsRequest is the request for listing rooms.
type ListRoomsRequest struct{}

// ListRoomsResponse is the response for listing rooms.
type ListRoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

// GetRoomRequest is the request for a single room.
type GetRoomRequest struct {
	RoomID string `json:"room_id"`
}

// GetRoomResponse is the response for a single room.
type GetRoomResponse struct {
	Room      *domain.Room `json:"room,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
}

// GetHistoryRequest is the request for room history.
type GetHistoryRequest struct {
	RoomID string `json:"room_id"`
	Limit  int    `json:"limit"`
}

// GetHistoryResponse is the response for room history.
type GetHistoryResponse struct {
	Messages  []domain.Message `json:"messages"`
	ErrorCode string           `json:"error_code,omitempty"`
}

// CreateRoomRequest is the request for creating a room.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateRoomResponse is the response for creating a room.
type CreateRoomResponse struct {
	Room      *domain.Room `json:"room,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
}

// ChatPort is the contract driving adapters (the REST API) use to reach the
// chat module through its ServiceContainer.
type ChatPort interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	GetHistory(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
	CreateRoom(ctx context.Context, name, description string) (*domain.Room, error)
}
