package chat

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/realtime-chat-server/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// chatAdapter implements ChatPort using the chat module's service container.
type chatAdapter struct {
	container mono.ServiceContainer
}

// NewChatAdapter creates a new ChatPort backed by container.
func NewChatAdapter(container mono.ServiceContainer) ChatPort {
	if container == nil {
		panic("chat: ServiceContainer is nil")
	}
	return &chatAdapter{container: container}
}

// ListRooms returns all available rooms.
func (a *chatAdapter) ListRooms(ctx context.Context) ([]domain.Room, error) {
	req := ListRoomsRequest{}
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp.Rooms, nil
}

// GetRoom retrieves a room by ID.
func (a *chatAdapter) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	req := GetRoomRequest{RoomID: roomID}
	var resp GetRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if err := codeError(resp.ErrorCode); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// GetHistory retrieves message history for a room.
func (a *chatAdapter) GetHistory(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	req := GetHistoryRequest{RoomID: roomID, Limit: limit}
	var resp GetHistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if err := codeError(resp.ErrorCode); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// CreateRoom creates a new chat room.
func (a *chatAdapter) CreateRoom(ctx context.Context, name, description string) (*domain.Room, error) {
	req := CreateRoomRequest{Name: name, Description: description}
	var resp CreateRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceCreateRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if err := codeError(resp.ErrorCode); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

func codeError(code string) error {
	if code == "" {
		return nil
	}
	if err := ErrorFromCode(code); err != nil {
		return err
	}
	return fmt.Errorf("chat: unknown error code %q", code)
}
