package chat

import (
	"context"

	"github.com/go-monolith/mono"
)

// Domain failures are reported through ErrorCode rather than as service
// errors so the adapter can hand the caller the original sentinel.

// listRooms handles the list-rooms service request.
func (m *Module) listRooms(_ context.Context, _ ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	return ListRoomsResponse{Rooms: m.ListRooms()}, nil
}

// getRoom handles the get-room service request.
func (m *Module) getRoom(_ context.Context, req GetRoomRequest, _ *mono.Msg) (GetRoomResponse, error) {
	room, err := m.registry.GetRoom(req.RoomID)
	if err != nil {
		return GetRoomResponse{ErrorCode: ErrorCode(err)}, nil
	}
	return GetRoomResponse{Room: &room}, nil
}

// getHistory handles the get-history service request.
func (m *Module) getHistory(_ context.Context, req GetHistoryRequest, _ *mono.Msg) (GetHistoryResponse, error) {
	messages, err := m.registry.History(req.RoomID, req.Limit)
	if err != nil {
		return GetHistoryResponse{ErrorCode: ErrorCode(err)}, nil
	}
	return GetHistoryResponse{Messages: messages}, nil
}

// createRoom handles the create-room service request.
func (m *Module) createRoom(_ context.Context, req CreateRoomRequest, _ *mono.Msg) (CreateRoomResponse, error) {
	room, err := m.CreateRoom(req.Name, req.Description)
	if err != nil {
		code := ErrorCode(err)
		if code == "" {
			return CreateRoomResponse{}, err
		}
		return CreateRoomResponse{ErrorCode: code}, nil
	}
	return CreateRoomResponse{Room: &room}, nil
}
