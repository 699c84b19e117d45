package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/realtime-chat-server/domain/chat"
)

// Client to server events.
const (
	EventGetRooms    = "get_rooms"
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventCreateRoom  = "create_room"
)

// Server to client events.
const (
	EventRoomsList  = "rooms_list"
	EventRoomJoined = "room_joined"
	EventNewMessage = "new_message"
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventError      = "error"
)

// Protocol errors.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownEvent     = errors.New("unknown event")
)

// Event is one outbound frame. It is serialized as {"event": ..., "data": ...}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// RoomJoinedPayload is sent to a connection after it joins a room.
type RoomJoinedPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
	Users    []domain.User    `json:"users"`
}

// UserJoinedPayload is broadcast to the other members of a room.
type UserJoinedPayload struct {
	User  domain.User   `json:"user"`
	Users []domain.User `json:"users"`
}

// UserLeftPayload is broadcast to the remaining members of a room.
type UserLeftPayload struct {
	UserID string        `json:"userId"`
	Users  []domain.User `json:"users"`
}

// Request is one decoded inbound frame. The set of implementations is closed.
type Request interface {
	event() string
}

// GetRoomsRequest asks for the room catalogue.
type GetRoomsRequest struct{}

// JoinRoomRequest joins or switches to a room.
type JoinRoomRequest struct {
	RoomID string
}

// LeaveRoomRequest leaves a room.
type LeaveRoomRequest struct {
	RoomID string
}

// SendMessageRequest posts a chat message.
type SendMessageRequest struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// CreateRoomRequest creates a room.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (GetRoomsRequest) event() string    { return EventGetRooms }
func (JoinRoomRequest) event() string    { return EventJoinRoom }
func (LeaveRoomRequest) event() string   { return EventLeaveRoom }
func (SendMessageRequest) event() string { return EventSendMessage }
func (CreateRoomRequest) event() string  { return EventCreateRoom }

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeRequest parses one inbound frame into a known request variant.
func DecodeRequest(raw []byte) (Request, error) {
	var env envelope
	if err := strictUnmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	switch env.Event {
	case EventGetRooms:
		return GetRoomsRequest{}, nil

	case EventJoinRoom:
		roomID, err := decodeRoomID(env.Data)
		if err != nil {
			return nil, err
		}
		return JoinRoomRequest{RoomID: roomID}, nil

	case EventLeaveRoom:
		roomID, err := decodeRoomID(env.Data)
		if err != nil {
			return nil, err
		}
		return LeaveRoomRequest{RoomID: roomID}, nil

	case EventSendMessage:
		var req SendMessageRequest
		if err := decodeData(env.Data, &req); err != nil {
			return nil, err
		}
		if req.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId is required", ErrMalformedRequest)
		}
		return req, nil

	case EventCreateRoom:
		var req CreateRoomRequest
		if err := decodeData(env.Data, &req); err != nil {
			return nil, err
		}
		return req, nil

	case "":
		return nil, fmt.Errorf("%w: event is required", ErrMalformedRequest)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeRoomID(data json.RawMessage) (string, error) {
	var roomID string
	if err := decodeData(data, &roomID); err != nil {
		return "", err
	}
	if roomID == "" {
		return "", fmt.Errorf("%w: roomId is required", ErrMalformedRequest)
	}
	return roomID, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: data is required", ErrMalformedRequest)
	}
	if err := strictUnmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
