package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessagePostedEvent is emitted when a message is stored in a room.
type MessagePostedEvent struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Length    int       `json:"length"`
	Timestamp time.Time `json:"timestamp"`
}

// UserJoinedEvent is emitted when a user joins a room.
type UserJoinedEvent struct {
	RoomID         string    `json:"room_id"`
	PreviousRoomID string    `json:"previous_room_id,omitempty"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	Timestamp      time.Time `json:"timestamp"`
}

// UserLeftEvent is emitted when a user leaves a room, either explicitly,
// by switching rooms, or by disconnecting.
type UserLeftEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomCreatedEvent is emitted when a new room is created.
type RoomCreatedEvent struct {
	RoomID    string    `json:"room_id"`
	RoomName  string    `json:"room_name"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessagePostedV1 = helper.EventDefinition[MessagePostedEvent](
		"chat",
		"MessagePosted",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"chat",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"chat",
		"UserLeft",
		"v1",
	)

	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"chat",
		"RoomCreated",
		"v1",
	)
)
