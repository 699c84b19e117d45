package chat

import (
	"time"

	domain "github.com/example/realtime-chat-server/domain/chat"
	"github.com/example/realtime-chat-server/events"
)

// Event publishing is best effort: a failure is logged and never fails the
// operation that triggered it.

func (m *Module) publishUserJoined(result *JoinResult) {
	if m.eventBus == nil {
		return
	}
	event := events.UserJoinedEvent{
		RoomID:         result.RoomID,
		PreviousRoomID: result.PreviousRoomID,
		UserID:         result.User.ID,
		Username:       result.User.Username,
		Timestamp:      result.User.JoinedAt,
	}
	if err := events.UserJoinedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish UserJoined event", "roomID", result.RoomID, "error", err)
	}
}

func (m *Module) publishUserLeft(roomID string, user domain.User) {
	if m.eventBus == nil {
		return
	}
	event := events.UserLeftEvent{
		RoomID:    roomID,
		UserID:    user.ID,
		Username:  user.Username,
		Timestamp: time.Now(),
	}
	if err := events.UserLeftV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish UserLeft event", "roomID", roomID, "error", err)
	}
}

func (m *Module) publishMessagePosted(msg domain.Message) {
	if m.eventBus == nil {
		return
	}
	event := events.MessagePostedEvent{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Length:    len([]rune(msg.Content)),
		Timestamp: msg.Timestamp,
	}
	if err := events.MessagePostedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish MessagePosted event", "roomID", msg.RoomID, "error", err)
	}
}

func (m *Module) publishRoomCreated(room domain.Room) {
	if m.eventBus == nil {
		return
	}
	event := events.RoomCreatedEvent{
		RoomID:    room.ID,
		RoomName:  room.Name,
		Timestamp: room.CreatedAt,
	}
	if err := events.RoomCreatedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Warn("Failed to publish RoomCreated event", "roomID", room.ID, "error", err)
	}
}
