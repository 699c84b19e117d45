package chat

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/realtime-chat-server/domain/chat"
	"github.com/example/realtime-chat-server/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the room registry and publishes chat events for every
// successful mutation.
type Module struct {
	registry *Registry
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module with a freshly seeded registry.
func NewModule(logger types.Logger, opts ...RegistryOption) *Module {
	return &Module{
		registry: NewRegistry(opts...),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessagePostedV1.ToBase(),
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
		events.RoomCreatedV1.ToBase(),
	}
}

// RegisterServices registers the request-reply services of the chat module.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListRooms, json.Unmarshal, json.Marshal, m.listRooms,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListRooms, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetRoom, json.Unmarshal, json.Marshal, m.getRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetRoom, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetHistory, json.Unmarshal, json.Marshal, m.getHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetHistory, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateRoom, json.Unmarshal, json.Marshal, m.createRoom,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateRoom, err)
	}

	m.logger.Info("Registered chat services",
		"services", []string{ServiceListRooms, ServiceGetRoom, ServiceGetHistory, ServiceCreateRoom})
	return nil
}

// Start logs the seeded rooms.
func (m *Module) Start(_ context.Context) error {
	if m.eventBus == nil {
		m.logger.Warn("EventBus not set, chat events will not be published")
	}
	m.logger.Info("Chat module started", "rooms", len(m.registry.ListRooms()))
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Chat module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms": len(m.registry.ListRooms()),
		},
	}
}

// Registry returns the underlying room registry.
func (m *Module) Registry() *Registry {
	return m.registry
}

// ListRooms returns all rooms.
func (m *Module) ListRooms() []domain.Room {
	return m.registry.ListRooms()
}

// JoinRoom joins the user to a room and publishes the resulting events.
func (m *Module) JoinRoom(userID, username, roomID string) (*JoinResult, error) {
	result, err := m.registry.JoinRoom(userID, username, roomID)
	if err != nil {
		return nil, err
	}

	if result.PreviousRoomID != "" {
		m.publishUserLeft(result.PreviousRoomID, result.User)
	}
	if !result.AlreadyMember {
		m.publishUserJoined(result)
	}

	m.logger.Info("User joined room", "userID", userID, "roomID", roomID,
		"previousRoomID", result.PreviousRoomID)
	return result, nil
}

// LeaveRoom removes the user from a room and publishes a leave event when
// membership actually changed.
func (m *Module) LeaveRoom(userID, roomID string) (*LeaveResult, error) {
	result, err := m.registry.LeaveRoom(userID, roomID)
	if err != nil {
		return nil, err
	}
	if result.Left {
		m.publishUserLeft(roomID, result.User)
		m.logger.Info("User left room", "userID", userID, "roomID", roomID)
	}
	return result, nil
}

// PostMessage stores a message and publishes a message event.
func (m *Module) PostMessage(userID, username, roomID, content string) (domain.Message, error) {
	msg, err := m.registry.PostMessage(userID, username, roomID, content)
	if err != nil {
		return domain.Message{}, err
	}
	m.publishMessagePosted(msg)
	m.logger.Debug("Message posted", "userID", userID, "roomID", roomID, "messageID", msg.ID)
	return msg, nil
}

// CreateRoom creates a room and publishes a room-created event.
func (m *Module) CreateRoom(name, description string) (domain.Room, error) {
	room, err := m.registry.CreateRoom(name, description)
	if err != nil {
		return domain.Room{}, err
	}
	m.publishRoomCreated(room)
	m.logger.Info("Room created", "roomID", room.ID, "name", room.Name)
	return room, nil
}
