package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/realtime-chat-server/events"
	"github.com/example/realtime-chat-server/metrics"
	"github.com/example/realtime-chat-server/modules/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// DefaultFeedSize is how many entries the feed keeps.
const DefaultFeedSize = 200

// customRoomLabel is the metric label shared by every created room, which
// keeps label cardinality bounded.
const customRoomLabel = "custom"

// Entry types.
const (
	TypeMessagePosted = "message_posted"
	TypeUserJoined    = "user_joined"
	TypeUserLeft      = "user_left"
	TypeRoomCreated   = "room_created"
)

// Entry is one item of the activity feed.
type Entry struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Module consumes chat events, keeps a bounded feed of recent activity and
// maintains the chat counters.
type Module struct {
	logger types.Logger
	size   int

	mu   sync.RWMutex
	feed []Entry
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates an activity module. A non-positive size uses
// DefaultFeedSize.
func NewModule(logger types.Logger, size int) *Module {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Module{
		logger: logger,
		size:   size,
		feed:   make([]Entry, 0, size),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started", "feedSize", m.size)
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped", "entries", m.Len())
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"entries": m.Len(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessagePostedV1, m.handleMessagePosted, m,
	); err != nil {
		return fmt.Errorf("failed to register MessagePosted consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserJoinedV1, m.handleUserJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserLeftV1, m.handleUserLeft, m,
	); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomCreatedV1, m.handleRoomCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"MessagePosted", "UserJoined", "UserLeft", "RoomCreated"})
	return nil
}

func (m *Module) handleMessagePosted(_ context.Context, event events.MessagePostedEvent, _ *mono.Msg) error {
	metrics.MessagesPosted.WithLabelValues(roomLabel(event.RoomID)).Inc()
	m.record(Entry{
		Type:      TypeMessagePosted,
		RoomID:    event.RoomID,
		UserID:    event.UserID,
		Username:  event.Username,
		Detail:    fmt.Sprintf("%d characters", event.Length),
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, event events.UserJoinedEvent, _ *mono.Msg) error {
	metrics.RoomJoins.Inc()
	entry := Entry{
		Type:      TypeUserJoined,
		RoomID:    event.RoomID,
		UserID:    event.UserID,
		Username:  event.Username,
		Timestamp: event.Timestamp,
	}
	if event.PreviousRoomID != "" {
		entry.Detail = "from " + event.PreviousRoomID
	}
	m.record(entry)
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	metrics.RoomLeaves.Inc()
	m.record(Entry{
		Type:      TypeUserLeft,
		RoomID:    event.RoomID,
		UserID:    event.UserID,
		Username:  event.Username,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	metrics.RoomsCreated.Inc()
	m.record(Entry{
		Type:      TypeRoomCreated,
		RoomID:    event.RoomID,
		Detail:    event.RoomName,
		Timestamp: event.Timestamp,
	})
	m.logger.Debug("Room created", "roomID", event.RoomID, "name", event.RoomName)
	return nil
}

func roomLabel(roomID string) string {
	for _, room := range chat.DefaultRooms {
		if room.ID == roomID {
			return roomID
		}
	}
	return customRoomLabel
}

func (m *Module) record(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feed = append(m.feed, e)
	if over := len(m.feed) - m.size; over > 0 {
		m.feed = append(m.feed[:0], m.feed[over:]...)
	}
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns the whole feed.
func (m *Module) Recent(limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.feed) {
		limit = len(m.feed)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.feed) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.feed[i])
	}
	return out
}

// Len returns the number of entries in the feed.
func (m *Module) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.feed)
}
