package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domain "github.com/example/realtime-chat-server/domain/chat"
	"github.com/example/realtime-chat-server/metrics"
	"github.com/example/realtime-chat-server/modules/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// ErrUnknownConnection is returned for frames on connections that never
// completed the handshake or were already disconnected.
var ErrUnknownConnection = errors.New("unknown connection")

const genericErrorMessage = "internal error"

// Conn is one live client connection. Send is called with the router lock
// held, so it must not block or call back into the router.
type Conn interface {
	ID() string
	Send(Event) error
	Close() error
}

// Rooms is the room registry as seen by the router.
type Rooms interface {
	ListRooms() []domain.Room
	JoinRoom(userID, username, roomID string) (*chat.JoinResult, error)
	LeaveRoom(userID, roomID string) (*chat.LeaveResult, error)
	PostMessage(userID, username, roomID, content string) (domain.Message, error)
	CreateRoom(name, description string) (domain.Room, error)
}

// Presence tracks which usernames currently hold a connection.
type Presence interface {
	Claim(ctx context.Context, username, connID string) error
	Release(ctx context.Context, username, connID string) error
}

type session struct {
	conn     Conn
	username string
}

// Router maps connections to users and rooms, dispatches inbound frames to the
// registry and fans out the results.
type Router struct {
	rooms    Rooms
	presence Presence
	logger   types.Logger

	mu               sync.RWMutex
	connectionToUser map[string]*session
	connectionToRoom map[string]string
	roomConnections  map[string]map[string]struct{}
}

// Option configures a Router.
type Option func(*Router)

// WithPresence registers a presence store that is updated on connect and
// disconnect.
func WithPresence(p Presence) Option {
	return func(r *Router) {
		r.presence = p
	}
}

// New creates a router over the given rooms.
func New(rooms Rooms, logger types.Logger, opts ...Option) *Router {
	r := &Router{
		rooms:            rooms,
		logger:           logger,
		connectionToUser: make(map[string]*session),
		connectionToRoom: make(map[string]string),
		roomConnections:  make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect validates the handshake username and registers the connection.
// On failure an error event is sent and the connection is closed.
func (r *Router) Connect(ctx context.Context, conn Conn, username string) error {
	if err := chat.ValidateUsername(username); err != nil {
		r.sendError(conn, err)
		_ = conn.Close()
		r.logger.Warn("Rejected connection", "connID", conn.ID(), "error", err)
		return err
	}

	if r.presence != nil {
		if err := r.presence.Claim(ctx, username, conn.ID()); err != nil {
			r.logger.Warn("Failed to claim presence", "connID", conn.ID(), "username", username, "error", err)
		}
	}

	r.mu.Lock()
	r.connectionToUser[conn.ID()] = &session{conn: conn, username: username}
	count := len(r.connectionToUser)
	r.send(conn, Event{Name: EventRoomsList, Data: r.rooms.ListRooms()})
	r.mu.Unlock()

	metrics.ConnectedClients.Inc()
	r.logger.Info("Client connected", "connID", conn.ID(), "username", username, "clients", count)
	return nil
}

// Handle processes one inbound frame from connID.
func (r *Router) Handle(ctx context.Context, connID string, raw []byte) (err error) {
	sess, ok := r.session(connID)
	if !ok {
		return ErrUnknownConnection
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic while handling frame", "connID", connID, "panic", rec)
			metrics.ProtocolErrors.WithLabelValues(errorCode(nil)).Inc()
			r.send(sess.conn, Event{Name: EventError, Data: genericErrorMessage})
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	req, err := DecodeRequest(raw)
	if err != nil {
		r.sendError(sess.conn, err)
		return err
	}
	return r.dispatch(connID, req)
}

// dispatch runs a decoded request under mu, so that a registry change, the
// connection index update and the resulting fanout are observed together by
// every other request.
func (r *Router) dispatch(connID string, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.connectionToUser[connID]
	if !ok {
		return ErrUnknownConnection
	}

	var err error
	switch req := req.(type) {
	case GetRoomsRequest:
		r.send(sess.conn, Event{Name: EventRoomsList, Data: r.rooms.ListRooms()})
	case JoinRoomRequest:
		err = r.joinRoomLocked(sess, req.RoomID)
	case LeaveRoomRequest:
		err = r.leaveRoomLocked(sess, req.RoomID)
	case SendMessageRequest:
		err = r.sendMessageLocked(sess, req)
	case CreateRoomRequest:
		err = r.createRoomLocked(req)
	}

	if err != nil {
		r.sendError(sess.conn, err)
	}
	return err
}

func (r *Router) joinRoomLocked(sess *session, roomID string) error {
	connID := sess.conn.ID()
	result, err := r.rooms.JoinRoom(connID, sess.username, roomID)
	if err != nil {
		return err
	}
	r.setRoomLocked(connID, roomID)

	r.send(sess.conn, Event{
		Name: EventRoomJoined,
		Data: RoomJoinedPayload{RoomID: roomID, Messages: result.Messages, Users: result.Users},
	})

	if result.PreviousRoomID != "" {
		r.broadcastLocked(result.PreviousRoomID, Event{
			Name: EventUserLeft,
			Data: UserLeftPayload{UserID: connID, Users: result.PreviousUsers},
		}, connID)
	}
	if !result.AlreadyMember {
		r.broadcastLocked(roomID, Event{
			Name: EventUserJoined,
			Data: UserJoinedPayload{User: result.User, Users: result.Users},
		}, connID)
	}
	return nil
}

func (r *Router) leaveRoomLocked(sess *session, roomID string) error {
	connID := sess.conn.ID()
	result, err := r.rooms.LeaveRoom(connID, roomID)
	if err != nil {
		return err
	}
	if r.connectionToRoom[connID] == roomID {
		r.clearRoomLocked(connID)
	}

	if result.Left {
		r.broadcastLocked(roomID, Event{
			Name: EventUserLeft,
			Data: UserLeftPayload{UserID: connID, Users: result.Users},
		}, connID)
	}
	return nil
}

func (r *Router) sendMessageLocked(sess *session, req SendMessageRequest) error {
	msg, err := r.rooms.PostMessage(sess.conn.ID(), sess.username, req.RoomID, req.Content)
	if err != nil {
		return err
	}
	r.broadcastLocked(req.RoomID, Event{Name: EventNewMessage, Data: msg}, "")
	return nil
}

func (r *Router) createRoomLocked(req CreateRoomRequest) error {
	if _, err := r.rooms.CreateRoom(req.Name, req.Description); err != nil {
		return err
	}
	r.broadcastRoomListLocked()
	return nil
}

// Disconnect removes the connection, leaving its room if it had one. Calling
// it more than once is harmless.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	sess, ok := r.connectionToUser[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	roomID, inRoom := r.connectionToRoom[connID]
	r.clearRoomLocked(connID)
	delete(r.connectionToUser, connID)

	if inRoom {
		result, err := r.rooms.LeaveRoom(connID, roomID)
		if err != nil {
			r.logger.Warn("Failed to leave room on disconnect", "connID", connID, "roomID", roomID, "error", err)
		} else if result.Left {
			r.broadcastLocked(roomID, Event{
				Name: EventUserLeft,
				Data: UserLeftPayload{UserID: connID, Users: result.Users},
			}, connID)
		}
	}
	r.mu.Unlock()

	metrics.ConnectedClients.Dec()

	if r.presence != nil {
		if err := r.presence.Release(ctx, sess.username, connID); err != nil {
			r.logger.Warn("Failed to release presence", "connID", connID, "error", err)
		}
	}

	r.logger.Info("Client disconnected", "connID", connID, "username", sess.username)
}

// BroadcastRoomList pushes the full room list to every connection.
func (r *Router) BroadcastRoomList() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastRoomListLocked()
}

func (r *Router) broadcastRoomListLocked() {
	event := Event{Name: EventRoomsList, Data: r.rooms.ListRooms()}
	for _, sess := range r.connectionToUser {
		r.send(sess.conn, event)
	}
}

// ConnectionCount returns the number of registered connections.
func (r *Router) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectionToUser)
}

// RoomOf returns the room a connection is mapped to.
func (r *Router) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.connectionToRoom[connID]
	return roomID, ok
}

// CloseAll closes every registered connection. The transport is expected to
// call Disconnect for each one as its read loop ends.
func (r *Router) CloseAll() {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.connectionToUser))
	for _, sess := range r.connectionToUser {
		targets = append(targets, sess.conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Close(); err != nil {
			r.logger.Debug("Error closing connection", "connID", conn.ID(), "error", err)
		}
	}
}

func (r *Router) session(connID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.connectionToUser[connID]
	return sess, ok
}

// setRoomLocked must be called with mu held.
func (r *Router) setRoomLocked(connID, roomID string) {
	r.clearRoomLocked(connID)
	r.connectionToRoom[connID] = roomID
	conns, ok := r.roomConnections[roomID]
	if !ok {
		conns = make(map[string]struct{})
		r.roomConnections[roomID] = conns
	}
	conns[connID] = struct{}{}
}

// clearRoomLocked must be called with mu held.
func (r *Router) clearRoomLocked(connID string) {
	roomID, ok := r.connectionToRoom[connID]
	if !ok {
		return
	}
	delete(r.connectionToRoom, connID)
	if conns, ok := r.roomConnections[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.roomConnections, roomID)
		}
	}
}

// broadcastLocked sends event to every connection mapped to roomID except
// skip. Must be called with mu held.
func (r *Router) broadcastLocked(roomID string, event Event, skip string) {
	for connID := range r.roomConnections[roomID] {
		if connID == skip {
			continue
		}
		if sess, ok := r.connectionToUser[connID]; ok {
			r.send(sess.conn, event)
		}
	}
}

func (r *Router) send(conn Conn, event Event) {
	if err := conn.Send(event); err != nil {
		r.logger.Debug("Dropping event for unreachable client",
			"connID", conn.ID(), "event", event.Name, "error", err)
	}
}

func (r *Router) sendError(conn Conn, err error) {
	metrics.ProtocolErrors.WithLabelValues(errorCode(err)).Inc()
	r.send(conn, Event{Name: EventError, Data: errorMessage(err)})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return "MalformedRequest"
	case errors.Is(err, ErrUnknownEvent):
		return "UnknownEvent"
	}
	if code := chat.ErrorCode(err); code != "" {
		return code
	}
	return "Internal"
}

// errorMessage is the text delivered in an error event. Registry errors carry
// their sentinel text; anything unexpected is reported generically.
func errorMessage(err error) string {
	if code := chat.ErrorCode(err); code != "" {
		return chat.ErrorFromCode(code).Error()
	}
	if errors.Is(err, ErrMalformedRequest) || errors.Is(err, ErrUnknownEvent) {
		return err.Error()
	}
	return genericErrorMessage
}
