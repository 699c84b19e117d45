package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/example/realtime-chat-server/domain/chat"
	"github.com/google/uuid"
	gonanoid "github.com/jaevor/go-nanoid"
)

const (
	// DefaultMaxHistory is the maximum number of messages kept per room.
	DefaultMaxHistory = 1000

	// RecentHistoryLimit is how many messages a joining user receives.
	RecentHistoryLimit = 50

	roomIDLength = 12
)

// DefaultRooms are the rooms every registry starts with.
var DefaultRooms = []struct {
	ID, Name, Description string
}{
	{"general", "General", "General discussion"},
	{"random", "Random", "Off-topic conversations"},
	{"tech", "Tech", "Technology and programming"},
	{"gaming", "Gaming", "Games and gaming culture"},
}

// JoinResult describes the state after a successful JoinRoom.
type JoinResult struct {
	RoomID   string
	User     domain.User
	Users    []domain.User
	Messages []domain.Message

	// AlreadyMember is set when the user re-joined the room it was in.
	AlreadyMember bool

	// PreviousRoomID and PreviousUsers are set when the join moved the user
	// out of another room.
	PreviousRoomID string
	PreviousUsers  []domain.User
}

// LeaveResult describes the state after LeaveRoom.
type LeaveResult struct {
	RoomID string
	// Left is false when the user was not a member, in which case nothing changed.
	Left  bool
	User  domain.User
	Users []domain.User
}

type room struct {
	id          string
	name        string
	description string
	users       []domain.User
	messages    []domain.Message
	createdAt   time.Time
}

// Registry is the canonical in-memory store of rooms, their members and their
// message history. Every operation holds a single lock for its full
// check-then-act sequence.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*room
	order      []string
	names      map[string]string // lower-cased name -> roomID
	memberOf   map[string]string // userID -> roomID
	maxHistory int
	now        func() time.Time
	newRoomID  func() string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxHistory sets the per-room history bound.
func WithMaxHistory(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxHistory = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithRoomIDGenerator replaces the nanoid generator used for new rooms.
func WithRoomIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) {
		r.newRoomID = gen
	}
}

// NewRegistry creates a registry seeded with DefaultRooms.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:      make(map[string]*room),
		names:      make(map[string]string),
		memberOf:   make(map[string]string),
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.newRoomID == nil {
		r.newRoomID = mustNanoID(roomIDLength)
	}

	for _, d := range DefaultRooms {
		r.insertRoom(d.ID, d.Name, d.Description)
	}
	return r
}

func mustNanoID(length int) func() string {
	gen, err := gonanoid.Standard(length)
	if err != nil {
		panic(fmt.Sprintf("chat: nanoid generator: %v", err))
	}
	return gen
}

// insertRoom must be called with mu held (or before the registry is shared).
func (r *Registry) insertRoom(id, name, description string) *room {
	rm := &room{
		id:          id,
		name:        name,
		description: description,
		users:       make([]domain.User, 0),
		messages:    make([]domain.Message, 0),
		createdAt:   r.now(),
	}
	r.rooms[id] = rm
	r.order = append(r.order, id)
	r.names[strings.ToLower(name)] = id
	return rm
}

// ListRooms returns every room in creation order with its members and most
// recent messages.
func (r *Registry) ListRooms() []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Room, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.snapshot(r.rooms[id], RecentHistoryLimit))
	}
	return result
}

// GetRoom returns a single room with its most recent messages.
func (r *Registry) GetRoom(roomID string) (domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return domain.Room{}, ErrRoomNotFound
	}
	return r.snapshot(rm, RecentHistoryLimit), nil
}

// History returns up to limit of the most recent messages of a room, oldest
// first. A non-positive limit returns the full history.
func (r *Registry) History(roomID string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return lastMessages(rm.messages, limit), nil
}

// Members returns the current members of a room in join order.
func (r *Registry) Members(roomID string) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return copyUsers(rm.users), nil
}

// RoomOf returns the room a user is currently in.
func (r *Registry) RoomOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.memberOf[userID]
	return roomID, ok
}

// JoinRoom adds the user to roomID, removing it from any other room first.
func (r *Registry) JoinRoom(userID, username, roomID string) (*JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	result := &JoinResult{RoomID: roomID}
	now := r.now()

	if prevID, ok := r.memberOf[userID]; ok {
		if prevID == roomID {
			result.AlreadyMember = true
		} else if prev, ok := r.rooms[prevID]; ok {
			prev.users, _ = removeUser(prev.users, userID)
			result.PreviousRoomID = prevID
			result.PreviousUsers = copyUsers(prev.users)
		}
	}

	user := domain.User{
		ID:       userID,
		Username: username,
		SocketID: userID,
		JoinedAt: now,
	}
	if result.AlreadyMember {
		for i := range rm.users {
			if rm.users[i].ID == userID {
				rm.users[i].JoinedAt = now
			}
		}
	} else {
		rm.users = append(rm.users, user)
	}
	r.memberOf[userID] = roomID

	result.User = user
	result.Users = copyUsers(rm.users)
	result.Messages = lastMessages(rm.messages, RecentHistoryLimit)
	return result, nil
}

// LeaveRoom removes the user from roomID. Leaving a room the user is not in
// is not an error; the result then reports Left == false.
func (r *Registry) LeaveRoom(userID, roomID string) (*LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	result := &LeaveResult{RoomID: roomID}
	var removed domain.User
	rm.users, removed = removeUser(rm.users, userID)
	if removed.ID != "" {
		result.Left = true
		result.User = removed
		if r.memberOf[userID] == roomID {
			delete(r.memberOf, userID)
		}
	}
	result.Users = copyUsers(rm.users)
	return result, nil
}

// PostMessage sanitizes rawContent and appends it to the room history.
func (r *Registry) PostMessage(userID, username, roomID, rawContent string) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return domain.Message{}, ErrRoomNotFound
	}
	if !hasUser(rm.users, userID) {
		return domain.Message{}, ErrNotAMember
	}
	content, err := SanitizeMessage(rawContent)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:        uuid.New().String(),
		Content:   content,
		UserID:    userID,
		Username:  username,
		Timestamp: r.now(),
		RoomID:    roomID,
	}

	rm.messages = append(rm.messages, msg)
	if len(rm.messages) > r.maxHistory {
		rm.messages = rm.messages[len(rm.messages)-r.maxHistory:]
	}
	return msg, nil
}

// CreateRoom creates a room with a generated id. Names are unique
// case-insensitively.
func (r *Registry) CreateRoom(name, description string) (domain.Room, error) {
	name, err := NormalizeRoomName(name)
	if err != nil {
		return domain.Room{}, err
	}
	description = strings.TrimSpace(description)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[strings.ToLower(name)]; exists {
		return domain.Room{}, ErrDuplicateName
	}

	id := r.newRoomID()
	for r.rooms[id] != nil {
		id = r.newRoomID()
	}

	rm := r.insertRoom(id, name, description)
	return r.snapshot(rm, RecentHistoryLimit), nil
}

// snapshot copies a room so callers never share slices with the registry.
func (r *Registry) snapshot(rm *room, historyLimit int) domain.Room {
	return domain.Room{
		ID:          rm.id,
		Name:        rm.name,
		Description: rm.description,
		Users:       copyUsers(rm.users),
		Messages:    lastMessages(rm.messages, historyLimit),
		CreatedAt:   rm.createdAt,
	}
}

func lastMessages(messages []domain.Message, limit int) []domain.Message {
	if limit <= 0 || limit > len(messages) {
		limit = len(messages)
	}
	result := make([]domain.Message, limit)
	copy(result, messages[len(messages)-limit:])
	return result
}

func copyUsers(users []domain.User) []domain.User {
	result := make([]domain.User, len(users))
	copy(result, users)
	return result
}

func hasUser(users []domain.User, userID string) bool {
	for _, u := range users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// removeUser deletes userID from users, preserving order.
func removeUser(users []domain.User, userID string) ([]domain.User, domain.User) {
	for i, u := range users {
		if u.ID == userID {
			return append(users[:i], users[i+1:]...), u
		}
	}
	return users, domain.User{}
}
