package chat

import "time"

// User is a connected user as seen by other clients.
// SocketID is the raw connection identifier and is never serialized.
type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	SocketID string    `json:"-"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Message represents a chat message.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"roomId"`
}

// Room represents a chat room.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Users       []User    `json:"users"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
}
