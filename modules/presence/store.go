// Package presence tracks which usernames currently hold a live connection.
// It backs the login check that rejects a username already in use.
package presence

import (
	"context"
	"strings"
)

// Store records username to connection claims. Usernames are compared
// case-insensitively and one username may hold several connections.
type Store interface {
	Claim(ctx context.Context, username, connID string) error
	Release(ctx context.Context, username, connID string) error
	IsActive(ctx context.Context, username string) (bool, error)
	Close() error
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
