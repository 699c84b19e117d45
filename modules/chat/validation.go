package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation constants
const (
	MinUsernameLength = 2
	MaxUsernameLength = 20
	MinRoomNameLength = 2
	MaxRoomNameLength = 50
	MaxMessageLength  = 500
)

var (
	usernamePattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{2,20}$`)
	scriptBlockPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

	// An opening tag with no closing tag swallows the rest of the content.
	openScriptPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*$`)
)

// ValidateUsername validates a handshake username.
func ValidateUsername(username string) error {
	if username == "" {
		return ErrMissingUsername
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// NormalizeRoomName trims name and checks its length in characters.
func NormalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinRoomNameLength || n > MaxRoomNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// SanitizeMessage strips script blocks and surrounding whitespace from raw
// message content and enforces the length bounds.
func SanitizeMessage(raw string) (string, error) {
	content := strings.ToValidUTF8(raw, "")
	content = stripScripts(content)
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return content, nil
}

// stripScripts removes script blocks until none remain, so that removing an
// inner block cannot splice a new one together, then drops an unterminated
// trailing block.
func stripScripts(content string) string {
	for {
		stripped := scriptBlockPattern.ReplaceAllString(content, "")
		if stripped == content {
			break
		}
		content = stripped
	}
	return openScriptPattern.ReplaceAllString(content, "")
}
