package chat

import "errors"

// Sentinel errors for chat operations. Each maps to a stable error code
// that clients and the request-reply services exchange.
var (
	ErrMissingUsername = errors.New("username is required")
	ErrInvalidUsername = errors.New("username must be 2-20 characters of letters, digits, underscore or hyphen")
	ErrUsernameTaken   = errors.New("username is already in use")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAMember      = errors.New("you are not a member of this room")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds 500 characters")
	ErrInvalidName     = errors.New("room name must be between 2 and 50 characters")
	ErrDuplicateName   = errors.New("a room with this name already exists")
)

// Error codes.
const (
	CodeMissingUsername = "MissingUsername"
	CodeInvalidUsername = "InvalidUsername"
	CodeUsernameTaken   = "UsernameTaken"
	CodeRoomNotFound    = "RoomNotFound"
	CodeNotAMember      = "NotAMember"
	CodeEmptyMessage    = "EmptyMessage"
	CodeMessageTooLong  = "MessageTooLong"
	CodeInvalidName     = "InvalidName"
	CodeDuplicateName   = "DuplicateName"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeMissingUsername, ErrMissingUsername},
	{CodeInvalidUsername, ErrInvalidUsername},
	{CodeUsernameTaken, ErrUsernameTaken},
	{CodeRoomNotFound, ErrRoomNotFound},
	{CodeNotAMember, ErrNotAMember},
	{CodeEmptyMessage, ErrEmptyMessage},
	{CodeMessageTooLong, ErrMessageTooLong},
	{CodeInvalidName, ErrInvalidName},
	{CodeDuplicateName, ErrDuplicateName},
}

// ErrorCode returns the stable code for a chat error, or "" when err is not
// one of the sentinel errors above.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ErrorFromCode is the inverse of ErrorCode. Unknown codes yield nil.
func ErrorFromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// IsClientError reports whether err belongs to the chat error taxonomy and is
// therefore safe to show to the requesting client verbatim.
func IsClientError(err error) bool {
	return ErrorCode(err) != ""
}
