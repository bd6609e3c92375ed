package chat

import "strings"

// Error codes carried by ERR replies. Codes are stable protocol surface;
// clients branch on them.
const (
	ErrInvalidCommand    = "invalid-command"
	ErrInvalidUsername   = "invalid-username"
	ErrUsernameTaken     = "username-taken"
	ErrAlreadyLoggedIn   = "already-logged-in"
	ErrNotLoggedIn       = "not-logged-in"
	ErrEmptyMessage      = "empty-message"
	ErrUserNotFound      = "user-not-found"
	ErrCannotMessageSelf = "cannot-message-self"
	ErrUnknownCommand    = "unknown-command"
)

const (
	ReplyOK   = "OK"
	ReplyPong = "PONG"
)

// ErrorReply builds an "ERR <code>[ <arg>...]" line.
func ErrorReply(code string, args ...string) string {
	if len(args) == 0 {
		return "ERR " + code
	}
	return "ERR " + code + " " + strings.Join(args, " ")
}

// UserReply builds a "USER <name>" line emitted once per online user by WHO.
func UserReply(name string) string {
	return "USER " + name
}

// BroadcastReply builds the "MSG <from> <text>" line delivered to every
// authenticated session except the sender.
func BroadcastReply(from, text string) string {
	return "MSG " + from + " " + text
}

// DirectReply builds the "DM <from> <text>" line delivered to the target of
// a direct message.
func DirectReply(from, text string) string {
	return "DM " + from + " " + text
}

// InfoReply builds an "INFO <text>" server notice.
func InfoReply(text string) string {
	return "INFO " + text
}
