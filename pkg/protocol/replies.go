package protocol

import "fmt"

// Error reasons sent as "ERR <reason>" lines.
const (
	ReasonMissingUsername = "missing-username"
	ReasonAlreadyLoggedIn = "already-logged-in"
	ReasonInvalidUsername = "invalid-username"
	ReasonUsernameTaken   = "username-taken"
	ReasonNotLoggedIn     = "not-logged-in"
	ReasonEmptyMessage    = "empty-message"
	ReasonInvalidDMFormat = "invalid-dm-format"
	ReasonCannotDMSelf    = "cannot-dm-self"
	ReasonUserNotFound    = "user-not-found"
	ReasonMessageTooLong  = "message-too-long"
	ReasonIdleTimeout     = "idle-timeout"
)

// OK is the reply to a successful LOGIN.
const OK = "OK"

// Pong is the reply to PING. No login required.
const Pong = "PONG"

// InfoNoUsers is the WHO reply when nobody holds a username.
const InfoNoUsers = "INFO no-users"

// InfoShutdown is broadcast to every live session before the server exits.
const InfoShutdown = "INFO server-shutting-down"

// Err formats an error reply line.
func Err(reason string) string {
	return "ERR " + reason
}

// ErrUnknownCommand formats the reply for an unrecognized verb. The verb is
// echoed in its canonical uppercase form.
func ErrUnknownCommand(verb string) string {
	return fmt.Sprintf("ERR unknown-command: %s", verb)
}

// UserLine formats one WHO result line.
func UserLine(name string) string {
	return "USER " + name
}

// Joined formats the join notice broadcast to other sessions after a
// successful LOGIN.
func Joined(name string) string {
	return fmt.Sprintf("INFO %s joined", name)
}

// Disconnected formats the departure announcement for a logged-in user.
func Disconnected(name string) string {
	return fmt.Sprintf("INFO %s disconnected", name)
}

// Broadcast formats a chat message fanned out to all sessions, sender
// included.
func Broadcast(sender, text string) string {
	return fmt.Sprintf("MSG %s %s", sender, text)
}

// DirectMessage formats the line delivered to a DM target.
func DirectMessage(sender, text string) string {
	return fmt.Sprintf("DM %s %s", sender, text)
}

// DMSent formats the delivery confirmation returned to a DM sender.
func DMSent(target string) string {
	return fmt.Sprintf("DM-SENT %s", target)
}
