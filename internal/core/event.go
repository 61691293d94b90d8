package core

import "github.com/NicolasFrouin/chat/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChats delivers the full message list to one connection.
	EventChats EventKind = iota
	// EventNewChat notifies everyone about a posted message.
	EventNewChat
	// EventChatUpdated notifies everyone about an edited message.
	EventChatUpdated
	// EventChatRemoved notifies everyone that a message was deleted.
	EventChatRemoved
	// EventUserCreated confirms registration to the registering connection.
	EventUserCreated
	// EventLoginSuccess confirms login to the connection that logged in.
	EventLoginSuccess
	// EventLoginError reports a failed login or registration.
	EventLoginError
	// EventNewUser notifies everyone about a registered identity.
	EventNewUser
	// EventUserJoined notifies everyone that an identity logged in.
	EventUserJoined
	// EventUserLeft notifies everyone that an authenticated connection closed.
	EventUserLeft
	// EventUserTyping notifies everyone that an identity started typing.
	EventUserTyping
	// EventUserStoppedTyping notifies everyone that an identity stopped typing.
	EventUserStoppedTyping
	// EventUserUpdated notifies everyone about a profile change.
	EventUserUpdated
	// EventUpdateError reports a failed profile update.
	EventUpdateError
	// EventError reports a generic failure.
	EventError
	// EventAck answers a single command on the originating connection.
	EventAck
)

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated once emitted.
type Event struct {
	Kind EventKind

	User     *store.User
	Users    []*store.User
	Message  *store.Message
	Messages []*store.Message

	UserID    string
	UserName  string
	MessageID string

	Error *CoreError
	Ack   *Ack
}

// Ack describes the outcome of one command.
type Ack struct {
	RequestID string
	Command   CommandKind
	Success   bool
}
