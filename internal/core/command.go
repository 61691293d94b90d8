package core

import "github.com/NicolasFrouin/chat/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandCreateUser registers a new identity and authenticates the connection.
	CommandCreateUser CommandKind = iota
	// CommandLogin resolves (or creates) an identity and authenticates the connection.
	CommandLogin
	// CommandCreateChat posts a message as the authenticated identity.
	CommandCreateChat
	// CommandUpdateChat edits the text of a message.
	CommandUpdateChat
	// CommandRemoveChat deletes a message.
	CommandRemoveChat
	// CommandFindAllChats lists every message.
	CommandFindAllChats
	// CommandFindOneChat fetches a message by id.
	CommandFindOneChat
	// CommandFindAllUsers lists every identity.
	CommandFindAllUsers
	// CommandFindOneUser fetches an identity by id.
	CommandFindOneUser
	// CommandWhoAmI returns the identity bound to the connection.
	CommandWhoAmI
	// CommandUpdateUserColor changes the color of an identity.
	CommandUpdateUserColor
	// CommandStartTyping marks the identity as composing a message.
	CommandStartTyping
	// CommandStopTyping clears the typing mark.
	CommandStopTyping

	// Internal commands produced by the hub itself.
	commandConnect
	commandDisconnect
	commandTypingExpired
)

var commandNames = map[CommandKind]string{
	CommandCreateUser:      "createUser",
	CommandLogin:           "login",
	CommandCreateChat:      "createChat",
	CommandUpdateChat:      "updateChat",
	CommandRemoveChat:      "removeChat",
	CommandFindAllChats:    "findAllChats",
	CommandFindOneChat:     "findOneChat",
	CommandFindAllUsers:    "findAllUsers",
	CommandFindOneUser:     "findOneUser",
	CommandWhoAmI:          "whoami",
	CommandUpdateUserColor: "updateUserColor",
	CommandStartTyping:     "startTyping",
	CommandStopTyping:      "stopTyping",
	commandConnect:         "connect",
	commandDisconnect:      "disconnect",
	commandTypingExpired:   "typingExpired",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	// RequestID is echoed back in the acknowledgement.
	RequestID string

	// UserID targets an identity (login, updateUserColor, findOneUser).
	UserID string
	// Profile carries user data for createUser and login.
	Profile *store.Profile
	// ID targets a message (updateChat, removeChat, findOneChat).
	ID    string
	Text  string
	Color string

	// generation guards typing expiry against refreshed typing state.
	generation uint64
}

// ParseCommandKind maps a wire intent name onto a client command kind.
// Internal commands are never returned.
func ParseCommandKind(name string) (CommandKind, bool) {
	for kind, n := range commandNames {
		if n == name && kind < commandConnect {
			return kind, true
		}
	}
	return 0, false
}
