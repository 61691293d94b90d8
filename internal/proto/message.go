package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NicolasFrouin/chat/internal/utils"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
)

// Server event names.
const (
	EventChats             = "chats"
	EventNewChat           = "newChat"
	EventChatUpdated       = "chatUpdated"
	EventChatRemoved       = "chatRemoved"
	EventUserCreated       = "userCreated"
	EventLoginSuccess      = "loginSuccess"
	EventLoginError        = "loginError"
	EventNewUser           = "newUser"
	EventUserJoined        = "userJoined"
	EventUserLeft          = "userLeft"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserUpdated       = "userUpdated"
	EventUpdateError       = "updateError"
	EventError             = "error"
)

// UserData is the profile supplied by createUser and login.
type UserData struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Image string `json:"image,omitempty"`
}

// LoginData identifies the user by id, by profile, or both.
type LoginData struct {
	UserID   string    `json:"userId,omitempty"`
	UserData *UserData `json:"userData,omitempty"`
}

// CreateChatData posts a message as the authenticated user.
type CreateChatData struct {
	Text string `json:"text"`
}

// UpdateChatData edits an existing message.
type UpdateChatData struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text"`
}

// IDData targets a message or user by id.
// It decodes from either {"id": "..."} or a bare JSON string.
type IDData struct {
	ID string `json:"id" validate:"required"`
}

func (d *IDData) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &d.ID)
	}
	type plain IDData
	return json.Unmarshal(b, (*plain)(d))
}

// UpdateUserColorData changes the color of a user.
type UpdateUserColorData struct {
	UserID string `json:"userId" validate:"required"`
	Color  string `json:"color"`
}

// Outbound is the envelope for messages sent to the client.
// Events carry Event and Data; acks additionally carry ID, Success and Message.
type Outbound struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Event   string `json:"event,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// User is the wire form of an identity.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Image string `json:"image,omitempty"`
}

// Chat is the wire form of a message with its author denormalized.
type Chat struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"authorId"`
	Author    User      `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Modified  bool      `json:"modified"`
}

// ChatRemoved notifies that a message was deleted.
type ChatRemoved struct {
	ID string `json:"id"`
}

// UserLeft notifies that an authenticated connection closed.
type UserLeft struct {
	UserID string `json:"userId"`
}

// UserTyping notifies that a user started typing.
type UserTyping struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// UserStoppedTyping notifies that a user stopped typing.
type UserStoppedTyping struct {
	UserID string `json:"userId"`
}

// Error describes a failure reported through a named event.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Decode unmarshals a payload into v and validates it.
// A missing payload leaves v untouched before validation.
func Decode(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, v); err != nil {
			return fmt.Errorf("malformed payload: %w", err)
		}
	}
	if err := utils.Validate.Struct(v); err != nil {
		return errors.New(utils.ValidationMessage(err))
	}
	return nil
}
