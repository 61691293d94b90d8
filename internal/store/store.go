package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a user or message does not exist.
var ErrNotFound = errors.New("not found")

// User represents a chat participant.
type User struct {
	ID        string
	Name      string
	Color     string
	Image     string
	CreatedAt time.Time
}

// Profile carries the attributes supplied when a user is created.
type Profile struct {
	Name  string
	Color string
	Image string
}

// Message represents a persisted chat message with its author denormalized.
type Message struct {
	ID        string
	Text      string
	AuthorID  string
	Author    User
	Modified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user from the given profile.
	CreateUser(ctx context.Context, profile Profile) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByName retrieves a user by exact name.
	// When several users share a name the earliest created one wins.
	GetUserByName(ctx context.Context, name string) (*User, error)

	// ListUsers lists all users ordered by creation time.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdateUserColor changes the color of an existing user.
	UpdateUserColor(ctx context.Context, id, color string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message written by authorID.
	// Returns ErrNotFound if the author does not exist.
	CreateMessage(ctx context.Context, text, authorID string) (*Message, error)

	// ListMessages returns all messages, oldest first.
	ListMessages(ctx context.Context) ([]*Message, error)

	// GetMessageByID retrieves a message by ID.
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// UpdateMessageText replaces the text of a message and marks it modified.
	UpdateMessageText(ctx context.Context, id, text string) (*Message, error)

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
