package core

import (
	"context"

	"github.com/NicolasFrouin/chat/internal/store"
)

// Directory abstracts identity lookups and mutations for the Hub.
type Directory interface {
	// Create registers a new identity from profile data.
	Create(ctx context.Context, profile store.Profile) (*store.User, error)

	// Get retrieves an identity by id.
	Get(ctx context.Context, id string) (*store.User, error)

	// FindByName retrieves an identity by exact display name.
	FindByName(ctx context.Context, name string) (*store.User, error)

	// List returns every identity.
	List(ctx context.Context) ([]*store.User, error)

	// UpdateColor changes the color of an identity.
	UpdateColor(ctx context.Context, id, color string) (*store.User, error)
}

// MessageLog abstracts the ordered message collection for the Hub.
type MessageLog interface {
	// Post appends a message written by authorID.
	Post(ctx context.Context, authorID, text string) (*store.Message, error)

	// Get retrieves a message by id.
	Get(ctx context.Context, id string) (*store.Message, error)

	// List returns every message, oldest first.
	List(ctx context.Context) ([]*store.Message, error)

	// Edit replaces the text of a message and marks it modified.
	Edit(ctx context.Context, id, text string) (*store.Message, error)

	// Remove deletes a message and returns what was removed.
	Remove(ctx context.Context, id string) (*store.Message, error)
}
