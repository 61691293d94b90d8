// Package storetest holds behaviour checks shared by every store.Store implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NicolasFrouin/chat/internal/store"
)

// Factory returns a fresh, empty store. Implementations register cleanup on t.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGetUser", func(t *testing.T) { testCreateAndGetUser(t, newStore(t)) })
	t.Run("GetUserByNameEarliestWins", func(t *testing.T) { testGetUserByName(t, newStore(t)) })
	t.Run("UpdateUserColor", func(t *testing.T) { testUpdateUserColor(t, newStore(t)) })
	t.Run("ListUsersOrdered", func(t *testing.T) { testListUsers(t, newStore(t)) })
	t.Run("MessageLifecycle", func(t *testing.T) { testMessageLifecycle(t, newStore(t)) })
	t.Run("MessagesOrdered", func(t *testing.T) { testMessagesOrdered(t, newStore(t)) })
	t.Run("MessageUnknownAuthor", func(t *testing.T) { testMessageUnknownAuthor(t, newStore(t)) })
	t.Run("MessageNotFound", func(t *testing.T) { testMessageNotFound(t, newStore(t)) })
}

func testCreateAndGetUser(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, store.Profile{Name: "alice", Color: "#ff0000", Image: "a.png"})
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal("alice", created.Name)
	req.Equal("#ff0000", created.Color)
	req.Equal("a.png", created.Image)
	req.False(created.CreatedAt.IsZero())

	got, err := s.GetUserByID(ctx, created.ID)
	req.NoError(err)
	req.Equal(created.ID, got.ID)
	req.Equal(created.Name, got.Name)

	_, err = s.GetUserByID(ctx, "missing")
	req.ErrorIs(err, store.ErrNotFound)
}

func testGetUserByName(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()

	first, err := s.CreateUser(ctx, store.Profile{Name: "bob", Color: "#000000"})
	req.NoError(err)
	_, err = s.CreateUser(ctx, store.Profile{Name: "bob", Color: "#ffffff"})
	req.NoError(err)

	got, err := s.GetUserByName(ctx, "bob")
	req.NoError(err)
	req.Equal(first.ID, got.ID)

	_, err = s.GetUserByName(ctx, "Bob ")
	req.ErrorIs(err, store.ErrNotFound)
}

func testUpdateUserColor(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, store.Profile{Name: "carol", Color: "#111111"})
	req.NoError(err)

	updated, err := s.UpdateUserColor(ctx, user.ID, "#222222")
	req.NoError(err)
	req.Equal("#222222", updated.Color)
	req.Equal(user.ID, updated.ID)

	got, err := s.GetUserByID(ctx, user.ID)
	req.NoError(err)
	req.Equal("#222222", got.Color)

	_, err = s.UpdateUserColor(ctx, "missing", "#333333")
	req.ErrorIs(err, store.ErrNotFound)
}

func testListUsers(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	req.NoError(err)
	req.Empty(users)

	for _, name := range []string{"u1", "u2", "u3"} {
		_, err := s.CreateUser(ctx, store.Profile{Name: name, Color: "#abcdef"})
		req.NoError(err)
	}

	users, err = s.ListUsers(ctx)
	req.NoError(err)
	req.Len(users, 3)
	req.Equal("u1", users[0].Name)
	req.Equal("u3", users[2].Name)
}

func testMessageLifecycle(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()

	author, err := s.CreateUser(ctx, store.Profile{Name: "dave", Color: "#00ff00"})
	req.NoError(err)

	msg, err := s.CreateMessage(ctx, "hello", author.ID)
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal("hello", msg.Text)
	req.Equal(author.ID, msg.AuthorID)
	req.Equal("dave", msg.Author.Name)
	req.False(msg.Modified)

	edited, err := s.UpdateMessageText(ctx, msg.ID, "hello again")
	req.NoError(err)
	req.Equal("hello again", edited.Text)
	req.True(edited.Modified)
	req.Equal("dave", edited.Author.Name)

	got, err := s.GetMessageByID(ctx, msg.ID)
	req.NoError(err)
	req.Equal("hello again", got.Text)
	req.True(got.Modified)

	req.NoError(s.DeleteMessage(ctx, msg.ID))
	_, err = s.GetMessageByID(ctx, msg.ID)
	req.ErrorIs(err, store.ErrNotFound)

	messages, err := s.ListMessages(ctx)
	req.NoError(err)
	req.Empty(messages)
}

func testMessagesOrdered(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()

	author, err := s.CreateUser(ctx, store.Profile{Name: "erin", Color: "#0000ff"})
	req.NoError(err)

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		_, err := s.CreateMessage(ctx, text, author.ID)
		req.NoError(err)
	}

	_, err = s.UpdateUserColor(ctx, author.ID, "#123456")
	req.NoError(err)

	messages, err := s.ListMessages(ctx)
	req.NoError(err)
	req.Len(messages, len(texts))
	for i, msg := range messages {
		req.Equal(texts[i], msg.Text)
		req.Equal("#123456", msg.Author.Color)
		if i > 0 {
			req.False(msg.CreatedAt.Before(messages[i-1].CreatedAt))
		}
	}
}

func testMessageUnknownAuthor(t *testing.T, s store.Store) {
	_, err := s.CreateMessage(context.Background(), "orphan", "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testMessageNotFound(t *testing.T, s store.Store) {
	req := require.New(t)
	ctx := context.Background()

	_, err := s.UpdateMessageText(ctx, "missing", "text")
	req.ErrorIs(err, store.ErrNotFound)

	err = s.DeleteMessage(ctx, "missing")
	req.ErrorIs(err, store.ErrNotFound)
}
