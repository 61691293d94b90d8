package chats

import (
	"context"
	"fmt"
	"strings"

	"github.com/NicolasFrouin/chat/internal/core"
	"github.com/NicolasFrouin/chat/internal/store"
	"github.com/NicolasFrouin/chat/internal/utils"
)

type textInput struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// Service is the ordered message log.
type Service struct {
	store store.MessageStore
}

// New creates a new chats Service.
func New(st store.MessageStore) *Service {
	return &Service{
		store: st,
	}
}

func validText(text string) (string, error) {
	input := textInput{Text: strings.TrimSpace(text)}
	if err := utils.Validate.Struct(input); err != nil {
		return "", fmt.Errorf("%w: %s", core.ErrValidationFailed, utils.ValidationMessage(err))
	}
	return input.Text, nil
}

// Post appends a message written by authorID.
func (s *Service) Post(ctx context.Context, authorID, text string) (*store.Message, error) {
	text, err := validText(text)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, text, authorID)
	if err != nil {
		return nil, fmt.Errorf("post message by %s: %w", authorID, err)
	}
	return msg, nil
}

// Get returns a single message.
func (s *Service) Get(ctx context.Context, id string) (*store.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return msg, nil
}

// List returns every message, oldest first.
func (s *Service) List(ctx context.Context) ([]*store.Message, error) {
	msgs, err := s.store.ListMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Edit replaces the text of a message and marks it modified.
func (s *Service) Edit(ctx context.Context, id, text string) (*store.Message, error) {
	text, err := validText(text)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.UpdateMessageText(ctx, id, text)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return msg, nil
}

// Remove deletes a message and returns it as it was before removal.
func (s *Service) Remove(ctx context.Context, id string) (*store.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	if err := s.store.DeleteMessage(ctx, id); err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return msg, nil
}

var _ core.MessageLog = (*Service)(nil)
