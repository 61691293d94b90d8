package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/NicolasFrouin/chat/internal/core"
	"github.com/NicolasFrouin/chat/internal/store"
	"github.com/NicolasFrouin/chat/internal/utils"
)

type profileInput struct {
	Name  string `json:"name" validate:"required,max=64"`
	Color string `json:"color" validate:"required,hexcolor"`
	Image string `json:"image" validate:"omitempty,max=2048"`
}

type colorInput struct {
	Color string `json:"color" validate:"required,hexcolor"`
}

// Service is the identity directory.
type Service struct {
	store store.UserStore
}

// New creates a new identity Service.
func New(st store.UserStore) *Service {
	return &Service{
		store: st,
	}
}

// Create registers a new user after validating its profile.
func (s *Service) Create(ctx context.Context, profile store.Profile) (*store.User, error) {
	input := profileInput{
		Name:  strings.TrimSpace(profile.Name),
		Color: strings.TrimSpace(profile.Color),
		Image: strings.TrimSpace(profile.Image),
	}
	if err := utils.Validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrValidationFailed, utils.ValidationMessage(err))
	}

	user, err := s.store.CreateUser(ctx, store.Profile{Name: input.Name, Color: input.Color, Image: input.Image})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user with id %s: %w", id, err)
	}
	return user, nil
}

// FindByName returns the earliest user registered under name.
func (s *Service) FindByName(ctx context.Context, name string) (*store.User, error) {
	user, err := s.store.GetUserByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("user named %q: %w", name, err)
	}
	return user, nil
}

// List returns all users, oldest first.
func (s *Service) List(ctx context.Context) ([]*store.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateColor changes the color of a user.
func (s *Service) UpdateColor(ctx context.Context, id, color string) (*store.User, error) {
	input := colorInput{Color: strings.TrimSpace(color)}
	if err := utils.Validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrValidationFailed, utils.ValidationMessage(err))
	}

	user, err := s.store.UpdateUserColor(ctx, id, input.Color)
	if err != nil {
		return nil, fmt.Errorf("user with id %s: %w", id, err)
	}
	return user, nil
}

var _ core.Directory = (*Service)(nil)
