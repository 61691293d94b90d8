package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NicolasFrouin/chat/internal/core"
)

// UserHandlers provides HTTP handlers for user and presence lookups.
type UserHandlers struct {
	directory core.Directory
	hub       Hub
	log       *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(directory core.Directory, hub Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		directory: directory,
		hub:       hub,
		log:       logger,
	}
}

// PresenceResponse is a snapshot of connected and typing users.
type PresenceResponse struct {
	Online      []string `json:"online"`
	Typing      []string `json:"typing"`
	Connections int      `json:"connections"`
}

// ListUsers returns every registered user.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	users, err := h.directory.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, usersToProto(users))
}

// GetUser returns a single user.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	user, err := h.directory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, userToProto(user))
}

// Presence reports who is online and who is typing.
// GET /api/presence
func (h *UserHandlers) Presence(c *gin.Context) {
	p := h.hub.Presence()
	c.JSON(http.StatusOK, PresenceResponse{
		Online:      p.Online,
		Typing:      p.Typing,
		Connections: p.Connections,
	})
}
