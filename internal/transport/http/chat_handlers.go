package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NicolasFrouin/chat/internal/core"
)

// ChatHandlers serves the request/response chat routes.
// They share the message log with the hub but do not broadcast.
type ChatHandlers struct {
	chats core.MessageLog
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(chats core.MessageLog, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		chats: chats,
		log:   logger,
	}
}

// CreateChatRequest represents the create chat request body.
type CreateChatRequest struct {
	Text     string `json:"text" binding:"required"`
	AuthorID string `json:"authorId" binding:"required"`
}

// CreateChat handles message creation.
// POST /api/chats
func (h *ChatHandlers) CreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chats.Post(c.Request.Context(), req.AuthorID, req.Text)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, chatToProto(msg))
}

// ListChats returns every message, oldest first.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	msgs, err := h.chats.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, chatsToProto(msgs))
}

// GetChat returns a single message.
// GET /api/chats/:id
func (h *ChatHandlers) GetChat(c *gin.Context) {
	msg, err := h.chats.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, chatToProto(msg))
}

// RemoveChat deletes a message and returns it.
// DELETE /api/chats/:id
func (h *ChatHandlers) RemoveChat(c *gin.Context) {
	msg, err := h.chats.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, chatToProto(msg))
}
