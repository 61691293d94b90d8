package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/NicolasFrouin/chat/internal/config"
	"github.com/NicolasFrouin/chat/internal/core"
	"github.com/NicolasFrouin/chat/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds an HTTP server with the websocket endpoint and REST routes.
func NewServer(hub Hub, directory core.Directory, chats core.MessageLog, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg, logger)))

	chatHandlers := NewChatHandlers(chats, logger)
	userHandlers := NewUserHandlers(directory, hub, logger)

	api := router.Group("/api")
	{
		api.POST("/chats", chatHandlers.CreateChat)
		api.GET("/chats", chatHandlers.ListChats)
		api.GET("/chats/:id", chatHandlers.GetChat)
		api.DELETE("/chats/:id", chatHandlers.RemoveChat)

		api.GET("/users", userHandlers.ListUsers)
		api.GET("/users/:id", userHandlers.GetUser)
		api.GET("/presence", userHandlers.Presence)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// writeError maps a service error onto an HTTP status.
func writeError(c *gin.Context, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrValidationFailed):
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(stdhttp.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
