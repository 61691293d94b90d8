package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LoggerMiddleware creates a middleware that logs HTTP requests.
// Health probes are logged at debug; websocket upgrades are logged when the
// session ends.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		entry := logger.Info()
		msg := "http request"
		switch {
		case path == "/health":
			entry = logger.Debug()
		case path == "/ws":
			msg = "ws session ended"
		case c.Writer.Status() >= 500:
			entry = logger.Warn()
		}

		entry.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("client_ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg(msg)
	}
}
