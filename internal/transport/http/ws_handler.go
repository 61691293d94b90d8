package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/NicolasFrouin/chat/internal/config"
	"github.com/NicolasFrouin/chat/internal/core"
	"github.com/NicolasFrouin/chat/internal/proto"
	"github.com/NicolasFrouin/chat/internal/utils"
)

const msgRateLimited = "rate limit exceeded"

// Hub is the part of the core coordinator the transport talks to.
type Hub interface {
	RegisterClient(client *core.Client)
	UnregisterClient(client *core.Client)
	Submit(ctx context.Context, client *core.Client, cmd *core.Command) error
	Presence() core.Presence
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub Hub
	cfg config.Config
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub Hub, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	opts := &websocket.AcceptOptions{}
	if len(h.cfg.AllowedOrigins) > 0 {
		opts.OriginPatterns = h.cfg.AllowedOrigins
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), h.cfg.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute, time.Minute)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("malformed inbound")
			if err := h.write(ctx, conn, errorEvent(proto.EventError, &core.CoreError{
				Code:    core.ErrCodeBadRequest,
				Message: "malformed message",
			})); err != nil {
				return err
			}
			continue
		}

		cmd, err := inboundToCommand(inbound)
		if err == nil && !limiter.allow() {
			h.log.Debug().Str("conn_id", client.ID).Stringer("command", cmd.Kind).Msg("rate limited")
			if err := h.write(ctx, conn, failedAck(cmd, core.ErrCodeRateLimited, msgRateLimited)); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Str("type", inbound.Type).Msg("rejected inbound")
			out := errorEvent(proto.EventError, &core.CoreError{Code: core.ErrCodeBadRequest, Message: err.Error()})
			if cmd != nil {
				out = failedAck(cmd, core.ErrCodeValidationFailed, err.Error())
			}
			if err := h.write(ctx, conn, out); err != nil {
				return err
			}
			continue
		}

		if err := h.hub.Submit(ctx, client, cmd); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// write is safe to call from both loops; the connection serializes writers.
func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	return wsjson.Write(ctx, conn, out)
}
