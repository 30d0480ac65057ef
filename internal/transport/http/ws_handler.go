package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync/internal/auth"
	"github.com/vovakirdan/roomsync/internal/config"
	"github.com/vovakirdan/roomsync/internal/core"
	"github.com/vovakirdan/roomsync/internal/metrics"
	"github.com/vovakirdan/roomsync/internal/proto"
	"github.com/vovakirdan/roomsync/internal/utils"
)

var errUnsupportedVersion = errors.New("unsupported protocol version")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, cfg: cfg, log: logger}
}

// wsSession is the per-connection state owned by the read loop.
type wsSession struct {
	client  *core.Client
	name    string
	limiter *connLimiter
	log     zerolog.Logger
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	id := utils.NewID()
	sess := &wsSession{
		client:  core.NewClient(id, "", h.cfg.ClientBuffer),
		limiter: newConnLimiter(h.cfg.RateLimit, h.cfg.RateBurst),
		log:     h.log.With().Str("client_id", id).Str("remote", r.RemoteAddr).Logger(),
	}

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	h.hub.RegisterClient(sess.client)
	defer h.hub.UnregisterClient(sess.client)
	sess.log.Info().Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		sess.log.Warn().Err(err).Int("status", int(status)).Msg("ws connection closed with error")
	} else {
		sess.log.Info().Msg("ws disconnected")
	}
	_ = conn.Close(status, reason)
}

// closeStatus maps the loop error to the close frame sent to the peer.
func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, errUnsupportedVersion):
		return websocket.StatusPolicyViolation, err.Error()
	}
	if s := websocket.CloseStatus(err); s != -1 {
		return s, "closing"
	}
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *wsSession) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !sess.limiter.allow() {
			sess.log.Debug().Str("type", inbound.Type).Msg("inbound rate limited")
			if err := writeError(ctx, conn, protoError(core.ErrCodeRateLimited, "too many messages")); err != nil {
				return err
			}
			continue
		}

		if inbound.Type == proto.InboundTypeHello {
			if err := h.handleHello(ctx, conn, sess, inbound); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound, sess.name)
		if protoErr != nil {
			sess.log.Debug().Str("type", inbound.Type).Str("code", protoErr.Code).Msg("rejected inbound")
			if err := writeError(ctx, conn, protoErr); err != nil {
				return err
			}
			continue
		}

		select {
		case sess.client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleHello records the default display name. A token, when present, must be valid
// and its username wins over the self-declared one.
func (h *WSHandler) handleHello(ctx context.Context, conn *websocket.Conn, sess *wsSession, inbound proto.Inbound) error {
	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return writeError(ctx, conn, protoError(core.ErrCodeBadRequest, "malformed hello data"))
	}

	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		msg := fmt.Sprintf("protocol %d not supported, server speaks %d", hello.Protocol, proto.ProtocolVersion)
		if err := writeError(ctx, conn, protoError(core.ErrCodeUnsupportedVersion, msg)); err != nil {
			return err
		}
		return errUnsupportedVersion
	}

	if hello.Token != "" {
		claims, err := h.auth.ValidateToken(hello.Token)
		if err != nil {
			sess.log.Debug().Err(err).Msg("hello token rejected")
			return writeError(ctx, conn, protoError(core.ErrCodeUnauthorized, "invalid token"))
		}
		sess.name = claims.Username
		sess.log.Debug().Str("name", sess.name).Msg("hello authenticated")
		return nil
	}

	sess.name = hello.User
	sess.log.Debug().Str("name", sess.name).Msg("hello")
	return nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *wsSession) error {
	for {
		select {
		case event, ok := <-sess.client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				sess.log.Error().Err(err).Str("event", event.Kind.String()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, e *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: e})
}
