package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync/internal/log"
	"github.com/vovakirdan/roomsync/internal/proto"
)

type incoming struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	logger := log.New("info", "console")
	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("ws_smoke failed")
		os.Exit(1)
	}
	logger.Info().Msg("ws_smoke passed")
}

// run joins a room, sends one message, reacts to it and waits for both broadcasts.
func run(logger *zerolog.Logger) error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "display name to announce with hello")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	await := func(event string) (json.RawMessage, error) {
		for {
			var in incoming
			if err := wsjson.Read(ctx, conn, &in); err != nil {
				return nil, fmt.Errorf("waiting for %s: %w", event, err)
			}
			if in.Type == proto.OutboundTypeError && in.Error != nil {
				return nil, fmt.Errorf("server error %s: %s", in.Error.Code, in.Error.Msg)
			}
			logger.Debug().Str("event", in.Event).RawJSON("data", in.Data).Msg("received")
			if in.Event == event {
				return in.Data, nil
			}
		}
	}

	if err := send(proto.InboundTypeHello, proto.HelloData{User: *user, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: *room}); err != nil {
		return err
	}
	if _, err := await(proto.EventLoadMessages); err != nil {
		return err
	}

	if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{Room: *room, Text: *text}); err != nil {
		return err
	}
	raw, err := await(proto.EventNewMessage)
	if err != nil {
		return err
	}
	var msg proto.EventMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode newMessage: %w", err)
	}
	logger.Info().Int64("message_id", msg.ID).Str("text", msg.Text).Msg("message broadcast")

	if err := send(proto.InboundTypeReactMessage, proto.ReactMessageData{MessageID: msg.ID, ReactionLabel: "ok", Room: *room}); err != nil {
		return err
	}
	if _, err := await(proto.EventUpdateMessage); err != nil {
		return err
	}

	return conn.Close(websocket.StatusNormalClosure, "bye")
}
