package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync/internal/log"
	"github.com/vovakirdan/roomsync/internal/proto"
)

// incoming mirrors proto.Outbound with undecoded data.
type incoming struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	logger := log.New("info", "console")
	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("ws_chat failed")
		os.Exit(1)
	}
}

func run(logger *zerolog.Logger) error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "display name")
	token := flag.String("token", "", "JWT from /api/login or /api/guest")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	c := &chat{conn: conn, room: *room, log: logger}
	if err := c.send(ctx, proto.InboundTypeHello, proto.HelloData{User: *user, Token: *token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := c.send(ctx, proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: *room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type to chat. Commands: /join ROOM, /leave, /react ID LABEL, /pin ID, /unpin ID, /delete ID")

	go func() {
		defer cancel()
		c.readLoop(ctx)
	}()

	c.inputLoop(ctx)
	return conn.Close(websocket.StatusNormalClosure, "bye")
}

type chat struct {
	conn *websocket.Conn
	room string
	log  *zerolog.Logger
}

func (c *chat) send(ctx context.Context, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func (c *chat) readLoop(ctx context.Context) {
	for {
		var in incoming
		if err := wsjson.Read(ctx, c.conn, &in); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			c.log.Warn().Err(err).Msg("read error")
			return
		}
		c.print(in)
	}
}

func (c *chat) print(in incoming) {
	if in.Type == proto.OutboundTypeError && in.Error != nil {
		fmt.Printf("! %s: %s\n", in.Error.Code, in.Error.Msg)
		return
	}

	switch in.Event {
	case proto.EventPresence:
		var evt proto.EventPresenceData
		if json.Unmarshal(in.Data, &evt) == nil {
			fmt.Printf("[%s] here: %s\n", evt.Room, strings.Join(evt.Users, ", "))
		}
	case proto.EventLoadMessages:
		var evt proto.EventLoadMessagesData
		if json.Unmarshal(in.Data, &evt) == nil {
			for _, msg := range evt.Messages {
				printMessage("", msg)
			}
		}
	case proto.EventNewMessage:
		var msg proto.EventMessage
		if json.Unmarshal(in.Data, &msg) == nil {
			printMessage("", msg)
		}
	case proto.EventUpdateMessage:
		var msg proto.EventMessage
		if json.Unmarshal(in.Data, &msg) == nil {
			printMessage("~ ", msg)
		}
	case proto.EventDeletedMessage:
		var evt proto.EventDeletedMessageData
		if json.Unmarshal(in.Data, &evt) == nil {
			fmt.Printf("- message #%d deleted\n", evt.MessageID)
		}
	case proto.EventMessageError:
		var evt proto.EventMessageErrorData
		if json.Unmarshal(in.Data, &evt) == nil {
			fmt.Printf("! %s\n", evt.Error)
		}
	default:
		fmt.Printf("event=%s data=%s\n", in.Event, in.Data)
	}
}

func printMessage(prefix string, msg proto.EventMessage) {
	var extras []string
	if msg.Pinned {
		extras = append(extras, "pinned")
	}
	for _, label := range slices.Sorted(maps.Keys(msg.Reactions)) {
		extras = append(extras, fmt.Sprintf("%s×%d", label, msg.Reactions[label]))
	}
	suffix := ""
	if len(extras) > 0 {
		suffix = " (" + strings.Join(extras, " ") + ")"
	}
	fmt.Printf("%s[%s] #%d %s: %s%s\n", prefix, msg.Room, msg.ID, msg.DisplayName, msg.Text, suffix)
}

func (c *chat) inputLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := c.handleLine(ctx, strings.TrimSpace(line)); err != nil {
				c.log.Warn().Err(err).Msg("command failed")
				return
			}
		}
	}
}

func (c *chat) handleLine(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.send(ctx, proto.InboundTypeSendMessage, proto.SendMessageData{Room: c.room, Text: line})
	}

	fields := strings.Fields(line)
	msgID := func(i int) (int64, bool) {
		if len(fields) <= i {
			return 0, false
		}
		id, err := strconv.ParseInt(fields[i], 10, 64)
		return id, err == nil
	}

	switch fields[0] {
	case "/join":
		if len(fields) < 2 {
			break
		}
		c.room = fields[1]
		return c.send(ctx, proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: c.room})
	case "/leave":
		return c.send(ctx, proto.InboundTypeLeaveRoom, proto.LeaveRoomData{Room: c.room})
	case "/react":
		if id, ok := msgID(1); ok && len(fields) > 2 {
			return c.send(ctx, proto.InboundTypeReactMessage, proto.ReactMessageData{MessageID: id, ReactionLabel: fields[2], Room: c.room})
		}
	case "/pin", "/unpin", "/delete":
		types := map[string]string{
			"/pin":    proto.InboundTypePinMessage,
			"/unpin":  proto.InboundTypeUnpinMessage,
			"/delete": proto.InboundTypeDeleteMessage,
		}
		if id, ok := msgID(1); ok {
			return c.send(ctx, types[fields[0]], proto.MessageRefData{MessageID: id, Room: c.room})
		}
	}
	fmt.Printf("? unrecognized command %q\n", line)
	return nil
}
