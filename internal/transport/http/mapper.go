package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/vovakirdan/roomsync/internal/core"
	"github.com/vovakirdan/roomsync/internal/proto"
	"github.com/vovakirdan/roomsync/internal/store"
)

func protoError(code, msg string) *proto.Error {
	return &proto.Error{Code: code, Msg: msg}
}

// resolveName prefers the name carried by the command, then the hello name.
// An empty result is allowed; display names are not validated.
func resolveName(explicit *string, fallback string) string {
	if explicit != nil {
		if name := strings.TrimSpace(*explicit); name != "" {
			return name
		}
	}
	return fallback
}

// inboundToCommand validates one client frame. defaultName comes from hello.
func inboundToCommand(inbound proto.Inbound, defaultName string) (*core.Command, *proto.Error) {
	malformed := protoError(core.ErrCodeBadRequest, "malformed "+inbound.Type+" data")

	switch inbound.Type {
	case proto.InboundTypeJoinRoom:
		var data proto.JoinRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed
		}
		if data.Room == "" {
			return nil, protoError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: data.Room, DisplayName: resolveName(data.DisplayName, defaultName)}, nil

	case proto.InboundTypeLeaveRoom:
		var data proto.LeaveRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed
		}
		if data.Room == "" {
			return nil, protoError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Room: data.Room}, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed
		}
		if data.Room == "" {
			return nil, protoError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{
			Kind:        core.CommandSendMessage,
			Room:        data.Room,
			DisplayName: resolveName(data.DisplayName, defaultName),
			Text:        data.Text,
		}, nil

	case proto.InboundTypeReactMessage:
		var data proto.ReactMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed
		}
		if data.MessageID <= 0 || data.ReactionLabel == "" {
			return nil, protoError(core.ErrCodeBadRequest, "messageId and reactionLabel are required")
		}
		return &core.Command{
			Kind:        core.CommandReactMessage,
			Room:        data.Room,
			DisplayName: resolveName(&data.DisplayName, defaultName),
			MessageID:   data.MessageID,
			Reaction:    data.ReactionLabel,
		}, nil

	case proto.InboundTypePinMessage, proto.InboundTypeUnpinMessage, proto.InboundTypeDeleteMessage:
		var data proto.MessageRefData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed
		}
		if data.MessageID <= 0 {
			return nil, protoError(core.ErrCodeBadRequest, "messageId is required")
		}
		kind := core.CommandPinMessage
		switch inbound.Type {
		case proto.InboundTypeUnpinMessage:
			kind = core.CommandUnpinMessage
		case proto.InboundTypeDeleteMessage:
			kind = core.CommandDeleteMessage
		}
		return &core.Command{Kind: kind, Room: data.Room, MessageID: data.MessageID}, nil

	default:
		return nil, protoError(core.ErrCodeInvalidMessage, "unknown message type")
	}
}

func messageToProto(msg core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:          msg.ID,
		Room:        msg.Room,
		DisplayName: msg.Author,
		Text:        msg.Text,
		CreatedAt:   msg.CreatedAt.UTC().Format(time.RFC3339),
		Reactions:   nonNilReactions(msg.Reactions),
		Pinned:      msg.Pinned,
	}
}

func storeMessageToProto(msg *store.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:          msg.ID,
		Room:        msg.Room,
		DisplayName: msg.Author,
		Text:        msg.Body,
		CreatedAt:   msg.CreatedAt.UTC().Format(time.RFC3339),
		Reactions:   nonNilReactions(msg.Reactions),
		Pinned:      msg.Pinned,
	}
}

func nonNilReactions(r map[string]int) map[string]int {
	if r == nil {
		return map[string]int{}
	}
	return r
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventPresence:
		users := event.Users
		if users == nil {
			users = []string{}
		}
		return eventOutbound(proto.EventPresence, proto.EventPresenceData{Room: event.Room, Users: users})

	case core.EventLoadMessages:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messageToProto(msg))
		}
		return eventOutbound(proto.EventLoadMessages, proto.EventLoadMessagesData{Room: event.Room, Messages: messages})

	case core.EventNewMessage, core.EventUpdateMessage:
		name := proto.EventNewMessage
		if event.Kind == core.EventUpdateMessage {
			name = proto.EventUpdateMessage
		}
		if event.Message == nil {
			return eventOutbound(name, nil)
		}
		return eventOutbound(name, messageToProto(*event.Message))

	case core.EventDeletedMessage:
		return eventOutbound(proto.EventDeletedMessage, proto.EventDeletedMessageData{MessageID: event.MessageID})

	case core.EventMessageError:
		data := proto.EventMessageErrorData{Error: "unknown error"}
		if event.Error != nil {
			data = proto.EventMessageErrorData{Error: event.Error.Message, Code: event.Error.Code}
		}
		return eventOutbound(proto.EventMessageError, data)

	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: protoError(core.ErrCodeInvalidMessage, "unknown event")}
	}
}
