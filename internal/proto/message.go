package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello         = "hello"
	InboundTypeJoinRoom      = "joinRoom"
	InboundTypeLeaveRoom     = "leaveRoom"
	InboundTypeSendMessage   = "sendMessage"
	InboundTypeReactMessage  = "reactMessage"
	InboundTypePinMessage    = "pinMessage"
	InboundTypeUnpinMessage  = "unpinMessage"
	InboundTypeDeleteMessage = "deleteMessage"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventPresence       = "presence"
	EventLoadMessages   = "loadMessages"
	EventNewMessage     = "newMessage"
	EventUpdateMessage  = "updateMessage"
	EventDeletedMessage = "deletedMessage"
	EventMessageError   = "messageError"
)

// HelloData is sent by the client to introduce itself.
type HelloData struct {
	User     string `json:"user"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// JoinRoomData requests presence in a room.
type JoinRoomData struct {
	Room        string  `json:"room"`
	DisplayName *string `json:"displayName,omitempty"`
}

// LeaveRoomData requests leaving a room.
type LeaveRoomData struct {
	Room string `json:"room"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	Room        string  `json:"room"`
	DisplayName *string `json:"displayName,omitempty"`
	Text        string  `json:"text"`
}

// ReactMessageData adds a reaction to a message.
type ReactMessageData struct {
	MessageID     int64  `json:"messageId"`
	ReactionLabel string `json:"reactionLabel"`
	DisplayName   string `json:"displayName,omitempty"`
	Room          string `json:"room"`
}

// MessageRefData addresses a message for pin, unpin and delete.
type MessageRefData struct {
	MessageID int64  `json:"messageId"`
	Room      string `json:"room"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is the full message representation.
type EventMessage struct {
	ID          int64          `json:"id"`
	Room        string         `json:"room"`
	DisplayName string         `json:"displayName"`
	Text        string         `json:"text"`
	CreatedAt   string         `json:"createdAt"`
	Reactions   map[string]int `json:"reactions"`
	Pinned      bool           `json:"pinned"`
}

// EventPresenceData lists display names present in a room, in join order.
type EventPresenceData struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// EventLoadMessagesData delivers recent history to a joining client.
type EventLoadMessagesData struct {
	Room     string         `json:"room"`
	Messages []EventMessage `json:"messages"`
}

// EventDeletedMessageData carries only the removed message's identifier.
type EventDeletedMessageData struct {
	MessageID int64 `json:"messageId"`
}

// EventMessageErrorData is sent privately when a command fails.
type EventMessageErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
