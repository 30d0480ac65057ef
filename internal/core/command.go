package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom registers the client's presence in a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom removes the client's presence from a room.
	CommandLeaveRoom
	// CommandSendMessage persists and broadcasts a chat message.
	CommandSendMessage
	// CommandReactMessage adds one reaction to a message.
	CommandReactMessage
	// CommandPinMessage marks a message as pinned.
	CommandPinMessage
	// CommandUnpinMessage clears the pinned flag.
	CommandUnpinMessage
	// CommandDeleteMessage removes a message.
	CommandDeleteMessage
)

var commandNames = map[CommandKind]string{
	CommandJoinRoom:      "joinRoom",
	CommandLeaveRoom:     "leaveRoom",
	CommandSendMessage:   "sendMessage",
	CommandReactMessage:  "reactMessage",
	CommandPinMessage:    "pinMessage",
	CommandUnpinMessage:  "unpinMessage",
	CommandDeleteMessage: "deleteMessage",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind        CommandKind
	Room        string
	DisplayName string
	Text        string
	MessageID   int64
	Reaction    string
}
