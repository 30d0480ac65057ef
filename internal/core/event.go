package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence carries the ordered display names present in a room.
	EventPresence EventKind = iota
	// EventLoadMessages delivers recent history privately to a joining client.
	EventLoadMessages
	// EventNewMessage announces a freshly persisted message.
	EventNewMessage
	// EventUpdateMessage carries a message after a reaction or pin change.
	EventUpdateMessage
	// EventDeletedMessage tells clients to drop a message by ID.
	EventDeletedMessage
	// EventMessageError is sent privately to the client whose command failed.
	EventMessageError
)

var eventNames = map[EventKind]string{
	EventPresence:       "presence",
	EventLoadMessages:   "loadMessages",
	EventNewMessage:     "newMessage",
	EventUpdateMessage:  "updateMessage",
	EventDeletedMessage: "deletedMessage",
	EventMessageError:   "messageError",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Room      string
	Users     []string  // EventPresence
	Message   *Message  // EventNewMessage, EventUpdateMessage
	Messages  []Message // EventLoadMessages
	MessageID int64     // EventDeletedMessage
	Error     *CoreError
}
