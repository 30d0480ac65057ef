package core

// DefaultClientBuffer is the capacity of a client's command and event queues.
const DefaultClientBuffer = 64

// Client is a live connection as seen by the core layer.
// The transport owns it; the hub only holds it while it is registered.
type Client struct {
	ID       string
	Name     string
	Commands chan *Command
	Events   chan *Event

	quit chan struct{}
}

// NewClient constructs a client with initialized channels.
// A non-positive buffer falls back to DefaultClientBuffer.
func NewClient(id, name string, buffer int) *Client {
	if name == "" {
		name = id
	}
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		Name:     name,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		quit:     make(chan struct{}),
	}
}
