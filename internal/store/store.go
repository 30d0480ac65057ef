package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique name is already taken.
var ErrConflict = errors.New("already exists")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	CreatedAt    time.Time
}

// Room represents a persisted chat room record.
// Live rooms exist without a record; the record only backs room listings.
type Room struct {
	ID        int64
	Name      string
	OwnerID   *int64 // nil for rooms seeded by the server
	CreatedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	Room      string
	Author    string
	Body      string
	Pinned    bool
	Reactions map[string]int
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a new room record.
	CreateRoom(ctx context.Context, name string, ownerID *int64) (*Room, error)

	// GetRoomByName retrieves a room by name.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// ListRooms lists all room records, newest first.
	ListRooms(ctx context.Context) ([]*Room, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// ListMessages returns up to limit messages of a room in ascending creation order.
	// If beforeID is provided, only messages older than that ID are considered.
	ListMessages(ctx context.Context, room string, limit int, beforeID *int64) ([]*Message, error)

	// CreateMessage persists a message and returns it with ID and CreatedAt assigned.
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)

	// GetMessage retrieves a message with its reaction tally.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// IncrementReaction atomically adds one to the label's count and returns the updated message.
	IncrementReaction(ctx context.Context, id int64, label string) (*Message, error)

	// SetPinned updates the pinned flag and returns the updated message.
	SetPinned(ctx context.Context, id int64, pinned bool) (*Message, error)

	// DeleteMessage removes a message and its reactions.
	DeleteMessage(ctx context.Context, id int64) error

	// Ping reports whether the underlying database is reachable.
	Ping(ctx context.Context) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
