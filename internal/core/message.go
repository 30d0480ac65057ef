package core

import (
	"maps"
	"time"

	"github.com/vovakirdan/roomsync/internal/store"
)

// Message is the domain model for a chat message as broadcast to clients.
// It is always built from a value the store just returned.
type Message struct {
	ID        int64
	Room      string
	Author    string
	Text      string
	CreatedAt time.Time
	Reactions map[string]int
	Pinned    bool
}

func messageFromStore(m *store.Message) Message {
	reactions := make(map[string]int, len(m.Reactions))
	maps.Copy(reactions, m.Reactions)
	return Message{
		ID:        m.ID,
		Room:      m.Room,
		Author:    m.Author,
		Text:      m.Body,
		CreatedAt: m.CreatedAt,
		Reactions: reactions,
		Pinned:    m.Pinned,
	}
}

func messagesFromStore(list []*store.Message) []Message {
	out := make([]Message, 0, len(list))
	for _, m := range list {
		out = append(out, messageFromStore(m))
	}
	return out
}
