package core

import (
	"slices"
	"sync"
)

type presenceEntry struct {
	connID string
	name   string
}

// Presence tracks which connections are present in which rooms, in join order.
// It is the source of truth for "who is here" and lives for the process lifetime.
type Presence struct {
	mu    sync.RWMutex
	rooms map[string][]presenceEntry
}

// NewPresence returns an empty tracker.
func NewPresence() *Presence {
	return &Presence{rooms: make(map[string][]presenceEntry)}
}

// Join inserts the connection under room, or renames it in place if already present.
func (p *Presence) Join(room, connID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.rooms[room]
	for i := range entries {
		if entries[i].connID == connID {
			entries[i].name = name
			return
		}
	}
	p.rooms[room] = append(entries, presenceEntry{connID: connID, name: name})
}

// Leave removes the connection from room. It reports whether anything was removed.
func (p *Presence) Leave(room, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaveLocked(room, connID)
}

func (p *Presence) leaveLocked(room, connID string) bool {
	entries, ok := p.rooms[room]
	if !ok {
		return false
	}
	idx := slices.IndexFunc(entries, func(e presenceEntry) bool { return e.connID == connID })
	if idx < 0 {
		return false
	}
	entries = slices.Delete(entries, idx, idx+1)
	if len(entries) == 0 {
		delete(p.rooms, room)
	} else {
		p.rooms[room] = entries
	}
	return true
}

// DisconnectAll removes the connection from every room and returns those rooms, sorted.
func (p *Presence) DisconnectAll(connID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []string
	for room := range p.rooms {
		if p.leaveLocked(room, connID) {
			removed = append(removed, room)
		}
	}
	slices.Sort(removed)
	return removed
}

// Snapshot returns the display names present in room in join order.
// Unknown rooms yield an empty, non-nil slice.
func (p *Presence) Snapshot(room string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.rooms[room]
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	return names
}

// Rooms returns the rooms the connection is present in, sorted.
func (p *Presence) Rooms(connID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var rooms []string
	for room, entries := range p.rooms {
		if slices.ContainsFunc(entries, func(e presenceEntry) bool { return e.connID == connID }) {
			rooms = append(rooms, room)
		}
	}
	slices.Sort(rooms)
	return rooms
}

// Count returns how many connections are present in room.
func (p *Presence) Count(room string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms[room])
}
