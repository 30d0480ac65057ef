package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/roomsync/internal/metrics"
	"github.com/vovakirdan/roomsync/internal/store"
)

// dispatch runs one command for c. It holds no state of its own: everything
// lives in the presence tracker and the store.
func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Str("client_id", c.ID).
				Str("command", cmd.Kind.String()).
				Interface("panic", r).
				Msg("command handler panicked")
		}
	}()

	metrics.CommandsTotal.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case CommandJoinRoom:
		h.joinRoom(ctx, c, cmd)
	case CommandLeaveRoom:
		h.leaveRoom(c, cmd)
	case CommandSendMessage:
		h.sendMessage(ctx, c, cmd)
	case CommandReactMessage:
		h.reactMessage(ctx, c, cmd)
	case CommandPinMessage:
		h.setPinned(ctx, c, cmd, true)
	case CommandUnpinMessage:
		h.setPinned(ctx, c, cmd, false)
	case CommandDeleteMessage:
		h.deleteMessage(ctx, c, cmd)
	default:
		h.sendError(c, cmd.Room, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) joinRoom(ctx context.Context, c *Client, cmd *Command) {
	h.mu.Lock()
	if h.singleRoom {
		for _, other := range h.presence.Rooms(c.ID) {
			if other == cmd.Room {
				continue
			}
			h.presence.Leave(other, c.ID)
			h.unsubscribeLocked(other, c)
			h.broadcastPresenceLocked(other)
		}
	}
	h.presence.Join(cmd.Room, c.ID, cmd.DisplayName)
	h.subscribeLocked(cmd.Room, c)
	h.broadcastPresenceLocked(cmd.Room)
	h.mu.Unlock()

	h.log.Debug().Str("client_id", c.ID).Str("room", cmd.Room).Str("name", cmd.DisplayName).Msg("joined room")

	h.deliver(c, &Event{
		Kind:     EventLoadMessages,
		Room:     cmd.Room,
		Messages: h.loadHistory(ctx, cmd.Room),
	})
}

// loadHistory never fails: an unavailable store, a read error or a timeout all
// yield an empty list so that live chat keeps working.
func (h *Hub) loadHistory(ctx context.Context, room string) []Message {
	if !h.guard.Available(ctx) {
		metrics.DegradedTotal.WithLabelValues(CommandJoinRoom.String()).Inc()
		h.log.Warn().Str("room", room).Msg("store unavailable, delivering empty history")
		return []Message{}
	}

	ctx, cancel := context.WithTimeout(ctx, h.historyTimeout)
	defer cancel()

	list, err := h.store.ListMessages(ctx, room, h.historyLimit, nil)
	if err != nil {
		metrics.StoreErrors.WithLabelValues(CommandJoinRoom.String()).Inc()
		h.log.Warn().Err(err).Str("room", room).Msg("history read failed, delivering empty history")
		return []Message{}
	}
	return messagesFromStore(list)
}

func (h *Hub) leaveRoom(c *Client, cmd *Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.presence.Leave(cmd.Room, c.ID)
	h.unsubscribeLocked(cmd.Room, c)
	h.broadcastPresenceLocked(cmd.Room)

	h.log.Debug().Str("client_id", c.ID).Str("room", cmd.Room).Msg("left room")
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, cmd *Command) {
	if !h.guard.Available(ctx) {
		metrics.DegradedTotal.WithLabelValues(cmd.Kind.String()).Inc()
		h.log.Warn().Str("client_id", c.ID).Str("room", cmd.Room).Msg("store unavailable, message rejected")
		h.sendError(c, cmd.Room, coreError(ErrCodeConnectionLost, "connection lost, message not sent"))
		return
	}

	saved, err := h.store.CreateMessage(ctx, &store.Message{
		Room:      cmd.Room,
		Author:    cmd.DisplayName,
		Body:      cmd.Text,
		Reactions: map[string]int{},
		CreatedAt: h.now(),
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues(cmd.Kind.String()).Inc()
		h.log.Error().Err(err).Str("client_id", c.ID).Str("room", cmd.Room).Msg("failed to persist message")
		h.sendError(c, cmd.Room, coreError(ErrCodeSendFailed, "failed to send message"))
		return
	}

	msg := messageFromStore(saved)
	h.broadcast(cmd.Room, &Event{Kind: EventNewMessage, Room: cmd.Room, Message: &msg})
}

func (h *Hub) reactMessage(ctx context.Context, c *Client, cmd *Command) {
	h.mutateMessage(ctx, c, cmd, func(ctx context.Context) (*store.Message, error) {
		return h.store.IncrementReaction(ctx, cmd.MessageID, cmd.Reaction)
	})
}

func (h *Hub) setPinned(ctx context.Context, c *Client, cmd *Command, pinned bool) {
	h.mutateMessage(ctx, c, cmd, func(ctx context.Context) (*store.Message, error) {
		return h.store.SetPinned(ctx, cmd.MessageID, pinned)
	})
}

// mutateMessage runs a best-effort update and broadcasts whatever the store returned.
func (h *Hub) mutateMessage(ctx context.Context, c *Client, cmd *Command, update func(context.Context) (*store.Message, error)) {
	if !h.guard.Available(ctx) {
		h.bestEffortFailure(c, cmd, ErrStoreUnavailable)
		return
	}

	updated, err := update(ctx)
	if err != nil {
		h.bestEffortFailure(c, cmd, err)
		return
	}

	room := cmd.Room
	if room == "" {
		room = updated.Room
	}
	msg := messageFromStore(updated)
	h.broadcast(room, &Event{Kind: EventUpdateMessage, Room: room, Message: &msg})
}

func (h *Hub) deleteMessage(ctx context.Context, c *Client, cmd *Command) {
	if !h.guard.Available(ctx) {
		h.bestEffortFailure(c, cmd, ErrStoreUnavailable)
		return
	}

	room := cmd.Room
	if room == "" {
		msg, err := h.store.GetMessage(ctx, cmd.MessageID)
		if err != nil {
			h.bestEffortFailure(c, cmd, err)
			return
		}
		room = msg.Room
	}

	if err := h.store.DeleteMessage(ctx, cmd.MessageID); err != nil {
		h.bestEffortFailure(c, cmd, err)
		return
	}

	h.broadcast(room, &Event{Kind: EventDeletedMessage, Room: room, MessageID: cmd.MessageID})
}

// bestEffortFailure applies the failure policy. Unknown message IDs are always silent.
func (h *Hub) bestEffortFailure(c *Client, cmd *Command, err error) {
	log := h.log.With().
		Str("client_id", c.ID).
		Str("command", cmd.Kind.String()).
		Int64("message_id", cmd.MessageID).
		Logger()

	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug().Msg("message not found, ignoring")
		return
	case errors.Is(err, ErrStoreUnavailable):
		metrics.DegradedTotal.WithLabelValues(cmd.Kind.String()).Inc()
		log.Warn().Msg("store unavailable, command skipped")
	default:
		metrics.StoreErrors.WithLabelValues(cmd.Kind.String()).Inc()
		log.Debug().Err(err).Msg("best-effort command failed")
	}

	if h.policy == FailLoud {
		h.sendError(c, cmd.Room, coreError(ErrCodeOperationFailed, fmt.Sprintf("%s failed", cmd.Kind)))
	}
}
