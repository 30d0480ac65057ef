package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomsync/internal/metrics"
	"github.com/vovakirdan/roomsync/internal/store"
)

const (
	// DefaultHistoryLimit is the number of recent messages delivered on join.
	DefaultHistoryLimit = 200
	// DefaultHistoryTimeout bounds the history read on join.
	DefaultHistoryTimeout = 5 * time.Second
)

// FailurePolicy decides how best-effort commands (react, pin, unpin, delete) report failures.
type FailurePolicy int

const (
	// FailSilent swallows best-effort failures; only the log sees them.
	FailSilent FailurePolicy = iota
	// FailLoud reports best-effort failures to the originating client.
	FailLoud
)

// ParseFailurePolicy maps "silent" and "loud" to a policy. Anything else is silent.
func ParseFailurePolicy(s string) FailurePolicy {
	if s == "loud" {
		return FailLoud
	}
	return FailSilent
}

// Hub coordinates clients, presence, and message fanout.
// Each registered client is served by its own goroutine, so a slow store call
// for one client never stalls the others.
type Hub struct {
	store    store.MessageStore
	guard    *Guard
	presence *Presence
	log      *zerolog.Logger
	now      func() time.Time

	policy         FailurePolicy
	singleRoom     bool
	historyLimit   int
	historyTimeout time.Duration
	probeTimeout   time.Duration

	// mu serializes membership changes with the presence broadcasts they trigger.
	mu    sync.RWMutex
	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	wg         sync.WaitGroup
}

// Option customizes a Hub.
type Option func(*Hub)

// WithPresence injects the presence tracker.
func WithPresence(p *Presence) Option {
	return func(h *Hub) { h.presence = p }
}

// WithLogger sets the hub logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithFailurePolicy sets how best-effort failures are reported.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(h *Hub) { h.policy = p }
}

// WithSingleRoom makes joinRoom leave every other room first.
func WithSingleRoom(enabled bool) Option {
	return func(h *Hub) { h.singleRoom = enabled }
}

// WithHistory sets the join history size and read timeout.
func WithHistory(limit int, timeout time.Duration) Option {
	return func(h *Hub) {
		if limit > 0 {
			h.historyLimit = limit
		}
		if timeout > 0 {
			h.historyTimeout = timeout
		}
	}
}

// WithProbeTimeout bounds each availability probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(h *Hub) { h.probeTimeout = d }
}

// WithClock overrides the time source for message creation.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a hub backed by st. A nil store puts every store-touching
// command in degraded mode.
func NewHub(st store.MessageStore, opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		store:          st,
		log:            &nop,
		now:            func() time.Time { return time.Now().UTC() },
		historyLimit:   DefaultHistoryLimit,
		historyTimeout: DefaultHistoryTimeout,
		probeTimeout:   DefaultProbeTimeout,
		rooms:          make(map[string]*Room),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.presence == nil {
		h.presence = NewPresence()
	}
	var probe Prober
	if st != nil {
		probe = st
	}
	h.guard = NewGuard(probe, h.probeTimeout)
	return h
}

// Presence exposes the tracker for read-only queries.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Run serves registrations until ctx is canceled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*Client]struct{})
	defer func() {
		for c := range clients {
			close(c.quit)
		}
		h.wg.Wait()
		close(h.stopped)
	}()

	for {
		select {
		case c := <-h.register:
			clients[c] = struct{}{}
			h.wg.Add(1)
			go h.serveClient(ctx, c)
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.quit)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RegisterClient starts serving the client's commands.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
	}
}

// UnregisterClient fires the disconnect for c. Its Events channel is closed afterwards.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) serveClient(ctx context.Context, c *Client) {
	defer h.wg.Done()
	defer h.disconnect(c)

	log := h.log.With().Str("client_id", c.ID).Logger()
	log.Debug().Msg("client registered")

	for {
		select {
		case cmd := <-c.Commands:
			if cmd != nil {
				h.dispatch(ctx, c, cmd)
			}
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// disconnect removes c from every room, tells the remaining members, and closes c.Events.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := h.presence.DisconnectAll(c.ID)
	for name, room := range h.rooms {
		if room.RemoveClient(c) && room.Empty() {
			delete(h.rooms, name)
		}
	}
	for _, name := range rooms {
		h.broadcastPresenceLocked(name)
	}
	close(c.Events)

	h.log.Debug().Str("client_id", c.ID).Strs("rooms", rooms).Msg("client disconnected")
}

func (h *Hub) subscribeLocked(name string, c *Client) {
	room, ok := h.rooms[name]
	if !ok {
		room = NewRoom(name)
		h.rooms[name] = room
	}
	room.AddClient(c)
}

func (h *Hub) unsubscribeLocked(name string, c *Client) {
	room, ok := h.rooms[name]
	if !ok {
		return
	}
	if room.RemoveClient(c) && room.Empty() {
		delete(h.rooms, name)
	}
}

func (h *Hub) broadcastPresenceLocked(name string) {
	h.fanoutLocked(name, &Event{
		Kind:  EventPresence,
		Room:  name,
		Users: h.presence.Snapshot(name),
	})
}

// broadcast delivers ev to every client subscribed to the room.
func (h *Hub) broadcast(name string, ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.fanoutLocked(name, ev)
}

func (h *Hub) fanoutLocked(name string, ev *Event) {
	room, ok := h.rooms[name]
	if !ok {
		return
	}
	if dropped := room.Broadcast(ev); dropped > 0 {
		metrics.BroadcastDrops.Add(float64(dropped))
		h.log.Debug().Str("room", name).Str("event", ev.Kind.String()).Int("dropped", dropped).Msg("slow consumers skipped")
	}
}

// deliver sends ev to c only, never blocking.
func (h *Hub) deliver(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		metrics.BroadcastDrops.Inc()
		h.log.Debug().Str("client_id", c.ID).Str("event", ev.Kind.String()).Msg("client queue full, event dropped")
	}
}

func (h *Hub) sendError(c *Client, room string, err *CoreError) {
	h.deliver(c, &Event{Kind: EventMessageError, Room: room, Error: err})
}
