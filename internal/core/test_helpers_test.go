package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/roomsync/internal/store"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory store.MessageStore with switchable failures.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*store.Message

	down         atomic.Bool
	failWrites   atomic.Bool
	panicOnReact atomic.Bool
	listDelay    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[int64]*store.Message)}
}

func cloneMessage(m *store.Message) *store.Message {
	cp := *m
	cp.Reactions = maps.Clone(m.Reactions)
	if cp.Reactions == nil {
		cp.Reactions = map[string]int{}
	}
	return &cp
}

func (f *fakeStore) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("database is down")
	}
	return nil
}

func (f *fakeStore) ListMessages(ctx context.Context, room string, limit int, _ *int64) ([]*store.Message, error) {
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Message
	for _, m := range f.messages {
		if m.Room == room {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	if f.failWrites.Load() {
		return nil, errInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	saved := cloneMessage(msg)
	saved.ID = f.nextID
	f.messages[saved.ID] = saved
	return cloneMessage(saved), nil
}

func (f *fakeStore) GetMessage(_ context.Context, id int64) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return cloneMessage(m), nil
}

func (f *fakeStore) IncrementReaction(_ context.Context, id int64, label string) (*store.Message, error) {
	if f.panicOnReact.Load() {
		panic("reaction counter corrupted")
	}
	if f.failWrites.Load() {
		return nil, errInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	m.Reactions[label]++
	return cloneMessage(m), nil
}

func (f *fakeStore) SetPinned(_ context.Context, id int64, pinned bool) (*store.Message, error) {
	if f.failWrites.Load() {
		return nil, errInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	m.Pinned = pinned
	return cloneMessage(m), nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, id int64) error {
	if f.failWrites.Load() {
		return errInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.messages[id]; !ok {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// startHub runs a hub for the duration of the test.
func startHub(t *testing.T, st store.MessageStore, opts ...Option) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(st, opts...)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()

	c := NewClient(id, id, 0)
	hub.RegisterClient(c)
	return c
}

// join sends joinRoom and consumes the caller's own presence and history events.
func join(t *testing.T, c *Client, room, name string) *Event {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: room, DisplayName: name}
	mustEvent(t, c.Events, EventPresence)
	return mustEvent(t, c.Events, EventLoadMessages)
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %v", kind)
			}
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

// expectNoEvent fails if an event of kind arrives within wait.
func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timeout := time.After(wait)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-timeout:
			return
		}
	}
}

func equalNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
