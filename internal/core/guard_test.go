package core

import (
	"context"
	"testing"
	"time"
)

type slowProber struct{ delay time.Duration }

func (s slowProber) Ping(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestGuardAvailability(t *testing.T) {
	st := newFakeStore()

	tests := []struct {
		name  string
		guard *Guard
		down  bool
		want  bool
	}{
		{name: "store up", guard: NewGuard(st, time.Second), want: true},
		{name: "store down", guard: NewGuard(st, time.Second), down: true, want: false},
		{name: "nil probe", guard: NewGuard(nil, time.Second), want: false},
		{name: "probe exceeds timeout", guard: NewGuard(slowProber{delay: time.Second}, 20*time.Millisecond), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st.down.Store(tt.down)
			if got := tt.guard.Available(context.Background()); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseFailurePolicy(t *testing.T) {
	if ParseFailurePolicy("loud") != FailLoud {
		t.Fatalf("expected loud")
	}
	for _, s := range []string{"silent", "", "LOUD?"} {
		if ParseFailurePolicy(s) != FailSilent {
			t.Fatalf("expected silent for %q", s)
		}
	}
}
