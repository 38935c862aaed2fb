package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ChitkulLakshya/quizwhiz/internal/domain"
)

func TestDeriveTimer(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limit := 20 * time.Second

	cases := []struct {
		name      string
		now       time.Time
		remaining time.Duration
		phase     domain.Phase
	}{
		{"at start", start, 20 * time.Second, domain.PhaseQuestion},
		{"mid question", start.Add(5 * time.Second), 15 * time.Second, domain.PhaseQuestion},
		{"just before deadline", start.Add(limit - time.Millisecond), time.Millisecond, domain.PhaseQuestion},
		{"at deadline", start.Add(limit), 0, domain.PhaseResults},
		{"past deadline", start.Add(limit + 30*time.Second), 0, domain.PhaseResults},
		{"observer clock behind start", start.Add(-3 * time.Second), 20 * time.Second, domain.PhaseQuestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := domain.DeriveTimer(start, limit, tc.now)
			if state.Remaining != tc.remaining {
				t.Fatalf("remaining: expected %v, got %v", tc.remaining, state.Remaining)
			}
			if state.Phase != tc.phase {
				t.Fatalf("phase: expected %s, got %s", tc.phase, state.Phase)
			}
		})
	}
}

func TestDeriveTimerIsPure(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(7 * time.Second)
	a := domain.DeriveTimer(start, 20*time.Second, now)
	b := domain.DeriveTimer(start, 20*time.Second, now)
	if a != b {
		t.Fatalf("expected identical derivations, got %+v vs %+v", a, b)
	}
}

func TestWatchTimerFlipsToResults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := clock.Now()
	states := domain.WatchTimer(ctx, clock, start, 10*time.Second, 100*time.Millisecond)

	first := <-states
	if first.Phase != domain.PhaseQuestion || first.Remaining != 10*time.Second {
		t.Fatalf("expected full countdown first, got %+v", first)
	}

	// The watcher is now parked on its ticker.
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("watcher never reached ticker: %v", err)
	}
	clock.Advance(10 * time.Second)

	var last domain.TimerState
	for state := range states {
		last = state
	}
	if last.Phase != domain.PhaseResults || last.Remaining != 0 {
		t.Fatalf("expected results phase at zero remaining, got %+v", last)
	}
}

func TestWatchTimerStopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	states := domain.WatchTimer(ctx, clock, clock.Now(), time.Minute, 100*time.Millisecond)
	<-states
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-states:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watcher did not stop after cancel")
		}
	}
}
