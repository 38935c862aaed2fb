package domain

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Phase is the locally derived notion of where an active question slot is:
// still accepting answers ("question") or showing results ("results").
// It is distinct from Session.Status.
type Phase string

const (
	PhaseQuestion Phase = "question"
	PhaseResults  Phase = "results"
)

// DefaultTickInterval is how often observers re-derive their countdown.
const DefaultTickInterval = 100 * time.Millisecond

// TimerState is one observer's derived view of the current question slot.
type TimerState struct {
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Phase     Phase         `json:"phase"`
}

// DeriveTimer computes the countdown view from the shared question start
// timestamp and the observer's wall clock. Pure; every observer runs it
// independently and no coordination is needed. A skewed clock shows a
// skewed countdown, the ledger cutoff is unaffected.
func DeriveTimer(startTime time.Time, timeLimit time.Duration, now time.Time) TimerState {
	elapsed := now.Sub(startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := timeLimit - elapsed
	if remaining < 0 {
		remaining = 0
	}
	phase := PhaseQuestion
	if remaining == 0 {
		phase = PhaseResults
	}
	return TimerState{Elapsed: elapsed, Remaining: remaining, Phase: phase}
}

// WatchTimer re-derives the countdown every interval and emits each state on
// the returned channel. The channel closes after the first results-phase
// state, or when ctx is cancelled. It never touches shared state.
func WatchTimer(ctx context.Context, clock clockwork.Clock, startTime time.Time, timeLimit, interval time.Duration) <-chan TimerState {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	out := make(chan TimerState, 1)
	go func() {
		defer close(out)
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			state := DeriveTimer(startTime, timeLimit, clock.Now())
			select {
			case out <- state:
			case <-ctx.Done():
				return
			}
			if state.Phase == PhaseResults {
				return
			}
			select {
			case <-ticker.Chan():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
