// Package health watches a MergeService's Transition stream for potential
// deadlocks: a service stuck in any status other than starting/idle well
// past its own configured timeout. Grounded on the teacher's
// refinery.Manager state-reporting idiom (internal/refinery/engineer.go),
// re-expressed as an in-memory debounced watcher over a channel instead of
// a polled state file, since this service is event-driven rather than
// poll-driven.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/merge"
)

// Status is the health verdict for one MergeService.
type Status string

const (
	StatusOK                Status = "ok"
	StatusPotentialDeadlock Status = "unhealthy(potentialDeadlock)"
)

// deadlockFactor scales a branch's configured StatusChecksTimeout into the
// grace period Run waits past an entry into any status other than
// starting/idle before declaring a potential deadlock.
const deadlockFactor = 1.5

// Watcher tracks one MergeService's health by consuming its Transition
// stream.
type Watcher struct {
	clk clock.Clock

	mu     sync.RWMutex
	status Status

	subMu sync.Mutex
	subs  []chan Status
}

// New builds a Watcher.
func New(clk clock.Clock) *Watcher {
	return &Watcher{clk: clk, status: StatusOK}
}

// Status returns the watcher's current verdict.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Subscribe registers a channel that receives a value whenever Status
// changes (duplicate-suppressed: no value is sent if the verdict hasn't
// moved).
func (w *Watcher) Subscribe() <-chan Status {
	ch := make(chan Status, 4)
	w.subMu.Lock()
	w.subs = append(w.subs, ch)
	w.subMu.Unlock()
	return ch
}

func (w *Watcher) setStatus(s Status) {
	w.mu.Lock()
	changed := w.status != s
	w.status = s
	w.mu.Unlock()
	if !changed {
		return
	}
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// wedgeable reports whether kind is a status a MergeService could get stuck
// in indefinitely. Per spec §4.2, only starting and idle are exempt — ready,
// integrating, runningStatusChecks, and integrationFailed are all "prima
// facie wedged" if the service never leaves them.
func wedgeable(kind merge.StatusKind) bool {
	return kind != merge.StatusStarting && kind != merge.StatusIdle
}

// Run consumes transitions until ctx is cancelled or transitions closes,
// declaring potentialDeadlock whenever the service has stayed in any status
// other than starting/idle for longer than deadlockFactor times
// statusChecksTimeout, and clearing the verdict as soon as a transition back
// to starting or idle is observed.
func (w *Watcher) Run(ctx context.Context, transitions <-chan merge.Transition, statusChecksTimeout time.Duration) {
	grace := time.Duration(float64(statusChecksTimeout) * deadlockFactor)

	var timer clock.Timer
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	defer stopTimer()

	timerC := func() <-chan time.Time {
		if timer == nil {
			return nil
		}
		return timer.C()
	}

	wasWedgeable := false

	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-transitions:
			if !ok {
				return
			}
			nowWedgeable := wedgeable(t.Current.Status.Status)
			switch {
			case nowWedgeable && !wasWedgeable:
				timer = w.clk.After(grace)
			case !nowWedgeable && wasWedgeable:
				stopTimer()
				w.setStatus(StatusOK)
			}
			wasWedgeable = nowWedgeable

		case <-timerC():
			w.setStatus(StatusPotentialDeadlock)
			timer = nil
		}
	}
}
