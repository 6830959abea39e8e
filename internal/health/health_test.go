package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/merge"
)

func snapshot(kind merge.StatusKind) merge.StateSnapshot {
	return merge.StateSnapshot{Status: merge.StatusSnapshot{Status: kind}}
}

// TestWatcher_DeclaresDeadlockPastGracePeriod pins spec §8 invariant 7 and
// S3's healthcheck tail: entering an in-progress status arms a
// 1.5×statusChecksTimeout timer, and its expiry flips the verdict.
func TestWatcher_DeclaresDeadlockPastGracePeriod(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	w := New(fake)
	transitions := make(chan merge.Transition, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, transitions, 30*time.Second)

	assert.Equal(t, StatusOK, w.Status())

	transitions <- merge.Transition{Previous: snapshot(merge.StatusReady), Current: snapshot(merge.StatusIntegrating)}
	time.Sleep(10 * time.Millisecond)

	fake.Advance(45 * time.Second) // 1.5 * 30s

	require.Eventually(t, func() bool { return w.Status() == StatusPotentialDeadlock }, time.Second, time.Millisecond)
}

// TestWatcher_RecoversOnExitFromInProgress pins spec S3's "returns to ok
// once idle" tail: after the grace period has expired and a deadlock has
// been declared, a transition back to idle clears the verdict to ok.
func TestWatcher_RecoversOnExitFromInProgress(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	w := New(fake)
	transitions := make(chan merge.Transition, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, transitions, 30*time.Second)

	transitions <- merge.Transition{Previous: snapshot(merge.StatusReady), Current: snapshot(merge.StatusIntegrating)}
	time.Sleep(10 * time.Millisecond)
	fake.Advance(45 * time.Second)
	require.Eventually(t, func() bool { return w.Status() == StatusPotentialDeadlock }, time.Second, time.Millisecond)

	transitions <- merge.Transition{Previous: snapshot(merge.StatusIntegrating), Current: snapshot(merge.StatusIdle)}
	require.Eventually(t, func() bool { return w.Status() == StatusOK }, time.Second, time.Millisecond)
}

// TestWatcher_StaysOKWhenNeverLeavingIdle guards against false positives on
// a service that never leaves starting/idle.
func TestWatcher_StaysOKWhenNeverLeavingIdle(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	w := New(fake)
	transitions := make(chan merge.Transition, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, transitions, 30*time.Second)

	transitions <- merge.Transition{Previous: snapshot(merge.StatusStarting), Current: snapshot(merge.StatusIdle)}
	time.Sleep(10 * time.Millisecond)
	fake.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, StatusOK, w.Status())
}

// TestWatcher_DeclaresDeadlockFromReady pins spec §4.2's explicit
// wedged-in-ready case: a service parked in ready (e.g. because
// runReadyEffect keeps failing its PR fetch and silently dropping) must
// still arm the deadlock timer, not just integrating/runningStatusChecks.
func TestWatcher_DeclaresDeadlockFromReady(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	w := New(fake)
	transitions := make(chan merge.Transition, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, transitions, 30*time.Second)

	transitions <- merge.Transition{Previous: snapshot(merge.StatusIdle), Current: snapshot(merge.StatusReady)}
	time.Sleep(10 * time.Millisecond)
	fake.Advance(45 * time.Second)

	require.Eventually(t, func() bool { return w.Status() == StatusPotentialDeadlock }, time.Second, time.Millisecond)
}

// TestWatcher_DeclaresDeadlockFromIntegrationFailed pins the same rule for
// integrationFailed, the other status §4.2 calls out as never exempt.
func TestWatcher_DeclaresDeadlockFromIntegrationFailed(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	w := New(fake)
	transitions := make(chan merge.Transition, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, transitions, 30*time.Second)

	transitions <- merge.Transition{Previous: snapshot(merge.StatusIntegrating), Current: snapshot(merge.StatusIntegrationFailed)}
	time.Sleep(10 * time.Millisecond)
	fake.Advance(45 * time.Second)

	require.Eventually(t, func() bool { return w.Status() == StatusPotentialDeadlock }, time.Second, time.Millisecond)
}
