package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/eventsource"
	"github.com/wall-e-bot/mergebot/internal/pr"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func withPR(number int, target string, labels ...string) pr.Metadata {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return pr.Metadata{
		PullRequest: pr.PullRequest{
			Number: number,
			Source: pr.Ref{Name: "feature"},
			Target: pr.Ref{Name: target},
			Labels: set,
		},
	}
}

func baseConfig() Config {
	return Config{
		IntegrationLabel:             "merge",
		StatusChecksTimeout:          30 * time.Second,
		IdleMergeServiceCleanupDelay: time.Minute,
		BootstrapConcurrency:         4,
	}
}

// TestDispatchService_BootstrapGroupsByTargetBranch pins spec §4.3
// responsibility 4: every open, labeled PR is grouped by target branch, one
// MergeService constructed per group.
func TestDispatchService_BootstrapGroupsByTargetBranch(t *testing.T) {
	client := newFakeClient(
		withPR(1, "main", "merge"),
		withPR(2, "release", "merge"),
		withPR(3, "main", "merge"),
		withPR(4, "main"), // unlabeled, excluded from bootstrap
	)
	d := New(baseConfig(), client, clock.NewFake(time.Unix(0, 0)), testLog(), nil, eventsource.NewStreams())

	require.NoError(t, d.Bootstrap(context.Background()))

	snap := d.Snapshot()
	require.Contains(t, snap, "main")
	require.Contains(t, snap, "release")
	assert.Len(t, snap, 2)
}

// TestDispatchService_LazilyCreatesOnlyForIncludeActions pins spec §4.3's
// routing rule: a branch with no MergeService gets one only when the event
// is an include-classifying action, never for exclude/unclassifiable ones.
func TestDispatchService_LazilyCreatesOnlyForIncludeActions(t *testing.T) {
	client := newFakeClient()
	streams := eventsource.NewStreams()
	d := New(baseConfig(), client, clock.NewFake(time.Unix(0, 0)), testLog(), nil, streams)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	streams.PRChanges.Publish(eventsource.PullRequestChange{Meta: withPR(1, "main"), Action: pr.ActionClosed})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, d.Snapshot(), "a closed (exclude) action must not lazily create a service")

	streams.PRChanges.Publish(eventsource.PullRequestChange{Meta: withPR(1, "main", "merge"), Action: pr.ActionOpened})
	require.Eventually(t, func() bool { return len(d.Snapshot()) == 1 }, time.Second, time.Millisecond)
}

// TestDispatchService_RoutingStatusEventDoesNotBlock publishes a status
// event whose branch ref matches the source of the PR a bootstrapped service
// is integrating, and checks only that routing it neither panics nor blocks
// the dispatcher; delivery itself is not asserted here.
func TestDispatchService_RoutingStatusEventDoesNotBlock(t *testing.T) {
	client := newFakeClient(withPR(1, "main", "merge"))
	streams := eventsource.NewStreams()
	d := New(baseConfig(), client, clock.NewFake(time.Unix(0, 0)), testLog(), nil, streams)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, d.Bootstrap(ctx))
	require.Eventually(t, func() bool { return len(d.Snapshot()) == 1 }, time.Second, time.Millisecond)

	// Routing only needs to not panic and not block; a full integration
	// round-trip is covered by internal/merge's own scenario tests.
	streams.Statuses.Publish(pr.StatusEvent{BranchRef: "feature", State: pr.CheckSuccess})
	time.Sleep(20 * time.Millisecond)
}

// TestDispatchService_LifecycleNotifications pins spec §4.3 responsibility
// 3: created fires on construction.
func TestDispatchService_LifecycleNotifications(t *testing.T) {
	client := newFakeClient(withPR(1, "main", "merge"))
	streams := eventsource.NewStreams()
	d := New(baseConfig(), client, clock.NewFake(time.Unix(0, 0)), testLog(), nil, streams)
	lifecycle := d.Lifecycle()

	require.NoError(t, d.Bootstrap(context.Background()))

	select {
	case ev := <-lifecycle:
		assert.Equal(t, LifecycleCreated, ev.Kind)
		assert.Equal(t, "main", ev.Branch)
	case <-time.After(time.Second):
		t.Fatal("no created lifecycle event published")
	}
}
