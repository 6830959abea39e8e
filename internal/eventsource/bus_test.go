package eventsource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus[PullRequestChange]()
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(PullRequestChange{Meta: pr.Metadata{PullRequest: pr.PullRequest{Number: 1}}, Action: pr.ActionOpened})

	for _, ch := range []<-chan PullRequestChange{a, c} {
		select {
		case got := <-ch:
			assert.Equal(t, 1, got.Meta.Number)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive published value")
		}
	}
}

func TestBus_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := NewBus[int]()
	ch := b.Subscribe()

	for i := 0; i < 64; i++ {
		b.Publish(i) // channel buffer is 32; excess must drop, not block Publish
	}

	require.NotPanics(t, func() {
		select {
		case <-ch:
		default:
		}
	})
}

func TestStreams_ImplementsSources(t *testing.T) {
	streams := NewStreams()
	var _ Sources = streams

	prCh := streams.PullRequestChanges()
	statusCh := streams.StatusEvents()

	streams.PRChanges.Publish(PullRequestChange{Action: pr.ActionClosed})
	streams.Statuses.Publish(pr.StatusEvent{Context: "ci"})

	select {
	case got := <-prCh:
		assert.Equal(t, pr.ActionClosed, got.Action)
	case <-time.After(time.Second):
		t.Fatal("no pull request change delivered")
	}
	select {
	case got := <-statusCh:
		assert.Equal(t, "ci", got.Context)
	case <-time.After(time.Second):
		t.Fatal("no status event delivered")
	}
}
