// Package eventsource turns inbound GitHub webhook deliveries into the two
// multicast streams the dispatcher consumes (spec §6 "Event sources"):
// pull-request actions and status events. Bus is the generic typed pub/sub
// primitive, generalized from the teacher's internal/mail router (which
// fans a single message out to one recipient's mailbox plus a tmux
// notification) into a broadcast-to-all-subscribers channel multicast, since
// this domain has no single addressable recipient per event — every
// interested MergeService needs to see it.
package eventsource

import (
	"sync"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

// Bus is a generic multicast channel: every value published is delivered to
// every currently-subscribed channel. Subscribers that can't keep up drop
// values rather than block the publisher, matching spec §5's "no locks
// exposed across component boundaries" and keeping one slow consumer from
// stalling event delivery to the rest.
type Bus[T any] struct {
	mu   sync.Mutex
	subs []chan T
}

// NewBus constructs an empty Bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe returns a channel that receives every value published after
// this call.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, 32)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers v to every current subscriber, non-blocking.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// PullRequestChange is one (metadata, action) pair, as named by spec §6's
// pullRequestActions stream.
type PullRequestChange struct {
	Meta   pr.Metadata
	Action pr.Action
}
