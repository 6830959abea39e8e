package eventsource

import "github.com/wall-e-bot/mergebot/internal/pr"

// Sources is the pair of multicast streams named in spec §6 "Event sources
// (consumed)": pull-request actions and status events.
type Sources interface {
	PullRequestChanges() <-chan PullRequestChange
	StatusEvents() <-chan pr.StatusEvent
}

// Streams is the production Sources implementation: two independent buses
// fed by a WebhookTranslator.
type Streams struct {
	PRChanges *Bus[PullRequestChange]
	Statuses  *Bus[pr.StatusEvent]
}

// NewStreams builds an empty pair of buses.
func NewStreams() *Streams {
	return &Streams{
		PRChanges: NewBus[PullRequestChange](),
		Statuses:  NewBus[pr.StatusEvent](),
	}
}

func (s *Streams) PullRequestChanges() <-chan PullRequestChange { return s.PRChanges.Subscribe() }
func (s *Streams) StatusEvents() <-chan pr.StatusEvent          { return s.Statuses.Subscribe() }

var _ Sources = (*Streams)(nil)
