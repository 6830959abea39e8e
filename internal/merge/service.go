package merge

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/eventslog"
	"github.com/wall-e-bot/mergebot/internal/hostclient"
	"github.com/wall-e-bot/mergebot/internal/pr"
	"github.com/wall-e-bot/mergebot/internal/queue"
)

// mailboxDepth bounds the Service's event channel. Submitters block once
// full rather than drop events, preserving the at-most-one-in-flight-effect
// ordering guarantee from spec §5.
const mailboxDepth = 64

// Service is one MergeService: a reducer loop, owning exactly one State,
// fed by a single mailbox goroutine (spec §5 "One mailbox per
// MergeService... events for a given branch are processed strictly in
// arrival order").
//
// Effect handlers run on their own goroutines, spawned and cancelled by the
// mailbox loop whenever Status changes in a way that should restart them
// (spec §9's "effect handlers... selected by current state, spawned on
// entry, cancelled on exit"). Reduce itself stays a pure, total function
// returning only the next State; Service is what turns a status change
// into a handler restart, keeping that scheduling policy out of the
// reducer.
type Service struct {
	client   hostclient.Client
	clk      clock.Clock
	log      *logrus.Entry
	activity *eventslog.Log
	initial  []pr.PullRequest

	mailbox     chan Event
	status      chan pr.StatusEvent
	synchronize chan pr.Metadata
	done        chan struct{}

	subMu sync.Mutex
	subs  []chan Transition

	snapMu sync.RWMutex
	snap   StateSnapshot
	cfg    Config

	cancelEffect context.CancelFunc
	effectKey    effectKey
}

// effectKey is the keyed projection of Status that decides whether a status
// change should respawn the running effect handler (spec §9): the spec's
// "meta/timeout pair" note, expressed as the fields an effect handler
// actually reads. Source.SHA is included so a refreshed "behind" retry
// (same PR, new head commit after the target-into-source merge) respawns
// "integrating" even though Kind and PR number are unchanged.
type effectKey struct {
	kind       StatusKind
	number     int
	sha        string
	mergeState pr.MergeState
	reason     FailureReason
}

func keyOf(s Status) effectKey {
	return effectKey{
		kind:       s.Kind,
		number:     s.Meta.Number,
		sha:        s.Meta.Source.SHA,
		mergeState: s.Meta.MergeState,
		reason:     s.Reason,
	}
}

// NewService constructs a MergeService for one target branch. initial is
// the set of PRs already carrying the integration label, discovered during
// dispatcher bootstrap (spec §4.1 "on starting").
func NewService(cfg Config, client hostclient.Client, clk clock.Clock, log *logrus.Entry, activity *eventslog.Log, initial []pr.PullRequest) *Service {
	s := &Service{
		client:   client,
		clk:      clk,
		log:      log,
		activity: activity,
		initial:  initial,
		mailbox:     make(chan Event, mailboxDepth),
		status:      make(chan pr.StatusEvent, mailboxDepth),
		synchronize: make(chan pr.Metadata, mailboxDepth),
		done:        make(chan struct{}),
		cfg:      cfg,
	}
	state := State{Config: cfg, Queue: queue.New(cfg.TopPriorityLabels), Status: Status{Kind: StatusStarting}}
	s.snap = state.Snapshot()
	return s
}

// SubmitPullRequestChange enqueues an external PR action for classification
// and reduction (spec §4.1 classification table).
func (s *Service) SubmitPullRequestChange(meta pr.Metadata, action pr.Action) {
	if action == pr.ActionSynchronize {
		// Not a classification-table action: it only matters while this PR
		// is the one being integrated, where it's the signal the "behind"
		// recovery's effect handler is waiting on (spec §4.1 "behind").
		select {
		case s.synchronize <- meta:
		case <-s.done:
		}
		return
	}
	ev, ok := Classify(meta, action, s.Config().IntegrationLabel)
	if !ok {
		return
	}
	s.submit(ev)
}

// SubmitStatusEvent feeds a status/check-run webhook delivery to whichever
// effect handler is currently subscribed to it (spec §4.1
// "runningStatusChecks").
func (s *Service) SubmitStatusEvent(ev pr.StatusEvent) {
	select {
	case s.status <- ev:
	case <-s.done:
	}
}

func (s *Service) submit(ev Event) {
	select {
	case s.mailbox <- ev:
	case <-s.done:
	}
}

// Config returns the branch configuration this service was built with.
func (s *Service) Config() Config {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.cfg
}

// Snapshot returns the most recently published StateSnapshot. Safe for
// concurrent use from any goroutine (spec §6 "State serialization").
func (s *Service) Snapshot() StateSnapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Subscribe registers a channel that receives every Transition published by
// the reducer loop. The returned channel is buffered; slow subscribers may
// miss transitions rather than block the loop (acceptable for the
// Healthcheck/dispatcher consumers, spec §9).
func (s *Service) Subscribe() <-chan Transition {
	ch := make(chan Transition, 16)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Service) publish(t Transition) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// Run drives the mailbox loop until ctx is cancelled. It must be called
// exactly once, and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	defer close(s.done)

	cfg := s.Config()
	state := State{Config: cfg, Queue: queue.New(cfg.TopPriorityLabels), Status: Status{Kind: StatusStarting}}
	s.publishSnapshot(state)
	s.respawnEffect(ctx, state)

	for {
		select {
		case <-ctx.Done():
			if s.cancelEffect != nil {
				s.cancelEffect()
			}
			return

		case ev := <-s.mailbox:
			prevQueue := numbersOf(state.Queue.Snapshot())
			prevStatus := state.Status
			prevSnap := state.Snapshot()

			state = Reduce(state, ev)
			curSnap := state.Snapshot()

			s.runInsertionEffects(ctx, state, prevQueue, prevStatus)
			s.logTransition(cfg.TargetBranch, prevStatus, state.Status)
			s.publishSnapshot(state)
			if keyOf(prevStatus) != keyOf(state.Status) {
				s.respawnEffect(ctx, state)
			}
			s.publish(Transition{Previous: prevSnap, Current: curSnap})
		}
	}
}

func numbersOf(prs []pr.PullRequest) map[int]struct{} {
	out := make(map[int]struct{}, len(prs))
	for _, p := range prs {
		out[p.Number] = struct{}{}
	}
	return out
}

// runInsertionEffects implements spec §4.1 "on queue insertions": for each
// PR newly present in the queue after this reduction, post the
// acceptance/position comment, prefixed with the reboot banner if the
// service was still recovering its initial queue when the insertion
// happened.
func (s *Service) runInsertionEffects(ctx context.Context, state State, prevQueue map[int]struct{}, prevStatus Status) {
	fromStarting := prevStatus.Kind == StatusStarting
	integrationInProgress := state.Status.isIntegrationInProgress()
	for _, p := range state.Queue.Snapshot() {
		if _, existed := prevQueue[p.Number]; existed {
			continue
		}
		position := state.Queue.PositionOf(p.Number)
		if s.activity != nil {
			_ = s.activity.Write(state.Config.TargetBranch, eventslog.TypeQueued, p.Number, eventslog.QueuePayload(position))
		}
		go runInsertionEffect(ctx, s.client, state.Config.TargetBranch, p, position, integrationInProgress, fromStarting)
	}
}

// logTransition writes an eventslog entry for the status changes an
// operator actually wants in the audit trail (spec §7's structured-logging
// requirement); queue-only reorderings produce no status change and are
// skipped.
func (s *Service) logTransition(branch string, prev, cur Status) {
	if s.activity == nil || prev.Kind == cur.Kind {
		return
	}
	switch cur.Kind {
	case StatusIntegrating:
		if prev.Kind != StatusRunningStatusChecks {
			_ = s.activity.Write(branch, eventslog.TypeMergeStarted, cur.Meta.Number,
				eventslog.MergePayload(cur.Meta.Author, cur.Meta.Source.Name, ""))
		}
	case StatusReady:
		if prev.Kind == StatusIntegrating {
			_ = s.activity.Write(branch, eventslog.TypeMerged, prev.Meta.Number,
				eventslog.MergePayload(prev.Meta.Author, prev.Meta.Source.Name, ""))
		}
	case StatusIntegrationFailed:
		_ = s.activity.Write(branch, eventslog.TypeMergeFailed, cur.Meta.Number,
			eventslog.MergePayload(cur.Meta.Author, cur.Meta.Source.Name, string(cur.Reason)))
	}
}

func (s *Service) publishSnapshot(state State) {
	snap := state.Snapshot()
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

// respawnEffect cancels whatever effect handler is running and starts the
// one appropriate for state.Status. It does not compare keys itself: Run
// calls it only when keyOf(Status) has changed.
func (s *Service) respawnEffect(ctx context.Context, state State) {
	key := keyOf(state.Status)
	if s.cancelEffect != nil {
		s.cancelEffect()
		s.cancelEffect = nil
	}
	s.effectKey = key

	effectCtx, cancel := context.WithCancel(ctx)
	s.cancelEffect = cancel

	emit := func(ev Event) { s.submit(ev) }

	switch state.Status.Kind {
	case StatusStarting:
		go runStartingEffect(effectCtx, s.client, state.Config, s.initial, emit)

	case StatusReady:
		head, ok := state.Queue.Head()
		var headPtr *pr.PullRequest
		if ok {
			headPtr = &head
		}
		go runReadyEffect(effectCtx, s.client, headPtr, emit)

	case StatusIntegrating:
		go runIntegratingEffect(effectCtx, s.client, state.Config, s.clk, state.Status.Meta, s.synchronize, emit)

	case StatusRunningStatusChecks:
		go runRunningStatusChecksEffect(effectCtx, s.client, state.Config, s.clk, state.Status.Meta, s.status, emit)

	case StatusIntegrationFailed:
		go runIntegrationFailedEffect(effectCtx, s.client, state.Config, state.Status.Meta, state.Status.Reason, emit)

	case StatusIdle:
		// No effect handler: idle has nothing to do until a queue change
		// fires PullRequestDidChangeEvent (spec §4.1's default reducer
		// handles that regardless of which effect is running).
	}
}
