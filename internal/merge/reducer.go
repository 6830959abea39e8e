package merge

import "github.com/wall-e-bot/mergebot/internal/pr"

// Reduce folds one Event into State, implementing the transition table and
// default reducer from spec §4.1. It is a total, pure function: any event
// with no specific transition for the current status falls through to the
// default reducer, and anything the default reducer also doesn't
// recognize leaves State unchanged (spec §7 "no exceptions escape
// reducers").
func Reduce(s State, ev Event) State {
	switch cur := ev.(type) {

	case PullRequestsLoadedEvent:
		if s.Status.Kind == StatusStarting {
			s.Queue.LoadOrdered(cur.PullRequests)
			if s.Queue.Len() == 0 {
				s.Status = Status{Kind: StatusIdle}
			} else {
				s.Status = Status{Kind: StatusReady}
			}
			return s
		}

	case NoMorePullRequestsEvent:
		if s.Status.Kind == StatusReady {
			s.Status = Status{Kind: StatusIdle}
			return s
		}

	case IntegrateEvent:
		if s.Status.Kind == StatusReady {
			s.Queue.Remove(cur.Meta.Number)
			s.Status = Status{Kind: StatusIntegrating, Meta: cur.Meta}
			return s
		}

	case RetryIntegrationEvent:
		if s.Status.Kind == StatusIntegrating && s.Status.Meta.Number == cur.Meta.Number {
			s.Status = Status{Kind: StatusIntegrating, Meta: cur.Meta}
			return s
		}

	case IntegrationDidChangeStatusEvent:
		if s.Status.Kind == StatusIntegrating {
			switch cur.Outcome {
			case IntegrationDone:
				s.Status = Status{Kind: StatusReady}
				return s
			case IntegrationFailedOutcome:
				s.Status = Status{Kind: StatusIntegrationFailed, Meta: cur.Meta, Reason: cur.Reason}
				return s
			case IntegrationUpdating:
				s.Status = Status{Kind: StatusRunningStatusChecks, Meta: cur.Meta}
				return s
			}
		}

	case StatusChecksDidCompleteEvent:
		if s.Status.Kind == StatusRunningStatusChecks {
			switch cur.Outcome {
			case ChecksPassed:
				s.Status = Status{Kind: StatusIntegrating, Meta: cur.Meta}
				return s
			case ChecksFailed:
				s.Status = Status{Kind: StatusIntegrationFailed, Meta: cur.Meta, Reason: FailureChecksFailing}
				return s
			case ChecksTimedOut:
				s.Status = Status{Kind: StatusIntegrationFailed, Meta: cur.Meta, Reason: FailureTimedOut}
				return s
			}
		}

	case IntegrationFailureHandledEvent:
		if s.Status.Kind == StatusIntegrationFailed {
			s.Status = Status{Kind: StatusReady}
			return s
		}

	case PullRequestDidChangeEvent:
		if cur.Exclude != nil && s.Status.isIntegrationInProgress() && s.Status.Meta.Number == cur.Exclude.Number {
			s.Status = Status{Kind: StatusReady}
			return s
		}
		if cur.Include != nil && s.Status.Kind == StatusIdle {
			s.Queue.Upsert(*cur.Include)
			s.Status = Status{Kind: StatusReady}
			return s
		}
	}

	return defaultReduce(s, ev)
}

// defaultReduce implements spec §4.1's default reducer: queue maintenance
// for include/exclude events regardless of status, identity otherwise.
func defaultReduce(s State, ev Event) State {
	change, ok := ev.(PullRequestDidChangeEvent)
	if !ok {
		return s
	}
	if change.Include != nil {
		s.Queue.Upsert(*change.Include)
	}
	if change.Exclude != nil {
		s.Queue.Remove(change.Exclude.Number)
	}
	return s
}

// Classify maps an external PR-change action onto an include/exclude
// PullRequestDidChangeEvent per spec §4.1's classification table, or
// returns ok=false for actions that should be dropped.
func Classify(meta pr.Metadata, action pr.Action, integrationLabel string) (PullRequestDidChangeEvent, bool) {
	switch action {
	case pr.ActionOpened:
		if meta.HasLabel(integrationLabel) {
			p := meta.PullRequest
			return PullRequestDidChangeEvent{Include: &p}, true
		}
	case pr.ActionLabeled:
		if meta.HasLabel(integrationLabel) && !meta.IsMerged {
			p := meta.PullRequest
			return PullRequestDidChangeEvent{Include: &p}, true
		}
	case pr.ActionUnlabeled:
		if !meta.HasLabel(integrationLabel) {
			p := meta.PullRequest
			return PullRequestDidChangeEvent{Exclude: &p}, true
		}
	case pr.ActionClosed:
		p := meta.PullRequest
		return PullRequestDidChangeEvent{Exclude: &p}, true
	}
	return PullRequestDidChangeEvent{}, false
}
