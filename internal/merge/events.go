package merge

import "github.com/wall-e-bot/mergebot/internal/pr"

// Event is the internal event taxonomy from spec §4.1. Each concrete type
// implements Event; Reduce type-switches on it. This mirrors the spec's
// design note (a): a pure reducer consuming a closed set of event shapes.
type Event interface {
	isEvent()
}

// NoMorePullRequestsEvent fires from the "ready" effect when the queue is
// found empty.
type NoMorePullRequestsEvent struct{}

// PullRequestsLoadedEvent carries the bootstrap-ordered initial PR sequence
// computed by the "starting" effect.
type PullRequestsLoadedEvent struct {
	PullRequests []pr.PullRequest
}

// PullRequestDidChangeEvent is the classified result of an external PR
// action (spec §4.1 classification table): exactly one of Include/Exclude
// is set.
type PullRequestDidChangeEvent struct {
	Include *pr.PullRequest
	Exclude *pr.PullRequest
}

// IntegrateEvent fires from the "ready" effect once it has refetched the
// head PR and is ready to attempt integration.
type IntegrateEvent struct {
	Meta pr.Metadata
}

// RetryIntegrationEvent re-enters the integrating status with refreshed
// metadata, used by the unknown/blocked recovery paths.
type RetryIntegrationEvent struct {
	Meta pr.Metadata
}

// IntegrationOutcome distinguishes the three ways an integration attempt
// can resolve.
type IntegrationOutcome string

const (
	IntegrationDone     IntegrationOutcome = "done"
	IntegrationUpdating IntegrationOutcome = "updating"
	IntegrationFailedOutcome IntegrationOutcome = "failed"
)

// IntegrationDidChangeStatusEvent is emitted by the "integrating" effect.
type IntegrationDidChangeStatusEvent struct {
	Outcome IntegrationOutcome
	Meta    pr.Metadata
	Reason  FailureReason // set when Outcome == IntegrationFailedOutcome
}

// ChecksOutcome distinguishes the three ways the status-check wait can
// resolve.
type ChecksOutcome string

const (
	ChecksPassed   ChecksOutcome = "passed"
	ChecksFailed   ChecksOutcome = "failed"
	ChecksTimedOut ChecksOutcome = "timedOut"
)

// StatusChecksDidCompleteEvent is emitted by the "runningStatusChecks"
// effect.
type StatusChecksDidCompleteEvent struct {
	Outcome ChecksOutcome
	Meta    pr.Metadata
}

// IntegrationFailureHandledEvent fires once the "integrationFailed" effect
// has posted its failure comment and removed the integration label (or
// both have failed and been swallowed).
type IntegrationFailureHandledEvent struct{}

func (NoMorePullRequestsEvent) isEvent()         {}
func (PullRequestsLoadedEvent) isEvent()         {}
func (PullRequestDidChangeEvent) isEvent()       {}
func (IntegrateEvent) isEvent()                  {}
func (RetryIntegrationEvent) isEvent()           {}
func (IntegrationDidChangeStatusEvent) isEvent() {}
func (StatusChecksDidCompleteEvent) isEvent()    {}
func (IntegrationFailureHandledEvent) isEvent()  {}
