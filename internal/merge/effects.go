package merge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/hostclient"
	"github.com/wall-e-bot/mergebot/internal/pr"
)

// acceptedCommentPrefix marks a bot comment that records a PR's queue
// acceptance; the "starting" effect greps for it to recover ordering across
// a restart (spec §4.1 "on starting").
const acceptedCommentPrefix = "accepted"

const rebootBanner = "WallE just started after a reboot.\n"

// runInsertionEffect implements spec §4.1 "on queue insertions": post a
// comment announcing the PR's position, prefixed with the reboot banner if
// this insertion happened while recovering from "starting".
func runInsertionEffect(ctx context.Context, client hostclient.Client, branch string, p pr.PullRequest, position int, integrationInProgress bool, fromStarting bool) {
	var body string
	if position == 0 && !integrationInProgress {
		body = "accepted, handled right away"
	} else {
		body = fmt.Sprintf("accepted, currently #%d in the `%s` queue", position+1, branch)
	}
	if fromStarting {
		body = rebootBanner + body
	}
	_ = client.PostComment(ctx, p.Number, body) // swallowed per spec §4.1
}

// runStartingEffect implements spec §4.1 "on starting": fetch each initial
// PR's comments, find the bot's latest "accepted" comment, and sort
// ascending by that timestamp, with PRs that have none sorted last.
func runStartingEffect(ctx context.Context, client hostclient.Client, cfg Config, initial []pr.PullRequest, emit func(Event)) {
	type ordered struct {
		p   pr.PullRequest
		at  time.Time
		has bool
	}
	entries := make([]ordered, 0, len(initial))

	for _, p := range initial {
		e := ordered{p: p}
		comments, err := client.FetchIssueComments(ctx, p.Number)
		if err == nil {
			for _, c := range comments {
				if cfg.BotUser != 0 && c.UserID != cfg.BotUser {
					continue
				}
				if !containsAccepted(c.Body) {
					continue
				}
				if !e.has || c.CreatedAt.After(e.at) {
					e.at = c.CreatedAt
					e.has = true
				}
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ai, aj := entries[i], entries[j]
		if ai.has != aj.has {
			return ai.has // has-timestamp entries sort before distant-future entries
		}
		if !ai.has {
			return false // both distant-future: stable, preserve input order
		}
		return ai.at.Before(aj.at)
	})

	out := make([]pr.PullRequest, len(entries))
	for i, e := range entries {
		out[i] = e.p
	}
	emit(PullRequestsLoadedEvent{PullRequests: out})
}

func containsAccepted(body string) bool {
	return len(body) >= len(acceptedCommentPrefix) && indexFold(body, acceptedCommentPrefix) >= 0
}

func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// runReadyEffect implements spec §4.1 "on ready": re-fetch the head PR and
// emit integrate, or emit noMorePullRequests if the queue is empty. Fetch
// errors drop the effect silently (spec §4.1, §7).
func runReadyEffect(ctx context.Context, client hostclient.Client, head *pr.PullRequest, emit func(Event)) {
	if head == nil {
		emit(NoMorePullRequestsEvent{})
		return
	}
	meta, err := client.FetchPullRequest(ctx, head.Number)
	if err != nil {
		return
	}
	emit(IntegrateEvent{Meta: meta})
}

// runIntegratingEffect implements spec §4.1 "on integrating": the full
// mergeability-state switch.
func runIntegratingEffect(ctx context.Context, client hostclient.Client, cfg Config, clk clock.Clock, meta pr.Metadata, synchronize <-chan pr.Metadata, emit func(Event)) {
	if meta.IsMerged {
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationDone, Meta: meta})
		return
	}

	switch meta.MergeState {
	case pr.MergeStateClean:
		integrateClean(ctx, client, meta, emit)

	case pr.MergeStateUnstable:
		if !cfg.RequiresAllStatusChecks {
			integrateClean(ctx, client, meta, emit)
			return
		}
		integrateBlocked(ctx, client, cfg, meta, emit)

	case pr.MergeStateBehind:
		integrateBehind(ctx, client, clk, meta, synchronize, emit)

	case pr.MergeStateBlocked:
		integrateBlocked(ctx, client, cfg, meta, emit)

	case pr.MergeStateDirty:
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureConflicts})

	case pr.MergeStateUnknown:
		integrateUnknown(ctx, client, clk, meta, emit)

	default:
		// A webhook-sourced retry (e.g. the "behind" recovery's synchronize
		// action) carries whatever mergeability the delivery payload had,
		// which GitHub often hasn't finished recomputing yet. Treat an
		// unrecognized/empty value the same as "unknown": poll until the
		// host settles on a real classification.
		integrateUnknown(ctx, client, clk, meta, emit)
	}
}

func integrateClean(ctx context.Context, client hostclient.Client, meta pr.Metadata, emit func(Event)) {
	if err := client.MergePullRequest(ctx, meta.Number); err != nil {
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureMergeFailed})
		return
	}
	_ = client.DeleteBranch(ctx, meta.Source.Name) // swallowed per spec §4.1
	emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationDone, Meta: meta})
}

func integrateBehind(ctx context.Context, client hostclient.Client, clk clock.Clock, meta pr.Metadata, synchronize <-chan pr.Metadata, emit func(Event)) {
	result, err := client.Merge(ctx, meta.Target.Name, meta.Source.Name)
	if err != nil {
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureSynchronizationFailed})
		return
	}
	switch result {
	case pr.MergeResultConflict:
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureConflicts})
	case pr.MergeResultUpToDate, pr.MergeResultSuccess:
		waitForSynchronize(ctx, clk, meta, synchronize, emit)
	}
}

// waitForSynchronize implements spec §4.1's "behind" clause literally: after
// requesting target-into-source merge, wait for the host to report the
// corresponding synchronize action on the PR's own source ref, bounded by a
// 60s timeout (spec §9 OQ3). A matching action emits updating(meta), which
// the reducer turns into runningStatusChecks; anything else on the channel
// (another PR's synchronize, delivered before the dispatcher routed it away)
// is ignored.
func waitForSynchronize(ctx context.Context, clk clock.Clock, meta pr.Metadata, synchronize <-chan pr.Metadata, emit func(Event)) {
	timer := clk.After(SynchronizeWaitTimeout)
	defer timer.Stop()
	for {
		select {
		case <-timer.C():
			emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureSynchronizationFailed})
			return
		case <-ctx.Done():
			return
		case synced := <-synchronize:
			if synced.Number != meta.Number {
				continue
			}
			emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationUpdating, Meta: synced})
			return
		}
	}
}

func integrateBlocked(ctx context.Context, client hostclient.Client, cfg Config, meta pr.Metadata, emit func(Event)) {
	checks, err := client.FetchAllStatusChecks(ctx, meta.Number)
	if err != nil {
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureCheckingCommitChecksFailed})
		return
	}
	for _, c := range checks {
		if c.State == pr.CheckPending {
			emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationUpdating, Meta: meta})
			return
		}
	}

	combined, err := client.FetchCommitStatus(ctx, meta.Source.SHA)
	if err != nil {
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureCheckingCommitChecksFailed})
		return
	}

	switch combined.State {
	case pr.CheckPending:
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationUpdating, Meta: meta})
	case pr.CheckFailure:
		emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureChecksFailing})
	case pr.CheckSuccess:
		refreshed, err := client.FetchPullRequest(ctx, meta.Number)
		if err != nil {
			emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureCheckingCommitChecksFailed})
			return
		}
		if refreshed.MergeState == pr.MergeStateClean {
			emit(RetryIntegrationEvent{Meta: refreshed})
		} else {
			emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: refreshed, Reason: FailureBlocked})
		}
	}
	_ = cfg // RequiresAllStatusChecks is consulted by the caller before dispatch
}

func integrateUnknown(ctx context.Context, client hostclient.Client, clk clock.Clock, meta pr.Metadata, emit func(Event)) {
	for attempt := 0; attempt < UnknownMergeStateMaxRetries; attempt++ {
		timer := clk.After(UnknownMergeStateRetryInterval)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			return
		}

		refreshed, err := client.FetchPullRequest(ctx, meta.Number)
		if err != nil {
			continue
		}
		if refreshed.MergeState != pr.MergeStateUnknown {
			emit(RetryIntegrationEvent{Meta: refreshed})
			return
		}
	}
	emit(IntegrationDidChangeStatusEvent{Outcome: IntegrationFailedOutcome, Meta: meta, Reason: FailureUnknown})
}

// runRunningStatusChecksEffect implements spec §4.1 "on runningStatusChecks":
// subscribe to the shared status-event stream, debounce bursts, then
// recombine and classify, bounded by cfg.StatusChecksTimeout.
func runRunningStatusChecksEffect(ctx context.Context, client hostclient.Client, cfg Config, clk clock.Clock, meta pr.Metadata, statusEvents <-chan pr.StatusEvent, emit func(Event)) {
	overall := clk.After(cfg.StatusChecksTimeout)
	defer overall.Stop()

	debounce := clk.After(AdditionalStatusChecksGracePeriod)
	debounce.Stop() // armed only once a qualifying event arrives

	armed := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-overall.C():
			emit(StatusChecksDidCompleteEvent{Outcome: ChecksTimedOut, Meta: meta})
			return

		case ev, ok := <-statusEvents:
			if !ok {
				continue
			}
			if ev.State == pr.CheckPending || !ev.IsRelative(meta.Source.Name) {
				continue
			}
			debounce.Reset(AdditionalStatusChecksGracePeriod)
			armed = true

		case <-debounce.C():
			if !armed {
				continue
			}
			armed = false
			// Refetch the PR before reading its commit status and before
			// handing control back to "integrating": GitHub recomputes
			// mergeable_state asynchronously, so the PR may have settled to
			// clean while checks were running. Without this the reducer
			// re-enters integrating with the stale pre-checks MergeState and
			// can loop back into the "behind" handler instead of merging. A
			// failed refetch falls back to meta.
			resolved := meta
			if refreshed, ferr := client.FetchPullRequest(ctx, meta.Number); ferr == nil {
				resolved = refreshed
			}
			outcome, err := evaluateStatusChecks(ctx, client, cfg, resolved)
			if err != nil {
				continue // transient host error: wait for the next qualifying event or the overall timeout
			}
			if outcome != nil {
				emit(StatusChecksDidCompleteEvent{Outcome: *outcome, Meta: resolved})
				return
			}
		}
	}
}

// evaluateStatusChecks fetches the commit status of meta's source SHA (the
// caller passes freshly refetched metadata) and combines it per spec
// §4.1's requiresAllStatusChecks branch, returning nil when the result is
// still pending (the caller keeps waiting).
func evaluateStatusChecks(ctx context.Context, client hostclient.Client, cfg Config, meta pr.Metadata) (*ChecksOutcome, error) {
	combined, err := client.FetchCommitStatus(ctx, meta.Source.SHA)
	if err != nil {
		return nil, err
	}

	var aggregate pr.CheckState
	if cfg.RequiresAllStatusChecks {
		aggregate = combined.State
	} else {
		required, err := client.FetchRequiredStatusChecks(ctx, cfg.TargetBranch)
		if err != nil {
			return nil, err
		}
		byContext := make(map[string]pr.CheckState, len(combined.Statuses))
		for _, s := range combined.Statuses {
			byContext[s.Context] = s.State
		}
		states := make([]pr.CheckState, 0, len(required.Contexts))
		for _, c := range required.Contexts {
			state, ok := byContext[c]
			if !ok {
				state = pr.CheckPending
			}
			states = append(states, state)
		}
		aggregate = pr.CombineStates(states)
	}

	var outcome ChecksOutcome
	switch aggregate {
	case pr.CheckPending:
		return nil, nil
	case pr.CheckFailure:
		outcome = ChecksFailed
	case pr.CheckSuccess:
		outcome = ChecksPassed
	}
	return &outcome, nil
}

// runIntegrationFailedEffect implements spec §4.1 "on integrationFailed":
// post the failure comment and remove the integration label, swallowing
// either failure, then signal completion once both have been attempted.
func runIntegrationFailedEffect(ctx context.Context, client hostclient.Client, cfg Config, meta pr.Metadata, reason FailureReason, emit func(Event)) {
	body := fmt.Sprintf("@%s unfortunately the integration failed with code: `%s`.", meta.Author, reason)
	_ = client.PostComment(ctx, meta.Number, body)
	_ = client.RemoveLabel(ctx, meta.Number, cfg.IntegrationLabel)
	emit(IntegrationFailureHandledEvent{})
}
