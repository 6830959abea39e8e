package eventsource

import (
	"fmt"

	"github.com/google/go-github/v57/github"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

// WebhookTranslator decodes raw GitHub webhook deliveries and publishes the
// corresponding PullRequestChange or StatusEvent onto a Streams (spec §4.6).
// The HTTP handler that reads a delivery off the wire and verifies its
// signature is out of scope (spec §1 Non-goals); this translator starts
// from the already-authenticated (eventType, payload) pair the handler
// hands it.
type WebhookTranslator struct {
	streams *Streams
}

// NewWebhookTranslator builds a translator publishing onto streams.
func NewWebhookTranslator(streams *Streams) *WebhookTranslator {
	return &WebhookTranslator{streams: streams}
}

// Handle decodes one webhook delivery and publishes it. Event types the
// merge queue doesn't care about (e.g. "issues", "push") are accepted and
// silently dropped.
func (t *WebhookTranslator) Handle(eventType string, payload []byte) error {
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return fmt.Errorf("parsing %s webhook: %w", eventType, err)
	}

	switch e := event.(type) {
	case *github.PullRequestEvent:
		t.handlePullRequestEvent(e)
	case *github.StatusEvent:
		t.handleStatusEvent(e)
	case *github.CheckRunEvent:
		t.handleCheckRunEvent(e)
	case *github.CheckSuiteEvent:
		t.handleCheckSuiteEvent(e)
	}
	return nil
}

func (t *WebhookTranslator) handlePullRequestEvent(e *github.PullRequestEvent) {
	action := actionFromWebhook(e.GetAction())
	if action == pr.ActionOther {
		return
	}

	ghPR := e.GetPullRequest()
	labels := make(map[string]struct{}, len(ghPR.Labels))
	for _, l := range ghPR.Labels {
		labels[l.GetName()] = struct{}{}
	}

	meta := pr.Metadata{
		PullRequest: pr.PullRequest{
			Number: ghPR.GetNumber(),
			Source: pr.Ref{Name: ghPR.GetHead().GetRef(), SHA: ghPR.GetHead().GetSHA()},
			Target: pr.Ref{Name: ghPR.GetBase().GetRef(), SHA: ghPR.GetBase().GetSHA()},
			Author: ghPR.GetUser().GetLogin(),
			Labels: labels,
			Title:  ghPR.GetTitle(),
		},
		IsMerged: ghPR.GetMerged(),
	}

	t.streams.PRChanges.Publish(PullRequestChange{Meta: meta, Action: action})
}

func actionFromWebhook(action string) pr.Action {
	switch action {
	case "opened", "reopened":
		return pr.ActionOpened
	case "labeled":
		return pr.ActionLabeled
	case "unlabeled":
		return pr.ActionUnlabeled
	case "closed":
		return pr.ActionClosed
	case "synchronize":
		return pr.ActionSynchronize
	default:
		return pr.ActionOther
	}
}

func (t *WebhookTranslator) handleStatusEvent(e *github.StatusEvent) {
	var branch string
	if len(e.Branches) > 0 {
		branch = e.Branches[0].GetName()
	}
	t.streams.Statuses.Publish(pr.StatusEvent{
		Context:   e.GetContext(),
		State:     checkStateFromGitHubStatus(e.GetState()),
		SHA:       e.GetSHA(),
		BranchRef: branch,
	})
}

func (t *WebhookTranslator) handleCheckRunEvent(e *github.CheckRunEvent) {
	run := e.GetCheckRun()
	if run.GetStatus() != "completed" {
		return
	}
	var branch string
	if prs := run.GetCheckSuite().PullRequests; len(prs) > 0 {
		branch = prs[0].GetHead().GetRef()
	}
	t.streams.Statuses.Publish(pr.StatusEvent{
		Context:   run.GetName(),
		State:     checkStateFromConclusion(run.GetConclusion()),
		SHA:       run.GetHeadSHA(),
		BranchRef: branch,
	})
}

func (t *WebhookTranslator) handleCheckSuiteEvent(e *github.CheckSuiteEvent) {
	suite := e.GetCheckSuite()
	if suite.GetStatus() != "completed" {
		return
	}
	var branch string
	if prs := suite.PullRequests; len(prs) > 0 {
		branch = prs[0].GetHead().GetRef()
	}
	t.streams.Statuses.Publish(pr.StatusEvent{
		Context:   "check_suite",
		State:     checkStateFromConclusion(suite.GetConclusion()),
		SHA:       suite.GetHeadSHA(),
		BranchRef: branch,
	})
}

func checkStateFromGitHubStatus(state string) pr.CheckState {
	switch state {
	case "success":
		return pr.CheckSuccess
	case "failure", "error":
		return pr.CheckFailure
	default:
		return pr.CheckPending
	}
}

func checkStateFromConclusion(conclusion string) pr.CheckState {
	switch conclusion {
	case "success", "neutral", "skipped":
		return pr.CheckSuccess
	default:
		return pr.CheckFailure
	}
}
