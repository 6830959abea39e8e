package hostclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

// GitHubClient implements Client against the real GitHub REST API.
type GitHubClient struct {
	gh    *github.Client
	owner string
	repo  string
	log   *logrus.Entry
}

// NewGitHubClient builds a GitHubClient authenticated with a personal
// access token (or GitHub App installation token) for owner/repo.
func NewGitHubClient(ctx context.Context, owner, repo, token string, log *logrus.Entry) *GitHubClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	return &GitHubClient{
		gh:    github.NewClient(httpClient),
		owner: owner,
		repo:  repo,
		log:   log,
	}
}

func (c *GitHubClient) FetchPullRequest(ctx context.Context, number int) (pr.Metadata, error) {
	ghPR, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return pr.Metadata{}, wrap("FetchPullRequest", fmt.Sprintf("#%d", number), err)
	}

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
		IsMerged:   ghPR.GetMerged(),
		MergeState: mergeStateFromGitHub(ghPR.Mergeable, ghPR.GetMergeableState()),
	}
	return meta, nil
}

func (c *GitHubClient) FetchOpenPullRequestsWithLabel(ctx context.Context, label string) ([]pr.Metadata, error) {
	var out []pr.Metadata
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, wrap("FetchOpenPullRequestsWithLabel", label, err)
		}
		for _, ghPR := range prs {
			if !hasLabel(ghPR.Labels, label) {
				continue
			}
			meta, err := c.FetchPullRequest(ctx, ghPR.GetNumber())
			if err != nil {
				return nil, err
			}
			out = append(out, meta)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func hasLabel(labels []*github.Label, name string) bool {
	for _, l := range labels {
		if l.GetName() == name {
			return true
		}
	}
	return false
}

func (c *GitHubClient) FetchIssueComments(ctx context.Context, number int) ([]pr.IssueComment, error) {
	var out []pr.IssueComment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, wrap("FetchIssueComments", fmt.Sprintf("#%d", number), err)
		}
		for _, ghComment := range comments {
			out = append(out, pr.IssueComment{
				ID:        ghComment.GetID(),
				UserID:    ghComment.GetUser().GetID(),
				Body:      ghComment.GetBody(),
				CreatedAt: ghComment.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *GitHubClient) FetchAllStatusChecks(ctx context.Context, number int) ([]pr.StatusCheck, error) {
	meta, err := c.FetchPullRequest(ctx, number)
	if err != nil {
		return nil, err
	}
	sha := meta.Source.SHA

	var out []pr.StatusCheck

	status, _, err := c.gh.Repositories.GetCombinedStatus(ctx, c.owner, c.repo, sha, nil)
	if err != nil {
		return nil, wrap("FetchAllStatusChecks", sha, err)
	}
	for _, s := range status.Statuses {
		out = append(out, pr.StatusCheck{
			Context: s.GetContext(),
			State:   checkStateFromGitHub(s.GetState()),
		})
	}

	runs, _, err := c.gh.Checks.ListCheckRunsForRef(ctx, c.owner, c.repo, sha, nil)
	if err != nil {
		return nil, wrap("FetchAllStatusChecks", sha, err)
	}
	for _, run := range runs.CheckRuns {
		out = append(out, pr.StatusCheck{
			Context: run.GetName(),
			State:   checkStateFromConclusion(run.GetStatus(), run.GetConclusion()),
		})
	}

	return out, nil
}

func (c *GitHubClient) FetchCommitStatus(ctx context.Context, ref string) (pr.CommitState, error) {
	status, _, err := c.gh.Repositories.GetCombinedStatus(ctx, c.owner, c.repo, ref, nil)
	if err != nil {
		return pr.CommitState{}, wrap("FetchCommitStatus", ref, err)
	}

	checks := make([]pr.StatusCheck, 0, len(status.Statuses))
	for _, s := range status.Statuses {
		checks = append(checks, pr.StatusCheck{
			Context: s.GetContext(),
			State:   checkStateFromGitHub(s.GetState()),
		})
	}
	return pr.CommitState{
		State:    checkStateFromGitHub(status.GetState()),
		Statuses: checks,
	}, nil
}

func (c *GitHubClient) FetchRequiredStatusChecks(ctx context.Context, branch string) (pr.RequiredStatusChecks, error) {
	rsc, _, err := c.gh.Repositories.GetRequiredStatusChecks(ctx, c.owner, c.repo, branch)
	if err != nil {
		return pr.RequiredStatusChecks{}, wrap("FetchRequiredStatusChecks", branch, err)
	}
	return pr.RequiredStatusChecks{Contexts: rsc.Contexts}, nil
}

func (c *GitHubClient) PostComment(ctx context.Context, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{
		Body: github.String(body),
	})
	return wrap("PostComment", fmt.Sprintf("#%d", number), err)
}

func (c *GitHubClient) RemoveLabel(ctx context.Context, number int, label string) error {
	_, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label)
	if err != nil && isNotFound(err) {
		// Already gone; removing a label that isn't there is not a failure.
		return nil
	}
	return wrap("RemoveLabel", fmt.Sprintf("#%d %s", number, label), err)
}

func (c *GitHubClient) MergePullRequest(ctx context.Context, number int) error {
	result, _, err := c.gh.PullRequests.Merge(ctx, c.owner, c.repo, number, "", &github.PullRequestOptions{
		MergeMethod: "squash",
	})
	if err != nil {
		return wrap("MergePullRequest", fmt.Sprintf("#%d", number), err)
	}
	if result != nil && !result.GetMerged() {
		return wrap("MergePullRequest", fmt.Sprintf("#%d", number), fmt.Errorf("%s", result.GetMessage()))
	}
	return nil
}

func (c *GitHubClient) Merge(ctx context.Context, head, source string) (pr.MergeResult, error) {
	_, resp, err := c.gh.Repositories.Merge(ctx, c.owner, c.repo, &github.RepositoryMergeRequest{
		Base: github.String(source),
		Head: github.String(head),
	})
	if err == nil {
		return pr.MergeResultSuccess, nil
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNoContent:
			return pr.MergeResultUpToDate, nil
		case http.StatusConflict:
			return pr.MergeResultConflict, nil
		}
	}
	return "", wrap("Merge", head+"->"+source, err)
}

func (c *GitHubClient) DeleteBranch(ctx context.Context, name string) error {
	ref := "refs/heads/" + strings.TrimPrefix(name, "refs/heads/")
	_, err := c.gh.Git.DeleteRef(ctx, c.owner, c.repo, ref)
	if err != nil && isNotFound(err) {
		return nil
	}
	return wrap("DeleteBranch", name, err)
}

func isNotFound(err error) bool {
	if ghErr, ok := err.(*github.ErrorResponse); ok {
		return ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

var _ Client = (*GitHubClient)(nil)
