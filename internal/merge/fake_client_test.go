package merge

import (
	"context"
	"sync"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

// fakeClient is a recording, preset-driven hostclient.Client for the
// scenario and invariant tests below. Every method is safe for concurrent
// use since effect handlers run on their own goroutines.
type fakeClient struct {
	mu sync.Mutex

	metas    map[int]pr.Metadata
	comments map[int][]pr.IssueComment
	checks   map[int][]pr.StatusCheck
	commits  map[string]pr.CommitState
	required pr.RequiredStatusChecks

	mergeResult pr.MergeResult
	mergeErr    error
	mergePRErr  error

	calls []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		metas:    map[int]pr.Metadata{},
		comments: map[int][]pr.IssueComment{},
		checks:   map[int][]pr.StatusCheck{},
		commits:  map[string]pr.CommitState{},
	}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) setPR(m pr.Metadata) {
	f.mu.Lock()
	f.metas[m.Number] = m
	f.mu.Unlock()
}

func (f *fakeClient) FetchPullRequest(ctx context.Context, number int) (pr.Metadata, error) {
	f.record("FetchPullRequest")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metas[number], nil
}

func (f *fakeClient) FetchOpenPullRequestsWithLabel(ctx context.Context, label string) ([]pr.Metadata, error) {
	f.record("FetchOpenPullRequestsWithLabel")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pr.Metadata
	for _, m := range f.metas {
		if m.HasLabel(label) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeClient) FetchIssueComments(ctx context.Context, number int) ([]pr.IssueComment, error) {
	f.record("FetchIssueComments")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments[number], nil
}

func (f *fakeClient) FetchAllStatusChecks(ctx context.Context, number int) ([]pr.StatusCheck, error) {
	f.record("FetchAllStatusChecks")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks[number], nil
}

func (f *fakeClient) FetchCommitStatus(ctx context.Context, ref string) (pr.CommitState, error) {
	f.record("FetchCommitStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[ref], nil
}

func (f *fakeClient) FetchRequiredStatusChecks(ctx context.Context, branch string) (pr.RequiredStatusChecks, error) {
	f.record("FetchRequiredStatusChecks")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.required, nil
}

func (f *fakeClient) PostComment(ctx context.Context, number int, body string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "PostComment:"+body)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) RemoveLabel(ctx context.Context, number int, label string) error {
	f.record("RemoveLabel")
	return nil
}

func (f *fakeClient) MergePullRequest(ctx context.Context, number int) error {
	f.record("MergePullRequest")
	return f.mergePRErr
}

func (f *fakeClient) Merge(ctx context.Context, head, source string) (pr.MergeResult, error) {
	f.record("Merge")
	return f.mergeResult, f.mergeErr
}

func (f *fakeClient) DeleteBranch(ctx context.Context, name string) error {
	f.record("DeleteBranch")
	return nil
}

func (f *fakeClient) callsContaining(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(substr) && contains(c, substr) {
			n++
		}
	}
	return n
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
