package dispatch

import (
	"context"
	"sync"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

type fakeClient struct {
	mu    sync.Mutex
	metas map[int]pr.Metadata
	open  []pr.Metadata
}

func newFakeClient(open ...pr.Metadata) *fakeClient {
	metas := make(map[int]pr.Metadata, len(open))
	for _, m := range open {
		metas[m.Number] = m
	}
	return &fakeClient{metas: metas, open: open}
}

func (f *fakeClient) FetchPullRequest(ctx context.Context, number int) (pr.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metas[number], nil
}

func (f *fakeClient) FetchOpenPullRequestsWithLabel(ctx context.Context, label string) ([]pr.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pr.Metadata
	for _, m := range f.open {
		if m.HasLabel(label) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeClient) FetchIssueComments(ctx context.Context, number int) ([]pr.IssueComment, error) {
	return nil, nil
}

func (f *fakeClient) FetchAllStatusChecks(ctx context.Context, number int) ([]pr.StatusCheck, error) {
	return nil, nil
}

func (f *fakeClient) FetchCommitStatus(ctx context.Context, ref string) (pr.CommitState, error) {
	return pr.CommitState{}, nil
}

func (f *fakeClient) FetchRequiredStatusChecks(ctx context.Context, branch string) (pr.RequiredStatusChecks, error) {
	return pr.RequiredStatusChecks{}, nil
}

func (f *fakeClient) PostComment(ctx context.Context, number int, body string) error { return nil }

func (f *fakeClient) RemoveLabel(ctx context.Context, number int, label string) error { return nil }

func (f *fakeClient) MergePullRequest(ctx context.Context, number int) error { return nil }

func (f *fakeClient) Merge(ctx context.Context, head, source string) (pr.MergeResult, error) {
	return pr.MergeResultSuccess, nil
}

func (f *fakeClient) DeleteBranch(ctx context.Context, name string) error { return nil }
