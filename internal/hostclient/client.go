// Package hostclient is the code-host client consumed by the merge queue
// (spec §6 "Host API"). Client is the interface internal/merge programs
// against; GitHubClient is the production implementation backed by
// google/go-github.
package hostclient

import (
	"context"
	"fmt"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

// Client is every PR/branch operation the merge queue issues against the
// code-hosting platform. Implementations must be safe for concurrent use.
type Client interface {
	FetchPullRequest(ctx context.Context, number int) (pr.Metadata, error)
	// FetchOpenPullRequestsWithLabel lists every open PR across the
	// repository carrying label, for the dispatcher's startup bootstrap
	// (spec §4.3 responsibility 4).
	FetchOpenPullRequestsWithLabel(ctx context.Context, label string) ([]pr.Metadata, error)
	FetchIssueComments(ctx context.Context, number int) ([]pr.IssueComment, error)
	FetchAllStatusChecks(ctx context.Context, number int) ([]pr.StatusCheck, error)
	FetchCommitStatus(ctx context.Context, ref string) (pr.CommitState, error)
	FetchRequiredStatusChecks(ctx context.Context, branch string) (pr.RequiredStatusChecks, error)
	PostComment(ctx context.Context, number int, body string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	MergePullRequest(ctx context.Context, number int) error
	Merge(ctx context.Context, head, source string) (pr.MergeResult, error)
	DeleteBranch(ctx context.Context, name string) error
}

// Error wraps a host-client operation failure with enough context to log
// and classify it, mirroring the teacher's internal/mail/bd.go bdError
// idiom (wrap the underlying error, keep the operation's identity
// alongside it) but for REST calls instead of a subprocess's stderr.
type Error struct {
	Op  string
	Ref string
	Err error
}

func (e *Error) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("hostclient: %s %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("hostclient: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Ref: ref, Err: err}
}
