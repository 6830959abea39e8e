// Package queue implements the merge queue's stable two-tier ordering:
// every PR carrying one of the configured top-priority labels precedes
// every PR that doesn't, and within a tier, PRs stay in arrival order.
//
// This replaces the teacher's continuous priority-score ranking
// (internal/refinery/score.go's weighted ConvoyAge/Priority/Retry/MRAge
// formula) with the simpler stable partition the spec calls for; the
// insertion-order tiebreak within a tier is the one idea kept from that
// scoring model (its MRAgeWeight existed for the same FIFO reason).
package queue

import "github.com/wall-e-bot/mergebot/internal/pr"

// Queue holds the PRs currently labeled for integration on one target
// branch, partitioned into a top-priority tier and a normal tier.
type Queue struct {
	topPriorityLabels map[string]struct{}
	top               []pr.PullRequest
	normal            []pr.PullRequest
}

// New builds an empty queue that treats any PR carrying one of
// topPriorityLabels as belonging to the top tier.
func New(topPriorityLabels []string) *Queue {
	labels := make(map[string]struct{}, len(topPriorityLabels))
	for _, l := range topPriorityLabels {
		labels[l] = struct{}{}
	}
	return &Queue{topPriorityLabels: labels}
}

func (q *Queue) isTopPriority(p pr.PullRequest) bool {
	for label := range q.topPriorityLabels {
		if p.HasLabel(label) {
			return true
		}
	}
	return false
}

// Upsert inserts p if its number isn't already queued. If it is already
// queued and its current labels still match its current tier, the stored
// snapshot is updated in place without moving it. If its labels now put it
// in the other tier (e.g. a top-priority label was added or removed while
// queued), it is moved there, appended to the end — the same arrival-order
// tiebreak a fresh insertion gets — rather than left stranded in its old
// tier. Returns the resulting 0-based position in the combined queue and
// whether this was a new insertion.
func (q *Queue) Upsert(p pr.PullRequest) (position int, inserted bool) {
	wantsTop := q.isTopPriority(p)

	if idx := indexOf(q.top, p.Number); idx >= 0 {
		if wantsTop {
			q.top[idx] = p
			return idx, false
		}
		q.top = append(q.top[:idx], q.top[idx+1:]...)
		q.normal = append(q.normal, p)
		return len(q.top) + len(q.normal) - 1, false
	}
	if idx := indexOf(q.normal, p.Number); idx >= 0 {
		if !wantsTop {
			q.normal[idx] = p
			return len(q.top) + idx, false
		}
		q.normal = append(q.normal[:idx], q.normal[idx+1:]...)
		q.top = append(q.top, p)
		return len(q.top) - 1, false
	}

	if wantsTop {
		q.top = append(q.top, p)
		return len(q.top) - 1, true
	}
	q.normal = append(q.normal, p)
	return len(q.top) + len(q.normal) - 1, true
}

// Remove drops the PR with the given number from the queue, if present.
func (q *Queue) Remove(number int) {
	if idx := indexOf(q.top, number); idx >= 0 {
		q.top = append(q.top[:idx], q.top[idx+1:]...)
		return
	}
	if idx := indexOf(q.normal, number); idx >= 0 {
		q.normal = append(q.normal[:idx], q.normal[idx+1:]...)
	}
}

// Len returns the number of PRs currently queued.
func (q *Queue) Len() int {
	return len(q.top) + len(q.normal)
}

// Head returns the PR at the front of the queue (top tier first).
func (q *Queue) Head() (pr.PullRequest, bool) {
	if len(q.top) > 0 {
		return q.top[0], true
	}
	if len(q.normal) > 0 {
		return q.normal[0], true
	}
	return pr.PullRequest{}, false
}

// PopHead removes and returns the PR at the front of the queue.
func (q *Queue) PopHead() (pr.PullRequest, bool) {
	head, ok := q.Head()
	if !ok {
		return pr.PullRequest{}, false
	}
	q.Remove(head.Number)
	return head, true
}

// PositionOf returns the 0-based position of number in the combined
// ordering, or -1 if it isn't queued.
func (q *Queue) PositionOf(number int) int {
	if idx := indexOf(q.top, number); idx >= 0 {
		return idx
	}
	if idx := indexOf(q.normal, number); idx >= 0 {
		return len(q.top) + idx
	}
	return -1
}

// Snapshot returns the queue's current contents in order: all top-priority
// PRs, then all normal PRs, each in arrival order.
func (q *Queue) Snapshot() []pr.PullRequest {
	out := make([]pr.PullRequest, 0, q.Len())
	out = append(out, q.top...)
	out = append(out, q.normal...)
	return out
}

// LoadOrdered replaces the queue's contents with prs, re-partitioning each
// one by its current labels while preserving the given relative order
// within each resulting tier. Used by the "starting" bootstrap effect,
// which hands the reducer an externally-sorted initial sequence.
func (q *Queue) LoadOrdered(prs []pr.PullRequest) {
	q.top = q.top[:0]
	q.normal = q.normal[:0]
	for _, p := range prs {
		if q.isTopPriority(p) {
			q.top = append(q.top, p)
		} else {
			q.normal = append(q.normal, p)
		}
	}
}

func indexOf(prs []pr.PullRequest, number int) int {
	for i, p := range prs {
		if p.Number == number {
			return i
		}
	}
	return -1
}
