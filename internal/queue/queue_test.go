package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wall-e-bot/mergebot/internal/pr"
)

func labeled(number int, labels ...string) pr.PullRequest {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return pr.PullRequest{Number: number, Labels: set}
}

func TestQueue_StableTwoTierPartition(t *testing.T) {
	q := New([]string{"hotfix"})

	_, inserted := q.Upsert(labeled(1))
	require.True(t, inserted)
	q.Upsert(labeled(2, "hotfix"))
	q.Upsert(labeled(3))
	q.Upsert(labeled(4, "hotfix"))

	snap := q.Snapshot()
	numbers := make([]int, len(snap))
	for i, p := range snap {
		numbers[i] = p.Number
	}
	assert.Equal(t, []int{2, 4, 1, 3}, numbers, "top-priority labels must precede normal PRs, insertion order preserved within each tier")
}

func TestQueue_UpsertExistingDoesNotReorder(t *testing.T) {
	q := New(nil)
	q.Upsert(labeled(1))
	q.Upsert(labeled(2))

	pos, inserted := q.Upsert(labeled(1))
	assert.False(t, inserted)
	assert.Equal(t, 0, pos)

	numbers := []int{}
	for _, p := range q.Snapshot() {
		numbers = append(numbers, p.Number)
	}
	assert.Equal(t, []int{1, 2}, numbers)
}

func TestQueue_UpsertMovesToTopTierWhenLabelAdded(t *testing.T) {
	q := New([]string{"hotfix"})
	q.Upsert(labeled(1))
	q.Upsert(labeled(2))
	q.Upsert(labeled(3, "hotfix"))

	pos, inserted := q.Upsert(labeled(1, "hotfix"))
	assert.False(t, inserted)
	assert.Equal(t, 1, pos, "promoted PR goes to the end of the top tier")

	numbers := []int{}
	for _, p := range q.Snapshot() {
		numbers = append(numbers, p.Number)
	}
	assert.Equal(t, []int{3, 1, 2}, numbers)
}

func TestQueue_UpsertMovesToNormalTierWhenLabelRemoved(t *testing.T) {
	q := New([]string{"hotfix"})
	q.Upsert(labeled(1, "hotfix"))
	q.Upsert(labeled(2, "hotfix"))
	q.Upsert(labeled(3))

	pos, inserted := q.Upsert(labeled(1))
	assert.False(t, inserted)
	assert.Equal(t, 2, pos, "demoted PR goes to the end of the normal tier")

	numbers := []int{}
	for _, p := range q.Snapshot() {
		numbers = append(numbers, p.Number)
	}
	assert.Equal(t, []int{2, 3, 1}, numbers)
}

func TestQueue_RemoveAndPositionOf(t *testing.T) {
	q := New([]string{"hotfix"})
	q.Upsert(labeled(1))
	q.Upsert(labeled(2, "hotfix"))
	q.Upsert(labeled(3))

	assert.Equal(t, 0, q.PositionOf(2))
	assert.Equal(t, 1, q.PositionOf(1))
	assert.Equal(t, -1, q.PositionOf(99))

	q.Remove(2)
	assert.Equal(t, -1, q.PositionOf(2))
	assert.Equal(t, 0, q.PositionOf(1))
	assert.Equal(t, 2, q.Len())
}

func TestQueue_IncludeExcludeBalancedPairIsIdempotent(t *testing.T) {
	q := New(nil)
	q.Upsert(labeled(1))
	before := q.Snapshot()

	q.Upsert(labeled(2))
	q.Remove(2)

	after := q.Snapshot()
	require.Len(t, after, len(before))
	assert.Equal(t, before, after)
}

func TestQueue_PopHeadReturnsTopTierFirst(t *testing.T) {
	q := New([]string{"hotfix"})
	q.Upsert(labeled(1))
	q.Upsert(labeled(2, "hotfix"))

	head, ok := q.PopHead()
	require.True(t, ok)
	assert.Equal(t, 2, head.Number)
	assert.Equal(t, 1, q.Len())

	head, ok = q.PopHead()
	require.True(t, ok)
	assert.Equal(t, 1, head.Number)

	_, ok = q.PopHead()
	assert.False(t, ok)
}

func TestQueue_LoadOrderedPartitionsByCurrentLabels(t *testing.T) {
	q := New([]string{"hotfix"})
	q.LoadOrdered([]pr.PullRequest{
		labeled(3),
		labeled(1, "hotfix"),
		labeled(2),
	})

	numbers := []int{}
	for _, p := range q.Snapshot() {
		numbers = append(numbers, p.Number)
	}
	assert.Equal(t, []int{1, 3, 2}, numbers)
}
