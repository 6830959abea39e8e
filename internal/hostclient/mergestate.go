package hostclient

import "github.com/wall-e-bot/mergebot/internal/pr"

// mergeStateFromGitHub maps GitHub's mergeable/mergeable_state vocabulary
// onto the spec's MergeState enum. GitHub's API does not use the spec's
// exact terms, so this mapping is the one piece of domain translation this
// package owns outright; mergestate_test.go pins it.
//
// GitHub's documented mergeable_state values: behind, blocked, clean,
// dirty, draft, has_hooks, unknown, unstable. "draft" and "has_hooks" have
// no counterpart in the spec's enum; both are treated as "blocked" since
// in both cases the PR is mergeable but something other than a failing
// check or conflict is holding it back.
func mergeStateFromGitHub(mergeable *bool, mergeableState string) pr.MergeState {
	if mergeable != nil && !*mergeable {
		switch mergeableState {
		case "dirty":
			return pr.MergeStateDirty
		default:
			return pr.MergeStateDirty
		}
	}

	switch mergeableState {
	case "clean":
		return pr.MergeStateClean
	case "behind":
		return pr.MergeStateBehind
	case "blocked", "draft", "has_hooks":
		return pr.MergeStateBlocked
	case "unstable":
		return pr.MergeStateUnstable
	case "dirty":
		return pr.MergeStateDirty
	case "unknown", "":
		return pr.MergeStateUnknown
	default:
		return pr.MergeStateUnknown
	}
}

// checkStateFromGitHub maps a classic status context's state string onto
// the spec's CheckState enum. GitHub's classic statuses use "error" as a
// distinct terminal state from "failure"; both collapse onto CheckFailure
// since the spec's three-state enum has no separate slot for it.
func checkStateFromGitHub(state string) pr.CheckState {
	switch state {
	case "success":
		return pr.CheckSuccess
	case "failure", "error":
		return pr.CheckFailure
	default:
		return pr.CheckPending
	}
}

// checkStateFromConclusion maps a Checks API check run's status/conclusion
// pair onto the spec's CheckState enum, so internal/merge never has to
// know whether a given check came from the classic Status API or the newer
// Checks API (spec §9's fourth, expansion-added open question).
func checkStateFromConclusion(status, conclusion string) pr.CheckState {
	if status != "completed" {
		return pr.CheckPending
	}
	switch conclusion {
	case "success", "neutral", "skipped":
		return pr.CheckSuccess
	default:
		return pr.CheckFailure
	}
}
