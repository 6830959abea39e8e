// Package merge implements the per-target-branch merge state machine: the
// reducer, its effect handlers, and the mailbox that serializes delivery of
// events to them (spec §4.1, §5).
package merge

import (
	"time"

	"github.com/wall-e-bot/mergebot/internal/pr"
	"github.com/wall-e-bot/mergebot/internal/queue"
)

// FailureReason classifies why an integration attempt terminated.
type FailureReason string

const (
	FailureConflicts                   FailureReason = "conflicts"
	FailureMergeFailed                 FailureReason = "mergeFailed"
	FailureSynchronizationFailed       FailureReason = "synchronizationFailed"
	FailureCheckingCommitChecksFailed  FailureReason = "checkingCommitChecksFailed"
	FailureChecksFailing               FailureReason = "checksFailing"
	FailureTimedOut                    FailureReason = "timedOut"
	FailureBlocked                     FailureReason = "blocked"
	FailureUnknown                     FailureReason = "unknown"
)

// StatusKind names one of MergeService's six statuses (spec §3).
type StatusKind string

const (
	StatusStarting             StatusKind = "starting"
	StatusIdle                 StatusKind = "idle"
	StatusReady                StatusKind = "ready"
	StatusIntegrating          StatusKind = "integrating"
	StatusRunningStatusChecks  StatusKind = "runningStatusChecks"
	StatusIntegrationFailed    StatusKind = "integrationFailed"
)

// Status is the tagged union described in spec §3/§6: Kind selects which of
// Meta/Reason apply.
type Status struct {
	Kind   StatusKind
	Meta   pr.Metadata
	Reason FailureReason
}

func (s Status) isIntegrationInProgress() bool {
	return s.Kind == StatusIntegrating || s.Kind == StatusRunningStatusChecks
}

// Config is the per-branch configuration named in spec §6's configuration
// table.
type Config struct {
	TargetBranch                 string
	IntegrationLabel             string
	TopPriorityLabels            []string
	RequiresAllStatusChecks      bool
	StatusChecksTimeout          time.Duration
	IdleMergeServiceCleanupDelay time.Duration
	BotUser                      int64 // 0 means "unknown, don't filter by author"
}

// AdditionalStatusChecksGracePeriod is the fixed debounce window absorbing
// bursts of newly-appearing status checks (spec §4.1, §5). It is
// intentionally not configurable, matching the spec's literal transition
// table.
const AdditionalStatusChecksGracePeriod = 60 * time.Second

// SynchronizeWaitTimeout bounds how long the "behind" recovery path waits
// for the host to report the synchronize action after requesting
// target-into-source merge (spec §4.1). Spec §9 flags this hard-coded
// value as possibly too short for large repositories but does not change
// it.
const SynchronizeWaitTimeout = 60 * time.Second

// UnknownMergeStateMaxRetries and UnknownMergeStateRetryInterval bound the
// "unknown" mergeability retry loop (spec §4.1, §7).
const (
	UnknownMergeStateMaxRetries    = 4
	UnknownMergeStateRetryInterval = 30 * time.Second
)

// State is a MergeService's full internal state (spec §3).
type State struct {
	Config Config
	Queue  *queue.Queue
	Status Status
}

// StateSnapshot is the serializable projection of State described in
// spec §6 "State serialization".
type StateSnapshot struct {
	TargetBranch string              `json:"targetBranch"`
	Status       StatusSnapshot      `json:"status"`
	Queue        []pr.PullRequest    `json:"queue"`
}

// StatusSnapshot is the serializable tagged object for Status.
type StatusSnapshot struct {
	Status   StatusKind     `json:"status"`
	Metadata *pr.Metadata   `json:"metadata,omitempty"`
	Error    *FailureReason `json:"error,omitempty"`
}

// Snapshot renders State into its serializable form.
func (s State) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		TargetBranch: s.Config.TargetBranch,
		Status:       StatusSnapshot{Status: s.Status.Kind},
		Queue:        s.Queue.Snapshot(),
	}
	switch s.Status.Kind {
	case StatusIntegrating, StatusRunningStatusChecks:
		m := s.Status.Meta
		snap.Status.Metadata = &m
	case StatusIntegrationFailed:
		m := s.Status.Meta
		r := s.Status.Reason
		snap.Status.Metadata = &m
		snap.Status.Error = &r
	}
	return snap
}

// Transition is one (previous, current) state pair, published on every
// completed reduction (spec §4.1 "Observe state", §5 ordering guarantees).
// Transitions carry StateSnapshot rather than State because State holds the
// live *queue.Queue, mutated only by the reducer's owning goroutine;
// subscribers (Healthcheck, the dispatcher) live outside that goroutine.
type Transition struct {
	Previous StateSnapshot
	Current  StateSnapshot
}
