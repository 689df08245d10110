package automerge

// State is the automerge state of a pull request after an evaluation.
type State int

const (
	// Ineligible pull requests are not considered for merging, they
	// are closed or do not have the automerge label.
	Ineligible State = iota
	// Blocked pull requests wait for an external event or a reschedule.
	Blocked
	// Queued pull requests wait in the overflow queue for the merge
	// slot.
	Queued
	// Active pull requests hold the merge slot.
	Active
	Merged
	// Removed pull requests were evicted from the merge queue.
	Removed
)

func (s State) String() string {
	switch s {
	case Ineligible:
		return "ineligible"
	case Blocked:
		return "blocked"
	case Queued:
		return "queued"
	case Active:
		return "active"
	case Merged:
		return "merged"
	case Removed:
		return "removed"
	default:
		return "invalid"
	}
}

// Result is the outcome of an evaluation.
type Result struct {
	State  State
	Reason string
}

func (r Result) String() string {
	if r.Reason == "" {
		return r.State.String()
	}

	return r.State.String() + ": " + r.Reason
}

// Reasons reported in results, audit records and when a pull request is
// removed from the merge queue.
const (
	ReasonNotOpen             = "pr is not opened"
	ReasonLabelRemoved        = "label removed"
	ReasonPendingReview       = "pending review"
	ReasonLocked              = "locked pr"
	ReasonAlreadyMerged       = "already merged"
	ReasonUnknownState        = "unknown mergeable_state"
	ReasonRebaseAutomation    = "rebase-renovate"
	ReasonFailedChecks        = "failed status or checks"
	ReasonBlocked             = "blocked mergeable_state"
	ReasonBehind              = "behind mergeable_state"
	ReasonMergeConflict       = "merge conflict"
	ReasonNotMergeable        = "not mergeable"
	ReasonMerged              = "merged"
	ReasonMergeFailed         = "merge failed"
	ReasonFetchFailed         = "fetching pull request failed"
	ReasonCIStatusFailed      = "fetching ci status failed"
	ReasonOptionsFailed       = "reading options comment failed"
	ReasonUpdateBranchFailed  = "updating branch failed"
	ReasonRebaseRequestFailed = "requesting rebase failed"
)
