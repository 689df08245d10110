package labels

import (
	"fmt"
	"strings"
)

// StatusContext is the context name of the commit status reviewflow reports.
const StatusContext = "reviewflow"

type StatusState string

const (
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
)

// Status is a commit status derived from the review labels of a pull
// request.
type Status struct {
	State       StatusState
	Description string
}

// StatusFromLabels derives the review commit status of a pull request.
// The rules are evaluated in order, the first matching one wins:
// pending requested reviewers, a change request, groups needing a review,
// a missing approval when requiresReviewRequest is set.
func (m *Machine) StatusFromLabels(current []Label, requestedReviewers []string, requiresReviewRequest bool) *Status {
	s := NewSet(current)

	if len(requestedReviewers) > 0 {
		return &Status{
			State:       StatusFailure,
			Description: fmt.Sprintf("Awaiting review from: %s", strings.Join(requestedReviewers, ", ")),
		}
	}

	if len(m.GroupsWith(s, ChangesRequested)) > 0 {
		return &Status{
			State:       StatusFailure,
			Description: "Changes requested ! Push commits or discuss changes then re-request a review.",
		}
	}

	if groups := m.GroupsWith(s, NeedsReview); len(groups) > 0 {
		return &Status{
			State:       StatusFailure,
			Description: fmt.Sprintf("Awaiting review from: %s. Perhaps request someone ?", strings.Join(groups, ", ")),
		}
	}

	if requiresReviewRequest && len(m.GroupsWith(s, Approved)) == 0 {
		return &Status{
			State:       StatusFailure,
			Description: "Awaiting review... Perhaps request someone ?",
		}
	}

	return &Status{
		State:       StatusSuccess,
		Description: "✓ PR ready to merge !",
	}
}
