package reviewgroup

import "strings"

// Review states as reported by the GitHub API.
const (
	ReviewStateApproved         = "APPROVED"
	ReviewStateChangesRequested = "CHANGES_REQUESTED"
	ReviewStateDismissed        = "DISMISSED"
	ReviewStateCommented        = "COMMENTED"
	ReviewStatePending          = "PENDING"
)

// Review is a submitted pull request review.
type Review struct {
	Login string
	State string
}

// ReviewState counts the effective reviews of one group.
type ReviewState struct {
	Approved         int
	ChangesRequested int
	Dismissed        int
}

// StatesFromReviews derives per group review counters from the review
// history of a pull request. reviews must be in chronological order.
// Only the latest review of a user counts, comment-only and pending reviews
// do not replace a previous review. Reviews of users that are not member of
// a group are ignored.
func StatesFromReviews(m *Model, reviews []Review) map[string]*ReviewState {
	latest := map[string]string{}
	var order []string

	for _, r := range reviews {
		state := strings.ToUpper(r.State)
		if r.Login == "" || state == ReviewStateCommented || state == ReviewStatePending {
			continue
		}

		if _, exists := latest[r.Login]; !exists {
			order = append(order, r.Login)
		}

		latest[r.Login] = state
	}

	result := make(map[string]*ReviewState, len(m.order))
	for _, name := range m.order {
		result[name] = &ReviewState{}
	}

	for _, login := range order {
		group, ok := m.GroupOf(login)
		if !ok {
			continue
		}

		st := result[group]

		switch latest[login] {
		case ReviewStateApproved:
			st.Approved++
		case ReviewStateChangesRequested:
			st.ChangesRequested++
		case ReviewStateDismissed:
			st.Dismissed++
		}
	}

	return result
}

// AnyApproved returns true if one group has at least one approval.
func AnyApproved(states map[string]*ReviewState) bool {
	for _, st := range states {
		if st.Approved > 0 {
			return true
		}
	}

	return false
}
