package reviewgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatesFromReviewsCountsLatestReviewPerUser(t *testing.T) {
	m := newTestModel(t)

	states := StatesFromReviews(m, []Review{
		{Login: "dev-login", State: ReviewStateChangesRequested},
		{Login: "dev-login", State: ReviewStateCommented},
		{Login: "dev-login2", State: ReviewStateApproved},
		{Login: "designer", State: ReviewStateApproved},
		{Login: "designer", State: ReviewStateDismissed},
		{Login: "outsider", State: ReviewStateApproved},
	})

	assert.Equal(t, &ReviewState{Approved: 1, ChangesRequested: 1}, states["dev"])
	assert.Equal(t, &ReviewState{Dismissed: 1}, states["design"])
	assert.True(t, AnyApproved(states))
}

func TestStatesFromReviewsLaterApprovalReplacesChangeRequest(t *testing.T) {
	m := newTestModel(t)

	states := StatesFromReviews(m, []Review{
		{Login: "dev-login", State: ReviewStateChangesRequested},
		{Login: "dev-login", State: "approved"},
	})

	assert.Equal(t, &ReviewState{Approved: 1}, states["dev"])
	assert.Equal(t, &ReviewState{}, states["design"])
}

func TestAnyApprovedEmpty(t *testing.T) {
	assert.False(t, AnyApproved(StatesFromReviews(newTestModel(t), nil)))
}
