package reviewflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/githubclt"
	"github.com/simplesurance/reviewflow/internal/mergequeue"
	"github.com/simplesurance/reviewflow/internal/notification"
)

var (
	alice = newGithubUser("alice", 42)
	bob   = newGithubUser("bob", 43)
	carol = newGithubUser("carol", 44)
)

func newOptionsComment(opts commentbody.Options) *github.IssueComment {
	return &github.IssueComment{
		ID:   github.Int64(77),
		Body: github.String(commentbody.DefaultBody(opts, nil)),
	}
}

func mustAcquire(t *testing.T, q *mergequeue.Queue, prNumber int) *mergequeue.Entry {
	t.Helper()

	e, err := mergequeue.NewEntry(int64(1000+prNumber), prNumber, fmt.Sprintf("feature-%d", prNumber))
	require.NoError(t, err)
	require.True(t, q.TryAcquire(e))

	return e
}

func TestOpenedCreatesOptionsCommentAndReviewLabels(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1)

	env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).Return(nil, nil)
	env.clt.EXPECT().
		CreateIssueComment(gomock.Any(), repoOwner, repoName, 1, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ int, body string) (*github.IssueComment, error) {
			assert.True(t, commentbody.IsOptionsComment(body))

			opts := commentbody.ParseOptions(body, nil)
			assert.False(t, opts[commentbody.OptionAutoMerge])
			assert.True(t, opts[commentbody.OptionDeleteAfterMerge])

			return &github.IssueComment{ID: github.Int64(77), Body: &body}, nil
		})
	env.clt.EXPECT().AddLabels(gomock.Any(), repoOwner, repoName, 1, []string{lblNeedsReview.name}).Return(nil)
	env.expectStatus("failure")

	err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), newPullRequestEvent("opened", ghPR, alice))
	require.NoError(t, err)
}

func TestOpenedWithExistingOptionsCommentSyncsLabels(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1)

	env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).Return(
		[]*github.IssueComment{newOptionsComment(commentbody.Options{commentbody.OptionFeatureBranch: true})}, nil,
	)
	env.clt.EXPECT().AddLabels(gomock.Any(), repoOwner, repoName, 1, []string{lblFeatureBranch.name}).Return(nil)
	env.clt.EXPECT().AddLabels(gomock.Any(), repoOwner, repoName, 1, []string{lblNeedsReview.name}).Return(nil)
	env.expectStatus("failure")

	err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), newPullRequestEvent("opened", ghPR, alice))
	require.NoError(t, err)
}

func TestEventsFromBotsAreIgnored(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1)

	for _, ev := range []*github.PullRequestEvent{
		newPullRequestEvent("edited", ghPR, newGithubBot("renovate")),
		newPullRequestLabeledEvent("labeled", ghPR, lblAutomerge, newGithubBot("renovate")),
		newPullRequestLabeledEvent("unlabeled", ghPR, lblAutomerge, newGithubBot("renovate")),
	} {
		err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), ev)
		assert.ErrorIs(t, err, errEventIgnored)
	}
}

func TestUnhandledActionIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	err := env.repo.HandlePullRequestEvent(
		context.Background(), zap.L(),
		newPullRequestEvent("assigned", newBasicPullRequest(1), alice),
	)
	assert.ErrorIs(t, err, errEventIgnored)
}

func TestProtectedLabelAddedManuallyIsRemoved(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1, lblApproved)

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)
	env.clt.EXPECT().RemoveLabel(gomock.Any(), repoOwner, repoName, 1, lblApproved.name).Return(nil)

	err := env.repo.HandlePullRequestEvent(
		context.Background(), zap.L(),
		newPullRequestLabeledEvent("labeled", ghPR, lblApproved, bob),
	)
	require.NoError(t, err)
}

func TestProtectedLabelRemovedManuallyIsAddedAgain(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1)

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)
	env.clt.EXPECT().AddLabels(gomock.Any(), repoOwner, repoName, 1, []string{lblNeedsReview.name}).Return(nil)

	err := env.repo.HandlePullRequestEvent(
		context.Background(), zap.L(),
		newPullRequestLabeledEvent("unlabeled", ghPR, lblNeedsReview, bob),
	)
	require.NoError(t, err)
}

func TestOptionLabelUpdatesOptionsComment(t *testing.T) {
	testcases := []struct {
		name   string
		action string
		label  testLabel
		key    commentbody.OptionKey
		want   bool
	}{
		{name: "feature branch added", action: "labeled", label: lblFeatureBranch, key: commentbody.OptionFeatureBranch, want: true},
		{name: "skip ci removed", action: "unlabeled", label: lblSkipCI, key: commentbody.OptionAutoMergeWithSkipCi, want: false},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			var prLabels []testLabel
			if tc.want {
				prLabels = append(prLabels, tc.label)
			}
			ghPR := newBasicPullRequest(1, prLabels...)

			env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)
			env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).Return(
				[]*github.IssueComment{newOptionsComment(commentbody.Options{tc.key: !tc.want})}, nil,
			)
			env.clt.EXPECT().
				EditIssueComment(gomock.Any(), repoOwner, repoName, int64(77), gomock.Any()).
				DoAndReturn(func(_ context.Context, _, _ string, _ int64, body string) error {
					assert.Equal(t, tc.want, commentbody.ParseOptions(body, nil)[tc.key])
					return nil
				})
			env.expectStatus("failure")

			err := env.repo.HandlePullRequestEvent(
				context.Background(), zap.L(),
				newPullRequestLabeledEvent(tc.action, ghPR, tc.label, alice),
			)
			require.NoError(t, err)
		})
	}
}

func TestAutomergeLabelAddedMergesPullRequest(t *testing.T) {
	env := newTestEnv(t)

	ghPR := newBasicPullRequest(1, lblAutomerge, lblApproved)
	ghPR.Mergeable = github.Bool(true)
	ghPR.MergeableState = github.String("clean")

	comment := newOptionsComment(commentbody.Options{commentbody.OptionAutoMerge: false})

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)
	env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).
		Return([]*github.IssueComment{comment}, nil).
		Times(2)
	env.clt.EXPECT().
		EditIssueComment(gomock.Any(), repoOwner, repoName, int64(77), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ int64, body string) error {
			assert.True(t, commentbody.ParseOptions(body, nil)[commentbody.OptionAutoMerge])
			return nil
		})
	env.expectStatus("success")
	env.clt.EXPECT().
		MergePullRequest(gomock.Any(), repoOwner, repoName, 1, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ int, opts *githubclt.MergeOptions) error {
			assert.Equal(t, "squash", opts.Method)
			assert.Equal(t, "fix: crash on startup (#1)", opts.CommitTitle)
			assert.Equal(t, "sha-1", opts.SHA)
			return nil
		})
	env.sink.EXPECT().
		PostMessage(gomock.Any(), notification.CategoryPRLifecycle, int64(42), "alice", gomock.Any()).
		Return(nil, nil)

	err := env.repo.HandlePullRequestEvent(
		context.Background(), zap.L(),
		newPullRequestLabeledEvent("labeled", ghPR, lblAutomerge, alice),
	)
	require.NoError(t, err)

	assert.Nil(t, env.repo.Queue.Locked())

	recs, err := env.audit.List(context.Background(), "testman/repo", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, auditlog.ActionMerge, recs[0].Action)
}

func TestUpdateBranchLabelMergesBaseIntoHead(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1, lblUpdateBranch)

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)
	env.clt.EXPECT().MergeBranch(gomock.Any(), repoOwner, repoName, "feature-1", baseRef).Return(true, nil)
	env.clt.EXPECT().
		CreateIssueComment(gomock.Any(), repoOwner, repoName, 1, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ int, body string) (*github.IssueComment, error) {
			assert.Contains(t, body, "Branch updated")
			return &github.IssueComment{}, nil
		})
	env.clt.EXPECT().RemoveLabel(gomock.Any(), repoOwner, repoName, 1, lblUpdateBranch.name).Return(nil)

	err := env.repo.HandlePullRequestEvent(
		context.Background(), zap.L(),
		newPullRequestLabeledEvent("labeled", ghPR, lblUpdateBranch, alice),
	)
	require.NoError(t, err)
}

func TestUpdateBranchFailureIsReportedInComment(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1, lblUpdateBranch)

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)
	env.clt.EXPECT().MergeBranch(gomock.Any(), repoOwner, repoName, "feature-1", baseRef).Return(false, githubclt.ErrMergeConflict)
	env.clt.EXPECT().
		CreateIssueComment(gomock.Any(), repoOwner, repoName, 1, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ int, body string) (*github.IssueComment, error) {
			assert.Contains(t, body, "Could not update branch")
			return &github.IssueComment{}, nil
		})
	env.clt.EXPECT().RemoveLabel(gomock.Any(), repoOwner, repoName, 1, lblUpdateBranch.name).Return(nil)

	err := env.repo.HandlePullRequestEvent(
		context.Background(), zap.L(),
		newPullRequestLabeledEvent("labeled", ghPR, lblUpdateBranch, alice),
	)
	require.NoError(t, err)
}

func TestSynchronizeSyncsOptionLabels(t *testing.T) {
	env := newTestEnv(t)
	ghPR := newBasicPullRequest(1)

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)
	env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).Return(
		[]*github.IssueComment{newOptionsComment(commentbody.Options{commentbody.OptionAutoMergeWithSkipCi: true})}, nil,
	)
	env.clt.EXPECT().AddLabels(gomock.Any(), repoOwner, repoName, 1, []string{lblSkipCI.name}).Return(nil)
	env.expectStatus("failure")

	err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), newPullRequestEvent("synchronize", ghPR, alice))
	require.NoError(t, err)
}

func TestClosedMergedPullRequestDeletesBranch(t *testing.T) {
	env := newTestEnv(t)

	ghPR := newBasicPullRequest(1)
	ghPR.State = github.String("closed")
	ghPR.Merged = github.Bool(true)

	env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).Return(nil, nil)
	env.clt.EXPECT().DeleteBranch(gomock.Any(), repoOwner, repoName, "feature-1").Return(nil)

	err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), newPullRequestEvent("closed", ghPR, alice))
	require.NoError(t, err)
}

func TestClosedMergedPullRequestKeepsBranchWhenOptionIsDisabled(t *testing.T) {
	env := newTestEnv(t)

	ghPR := newBasicPullRequest(1)
	ghPR.State = github.String("closed")
	ghPR.Merged = github.Bool(true)

	env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).Return(
		[]*github.IssueComment{newOptionsComment(commentbody.Options{commentbody.OptionDeleteAfterMerge: false})}, nil,
	)

	err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), newPullRequestEvent("closed", ghPR, alice))
	require.NoError(t, err)
}

func TestClosedMergedForkKeepsBranch(t *testing.T) {
	env := newTestEnv(t)

	ghPR := newBasicPullRequest(1)
	ghPR.State = github.String("closed")
	ghPR.Merged = github.Bool(true)
	ghPR.Head.Repo.ID = github.Int64(501)

	err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), newPullRequestEvent("closed", ghPR, alice))
	require.NoError(t, err)
}

func TestClosedPullRequestIsRemovedFromMergeQueue(t *testing.T) {
	env := newTestEnv(t)

	mustAcquire(t, env.repo.Queue, 1)

	ghPR := newBasicPullRequest(1, lblAutomerge, lblNeedsReview)
	ghPR.State = github.String("closed")

	env.clt.EXPECT().RemoveLabel(gomock.Any(), repoOwner, repoName, 1, lblNeedsReview.name).Return(nil)
	env.expectStatus("failure")

	err := env.repo.HandlePullRequestEvent(context.Background(), zap.L(), newPullRequestEvent("closed", ghPR, alice))
	require.NoError(t, err)

	assert.Nil(t, env.repo.Queue.Locked())

	recs, err := env.audit.List(context.Background(), "testman/repo", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, auditlog.ActionRemove, recs[0].Action)
}
