package reviewflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/githubclt"
	"github.com/simplesurance/reviewflow/internal/notification"
)

type prIteratorStub struct {
	prs []*github.PullRequest
	err error
}

func (it *prIteratorStub) Next() (*github.PullRequest, error) {
	if it.err != nil {
		return nil, it.err
	}

	if len(it.prs) == 0 {
		return nil, nil
	}

	pr := it.prs[0]
	it.prs = it.prs[1:]

	return pr, nil
}

func TestInitSyncMergesLabeledPullRequests(t *testing.T) {
	env := newTestEnv(t)

	labeledPR := newBasicPullRequest(1, lblAutomerge, lblApproved)
	labeledPR.Mergeable = github.Bool(true)
	labeledPR.MergeableState = github.String("clean")

	unlabeledPR := newBasicPullRequest(2, lblApproved)

	env.clt.EXPECT().
		ListPullRequests(gomock.Any(), repoOwner, repoName, "open", "created", "asc").
		Return(&prIteratorStub{prs: []*github.PullRequest{labeledPR, unlabeledPR}})
	env.clt.EXPECT().ListIssueComments(gomock.Any(), repoOwner, repoName, 1).Return(nil, nil)
	env.clt.EXPECT().
		MergePullRequest(gomock.Any(), repoOwner, repoName, 1, gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ int, opts *githubclt.MergeOptions) error {
			assert.Equal(t, "sha-1", opts.SHA)
			return nil
		})
	env.sink.EXPECT().
		PostMessage(gomock.Any(), notification.CategoryPRLifecycle, int64(42), "alice", gomock.Any()).
		Return(nil, nil)

	require.NoError(t, env.registry.InitSync(context.Background()))

	assert.Nil(t, env.repo.Queue.Locked())
	assert.Empty(t, env.repo.Queue.Overflow())

	recs, err := env.audit.List(context.Background(), "testman/repo", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, auditlog.ActionMerge, recs[0].Action)
	assert.Equal(t, 1, recs[0].PRNumber)
}

func TestInitSyncQueuesPullRequestsInCreationOrder(t *testing.T) {
	env := newTestEnv(t)

	first := newBasicPullRequest(1, lblAutomerge, lblApproved)
	first.Mergeable = github.Bool(true)
	first.MergeableState = github.String("unknown")

	second := newBasicPullRequest(2, lblAutomerge, lblApproved)
	second.Mergeable = github.Bool(true)
	second.MergeableState = github.String("clean")

	env.clt.EXPECT().
		ListPullRequests(gomock.Any(), repoOwner, repoName, "open", "created", "asc").
		Return(&prIteratorStub{prs: []*github.PullRequest{first, second}})

	require.NoError(t, env.registry.InitSync(context.Background()))

	locked := env.repo.Queue.Locked()
	require.NotNil(t, locked)
	assert.Equal(t, 1, locked.PRNumber)

	assert.Equal(t, 1, env.repo.Queue.PendingReschedules())

	overflow := env.repo.Queue.Overflow()
	require.Len(t, overflow, 1)
	assert.Equal(t, 2, overflow[0].PRNumber)
}

func TestInitSyncFailsWhenListingPullRequestsFails(t *testing.T) {
	env := newTestEnv(t)

	env.clt.EXPECT().
		ListPullRequests(gomock.Any(), repoOwner, repoName, "open", "created", "asc").
		Return(&prIteratorStub{err: errors.New("connection refused")})

	require.Error(t, env.registry.InitSync(context.Background()))
}

// blockingPRIterator returns no pull requests after release was closed.
type blockingPRIterator struct {
	release <-chan struct{}
}

func (it *blockingPRIterator) Next() (*github.PullRequest, error) {
	<-it.release
	return nil, nil
}

func TestSyncsOfTheSameAccountAreSerialized(t *testing.T) {
	env := newTestEnv(t)

	release := make(chan struct{})
	listCalls := atomic.NewInt32(0)

	env.clt.EXPECT().
		ListPullRequests(gomock.Any(), repoOwner, repoName, "open", "created", "asc").
		DoAndReturn(func(context.Context, string, string, string, string, string) githubclt.PRIterator {
			if listCalls.Inc() == 1 {
				return &blockingPRIterator{release: release}
			}

			return &prIteratorStub{}
		}).
		Times(2)

	errs := make(chan error, 2)

	go func() { errs <- env.registry.SyncAccount(context.Background(), repoOwner) }()
	require.Eventually(t,
		func() bool { return listCalls.Load() == 1 },
		condWaitTimeout, condCheckInterval,
	)

	go func() { errs <- env.registry.SyncAccount(context.Background(), repoOwner) }()
	require.Eventually(t,
		func() bool { return env.registry.Locker().Waiting(entitylock.AccountKey(repoOwner)) == 2 },
		condWaitTimeout, condCheckInterval,
	)
	assert.Equal(t, int32(1), listCalls.Load(), "second sync must wait for the first")

	close(release)

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(condWaitTimeout):
			t.Fatal("sync did not finish")
		}
	}

	assert.Equal(t, int32(2), listCalls.Load())
}

func TestExistingRepoIsReturnedWhileAccountIsLocked(t *testing.T) {
	env := newTestEnv(t)

	guard, err := env.registry.Locker().Lock(context.Background(), entitylock.AccountKey(repoOwner))
	require.NoError(t, err)
	defer guard.Unlock()

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Second)
	defer cancelFn()

	repo, err := env.registry.Repo(ctx, repoOwner, repoName)
	require.NoError(t, err)
	assert.Same(t, env.repo, repo)
}
