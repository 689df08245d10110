package reviewflow

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusEventReschedulesPullRequestInMergeSlot(t *testing.T) {
	env := newTestEnv(t)
	mustAcquire(t, env.repo.Queue, 1)

	err := env.repo.HandleStatusEvent(context.Background(), zap.L(), newStatusEvent("success", "feature-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, env.repo.Queue.PendingReschedules())
}

func TestIgnoredStatusEvents(t *testing.T) {
	env := newTestEnv(t)
	mustAcquire(t, env.repo.Queue, 1)

	testcases := []struct {
		name string
		ev   *github.StatusEvent
	}{
		{name: "pending", ev: newStatusEvent("pending", "feature-1")},
		{name: "no branches", ev: newStatusEvent("failure")},
		{name: "other branch", ev: newStatusEvent("failure", "feature-2", "main")},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			err := env.repo.HandleStatusEvent(context.Background(), zap.L(), tc.ev)
			assert.ErrorIs(t, err, errEventIgnored)
		})
	}

	assert.Zero(t, env.repo.Queue.PendingReschedules())
}

func TestCompletedCheckSuiteReevaluatesPullRequestInMergeSlot(t *testing.T) {
	env := newTestEnv(t)
	mustAcquire(t, env.repo.Queue, 1)

	ghPR := newBasicPullRequest(1, lblAutomerge)
	ghPR.State = github.String("closed")

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)

	err := env.repo.HandleCheckSuiteEvent(context.Background(), zap.L(), newCheckSuiteEvent("completed", "feature-1"))
	require.NoError(t, err)

	assert.Nil(t, env.repo.Queue.Locked())
}

func TestCompletedCheckRunReevaluatesPullRequestInMergeSlot(t *testing.T) {
	env := newTestEnv(t)
	mustAcquire(t, env.repo.Queue, 1)

	ghPR := newBasicPullRequest(1)

	env.clt.EXPECT().PullRequest(gomock.Any(), repoOwner, repoName, 1).Return(ghPR, nil)

	err := env.repo.HandleCheckRunEvent(context.Background(), zap.L(), newCheckRunEvent("completed", "feature-1"))
	require.NoError(t, err)

	assert.Nil(t, env.repo.Queue.Locked())
}

func TestIgnoredCheckEvents(t *testing.T) {
	env := newTestEnv(t)
	mustAcquire(t, env.repo.Queue, 1)

	err := env.repo.HandleCheckSuiteEvent(context.Background(), zap.L(), newCheckSuiteEvent("requested", "feature-1"))
	assert.ErrorIs(t, err, errEventIgnored)

	err = env.repo.HandleCheckSuiteEvent(context.Background(), zap.L(), newCheckSuiteEvent("completed", "feature-2"))
	assert.ErrorIs(t, err, errEventIgnored)

	err = env.repo.HandleCheckRunEvent(context.Background(), zap.L(), newCheckRunEvent("created", "feature-1"))
	assert.ErrorIs(t, err, errEventIgnored)

	err = env.repo.HandleCheckRunEvent(context.Background(), zap.L(), newCheckRunEvent("completed", ""))
	assert.ErrorIs(t, err, errEventIgnored)

	assert.NotNil(t, env.repo.Queue.Locked())
}
