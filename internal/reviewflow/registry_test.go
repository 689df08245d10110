package reviewflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/cfg"
	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/githubclt/mocks"
	notifymocks "github.com/simplesurance/reviewflow/internal/notification/mocks"
	"github.com/simplesurance/reviewflow/internal/retryer"
)

const (
	repoOwner = "testman"
	repoName  = "repo"
	baseRef   = "main"
)

const (
	condCheckInterval = 10 * time.Millisecond
	condWaitTimeout   = 5 * time.Second
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testLabel struct {
	id   int64
	name string
}

var (
	lblAutomerge        = testLabel{1, ":soon: automerge"}
	lblNeedsReview      = testLabel{2, "code/needs-review"}
	lblRequested        = testLabel{3, "code/review-requested"}
	lblChangesRequested = testLabel{4, "code/changes-requested"}
	lblApproved         = testLabel{5, "code/approved"}
	lblFeatureBranch    = testLabel{6, "feature-branch"}
	lblSkipCI           = testLabel{7, "automerge/skip-ci"}
	lblUpdateBranch     = testLabel{8, ":arrows_counterclockwise: update branch"}
	lblDesignNeeded     = testLabel{9, "design/needs-review"}
	lblBreakingChanges  = testLabel{10, ":warning: Breaking Changes"}
)

var testRepoLabels = []testLabel{
	lblAutomerge, lblNeedsReview, lblRequested, lblChangesRequested,
	lblApproved, lblFeatureBranch, lblSkipCI, lblUpdateBranch, lblDesignNeeded,
	lblBreakingChanges,
}

const testConfig = `
http_server_listen_addr = ":8085"
github_api_token = "secret"
reschedule_delay = "1h"

[[account]]
login = "testman"
repositories = ["repo"]
requires_review_request = true
group_order = ["dev", "design"]

[account.groups]
dev = ["alice", "bob"]
design = ["carol"]

[account.wait_for_groups]
design = ["dev"]

[account.labels."dev/needs-review"]
name = "code/needs-review"

[account.labels."dev/requested"]
name = "code/review-requested"

[account.labels."dev/changes-requested"]
name = "code/changes-requested"

[account.labels."dev/approved"]
name = "code/approved"

[account.labels."design/needs-review"]
name = "design/needs-review"

[account.group_labels.dev]
needs_review = "dev/needs-review"
review_requested = "dev/requested"
changes_requested = "dev/changes-requested"
approved = "dev/approved"

[account.group_labels.design]
needs_review = "design/needs-review"
`

type testEnv struct {
	clt      *mocks.MockAPI
	sink     *notifymocks.MockSink
	audit    *auditlog.MemoryStore
	registry *Registry
	repo     *RepoContext
}

func newGithubRepoLabels() []*github.Label {
	result := make([]*github.Label, 0, len(testRepoLabels))
	for _, l := range testRepoLabels {
		result = append(result, newGithubLabel(l))
	}

	return result
}

func mustLoadTestConfig(t *testing.T, config string) *cfg.Config {
	t.Helper()

	c, err := cfg.Load(strings.NewReader(config))
	require.NoError(t, err)

	return c
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	return newTestEnvWithConfig(t, testConfig)
}

func newTestEnvWithConfig(t *testing.T, config string) *testEnv {
	t.Helper()

	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	clt := mocks.NewMockAPI(mockctrl)
	sink := notifymocks.NewMockSink(mockctrl)
	audit := auditlog.NewMemoryStore(0)

	sink.EXPECT().Mention(gomock.Any()).DoAndReturn(func(login string) string {
		return "@" + login
	}).AnyTimes()

	clt.EXPECT().ListRepositoryLabels(gomock.Any(), repoOwner, repoName).Return(newGithubRepoLabels(), nil)

	reg, err := NewRegistry(
		mustLoadTestConfig(t, config),
		clt,
		sink,
		audit,
		WithRetryer(retryer.New(retryer.WithBackoffIntervals(time.Millisecond, 10*time.Millisecond))),
	)
	require.NoError(t, err)
	t.Cleanup(reg.Stop)

	repo, err := reg.Repo(context.Background(), repoOwner, repoName)
	require.NoError(t, err)

	return &testEnv{
		clt:      clt,
		sink:     sink,
		audit:    audit,
		registry: reg,
		repo:     repo,
	}
}

func (env *testEnv) expectStatus(state string) {
	env.clt.EXPECT().
		CreateStatus(gomock.Any(), repoOwner, repoName, gomock.Any(), state, "reviewflow", gomock.Any()).
		Return(nil)
}

func TestRepoIsCreatedOnce(t *testing.T) {
	env := newTestEnv(t)

	repo, err := env.registry.Repo(context.Background(), "TestMan", "REPO")
	require.NoError(t, err)
	assert.Same(t, env.repo, repo)

	repos := env.registry.Repos()
	require.Len(t, repos, 1)
	assert.Equal(t, "testman/repo", repos[0].String())
}

func TestUnmonitoredRepositories(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Repo(context.Background(), repoOwner, "other")
	assert.ErrorIs(t, err, ErrNotMonitored)

	_, err = env.registry.Repo(context.Background(), "someone", repoName)
	assert.ErrorIs(t, err, ErrNotMonitored)

	_, err = env.registry.Account("someone")
	assert.ErrorIs(t, err, ErrNotMonitored)
}

func TestRepoContextResolvesLabels(t *testing.T) {
	env := newTestEnv(t)

	l, exists := env.repo.Labels.Label(cfg.LabelKeyAutomerge)
	require.True(t, exists)
	assert.Equal(t, lblAutomerge.id, l.ID)

	assert.True(t, env.repo.Labels.IsProtected(lblApproved.id))
	assert.False(t, env.repo.Labels.IsProtected(lblAutomerge.id))

	group, ok := env.repo.PrimaryGroup()
	require.True(t, ok)
	assert.Equal(t, "dev", group)
}

func TestRepoCreationFailsWhenLabelsCanNotBeRetrieved(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	clt := mocks.NewMockAPI(gomock.NewController(t))
	clt.EXPECT().ListRepositoryLabels(gomock.Any(), repoOwner, repoName).Return(nil, assert.AnError)

	reg, err := NewRegistry(mustLoadTestConfig(t, testConfig), clt, nil, nil)
	require.NoError(t, err)
	t.Cleanup(reg.Stop)

	_, err = reg.Repo(context.Background(), repoOwner, repoName)
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, reg.Repos())
}

func TestNewRegistryRejectsInvalidAutomationQuery(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	config := mustLoadTestConfig(t, testConfig)
	config.Accounts[0].AutomationFilterQuery = ".user.login =="

	_, err := NewRegistry(config, mocks.NewMockAPI(gomock.NewController(t)), nil, nil)
	assert.Error(t, err)
}

func TestSlowRepoCreationDoesNotBlockOtherRepositories(t *testing.T) {
	env := newTestEnv(t)

	config := strings.Replace(testConfig, `repositories = ["repo"]`, `repositories = ["repo", "other"]`, 1)
	reg, err := NewRegistry(mustLoadTestConfig(t, config), env.clt, env.sink, env.audit)
	require.NoError(t, err)
	t.Cleanup(reg.Stop)

	release := make(chan struct{})
	env.clt.EXPECT().ListRepositoryLabels(gomock.Any(), repoOwner, "other").
		DoAndReturn(func(context.Context, string, string) ([]*github.Label, error) {
			<-release
			return newGithubRepoLabels(), nil
		})
	env.clt.EXPECT().ListRepositoryLabels(gomock.Any(), repoOwner, repoName).Return(newGithubRepoLabels(), nil)

	_, err = reg.Repo(context.Background(), repoOwner, repoName)
	require.NoError(t, err)

	created := make(chan error, 1)
	go func() {
		_, err := reg.Repo(context.Background(), repoOwner, "other")
		created <- err
	}()

	require.Eventually(t,
		func() bool { return reg.Locker().Waiting(entitylock.AccountKey(repoOwner)) == 1 },
		condWaitTimeout, condCheckInterval,
	)

	repo, err := reg.Repo(context.Background(), repoOwner, repoName)
	require.NoError(t, err)
	assert.Equal(t, "testman/repo", repo.String())
	assert.Len(t, reg.Repos(), 1)

	close(release)
	require.NoError(t, <-created)
	assert.Len(t, reg.Repos(), 2)
}
