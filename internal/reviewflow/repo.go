package reviewflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/automerge"
	"github.com/simplesurance/reviewflow/internal/cfg"
	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/entitylock"
	"github.com/simplesurance/reviewflow/internal/githubclt"
	"github.com/simplesurance/reviewflow/internal/labels"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/mergequeue"
	"github.com/simplesurance/reviewflow/internal/notification"
	"github.com/simplesurance/reviewflow/internal/pullrequest"
	"github.com/simplesurance/reviewflow/internal/retryer"
)

// RepoContext holds the state of a monitored repository.
// The account state is shared with all repositories of the account.
type RepoContext struct {
	*AccountContext

	Owner string
	Name  string

	// Labels is created from the labels that exist in the repository.
	Labels *labels.Machine
	Queue  *mergequeue.Queue
	Engine *automerge.Engine

	clt             githubclt.API
	sink            notification.Sink
	retryer         *retryer.Retryer
	optionLabelKeys map[commentbody.OptionKey]string

	logger *zap.Logger
}

// repoDependencies are the collaborators a RepoContext is created with.
type repoDependencies struct {
	clt              githubclt.API
	sink             notification.Sink
	audit            auditlog.Store
	retryer          *retryer.Retryer
	rescheduleDelay  time.Duration
	replaceThreshold int
}

func newRepoContext(ctx context.Context, acc *AccountContext, owner, name string, deps *repoDependencies) (*RepoContext, error) {
	logFields := append([]zap.Field{
		logfields.RepositoryOwner(owner),
		logfields.Repository(name),
	}, acc.LogFields...)

	var ghLabels []*github.Label
	err := deps.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		ghLabels, err = deps.clt.ListRepositoryLabels(ctx, owner, name)
		return err
	}, append(logFields, logfields.Event("github_list_repository_labels")))
	if err != nil {
		return nil, fmt.Errorf("retrieving labels of %s/%s failed: %w", owner, name, err)
	}

	repoLabels := make([]labels.Label, 0, len(ghLabels))
	for _, l := range ghLabels {
		repoLabels = append(repoLabels, labels.Label{ID: l.GetID(), Name: l.GetName()})
	}

	labelOpts := []labels.Option{labels.WithProtectedLabels(acc.Config.ProtectedLabels...)}
	if deps.replaceThreshold > 0 {
		labelOpts = append(labelOpts, labels.WithReplaceThreshold(deps.replaceThreshold))
	}

	machine := labels.NewMachine(
		labels.Resolve(acc.Config.LabelDefinitions(), repoLabels),
		acc.Groups.Groups(),
		acc.Config.ReviewLabelKeys(),
		acc.Config.TeamDefinitions(),
		labelOpts...,
	)

	var queueOpts []mergequeue.Option
	if deps.rescheduleDelay > 0 {
		queueOpts = append(queueOpts, mergequeue.WithRescheduleDelay(deps.rescheduleDelay))
	}

	queue := mergequeue.New(
		mergequeue.RepositoryID{Owner: owner, Repository: name},
		acc.Lock,
		nil,
		queueOpts...,
	)

	engineOpts := []automerge.Option{
		automerge.WithDefaultOptions(acc.Config.DefaultOptions()),
		automerge.WithOptionLabels(cfg.LabelKeyFeatureBranch, cfg.LabelKeySkipCI),
		automerge.WithAutomation(acc.Automation, acc.Config.AutoMergeAutomationWithSkipCiEnabled()),
		automerge.WithNotificationSink(deps.sink),
	}
	if deps.audit != nil {
		engineOpts = append(engineOpts, automerge.WithAuditStore(deps.audit))
	}

	engine := automerge.New(acc.Login, deps.clt, queue, machine, acc.Config.AutomergeLabel, engineOpts...)

	return &RepoContext{
		AccountContext:  acc,
		Owner:           owner,
		Name:            name,
		Labels:          machine,
		Queue:           queue,
		Engine:          engine,
		clt:             deps.clt,
		sink:            deps.sink,
		retryer:         deps.retryer,
		optionLabelKeys: cfg.OptionLabelKeys(acc.Config.AutomergeLabel),
		logger:          zap.L().Named(loggerName).With(logFields...),
	}, nil
}

// ID returns the identifier of the repository.
func (r *RepoContext) ID() mergequeue.RepositoryID {
	return r.Queue.Repository()
}

func (r *RepoContext) String() string {
	return r.ID().String()
}

// WithPullRequestLock runs fn while holding the lock of the pull request.
func (r *RepoContext) WithPullRequestLock(ctx context.Context, prID int64, fn func(context.Context) error) error {
	return r.Lock.WithLock(ctx, entitylock.PullRequestKey(prID), fn)
}

func (r *RepoContext) snapshot(ctx context.Context, pr *github.PullRequest) (*pullrequest.Snapshot, error) {
	return r.Automation.Snapshot(ctx, r.Owner, r.Name, pr)
}

// fetchPullRequest retrieves the current state of a pull request.
func (r *RepoContext) fetchPullRequest(ctx context.Context, number int) (*pullrequest.Snapshot, error) {
	var pr *github.PullRequest

	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		pr, err = r.clt.PullRequest(ctx, r.Owner, r.Name, number)
		return err
	}, []zap.Field{logfields.PullRequest(number), logfields.Event("github_get_pull_request")})
	if err != nil {
		return nil, fmt.Errorf("retrieving pull request #%d failed: %w", number, err)
	}

	return r.snapshot(ctx, pr)
}

func (r *RepoContext) labelTarget(pr *pullrequest.Snapshot) *labels.Target {
	return &labels.Target{
		Owner:     r.Owner,
		Repo:      r.Name,
		Number:    pr.Number,
		LogFields: pr.LogFields,
	}
}

// notify sends a message to a user, failures are logged.
func (r *RepoContext) notify(ctx context.Context, category notification.MessageCategory, user *github.User, text string) {
	if r.sink == nil || user.GetLogin() == "" {
		return
	}

	if _, err := r.sink.PostMessage(ctx, category, user.GetID(), user.GetLogin(), text); err != nil {
		r.logger.Warn(
			"sending notification failed",
			logfields.Event("notification_failed"),
			zap.String("notification.category", string(category)),
			zap.Error(err),
		)
	}
}

func (r *RepoContext) mention(login string) string {
	if r.sink == nil {
		return "@" + login
	}

	return r.sink.Mention(login)
}

// stop cancels pending re-evaluations of the merge queue.
func (r *RepoContext) stop() {
	r.Queue.Stop()
}

// updateReviewLabels applies the review state transition req of group to
// the labels of pr and reports the resulting commit status.
// pr.Labels is updated to the resulting label set.
func (r *RepoContext) updateReviewLabels(ctx context.Context, pr *pullrequest.Snapshot, group string, req labels.DiffRequest) error {
	diff := r.Labels.ComputeDiff(pr.Labels, group, req)

	if !diff.IsEmpty() {
		err := r.retryer.Run(ctx, func(ctx context.Context) error {
			return r.Labels.Apply(ctx, r.clt, r.labelTarget(pr), diff)
		}, append([]zap.Field{logfields.Event("github_apply_labels"), logfields.ReviewGroup(group)}, pr.LogFields...))
		if err != nil {
			return fmt.Errorf("updating review labels failed: %w", err)
		}

		pr.Labels = diff.Result
	}

	return r.updateStatus(ctx, pr)
}

// updateStatus sets the review commit status of the head commit of pr.
func (r *RepoContext) updateStatus(ctx context.Context, pr *pullrequest.Snapshot) error {
	if pr.HeadSHA == "" {
		return nil
	}

	status := r.Labels.StatusFromLabels(pr.Labels, pr.RequestedReviewers, r.Config.RequiresReviewRequestEnabled())

	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		return r.clt.CreateStatus(ctx, r.Owner, r.Name, pr.HeadSHA, string(status.State), labels.StatusContext, status.Description)
	}, append([]zap.Field{logfields.Event("github_create_status"), logfields.Commit(pr.HeadSHA)}, pr.LogFields...))
	if err != nil {
		return fmt.Errorf("creating commit status failed: %w", err)
	}

	r.logger.Debug(
		"review status reported",
		append([]zap.Field{
			logfields.Event("review_status_updated"),
			zap.String("github.status.state", string(status.State)),
			zap.String("github.status.description", status.Description),
		}, pr.LogFields...)...,
	)

	return nil
}
