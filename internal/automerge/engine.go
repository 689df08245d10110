// Package automerge decides if a pull request of the merge queue can be
// merged and carries out the merge or the step that brings it closer to
// being mergeable.
package automerge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/githubclt"
	"github.com/simplesurance/reviewflow/internal/labels"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/mergequeue"
	"github.com/simplesurance/reviewflow/internal/notification"
	"github.com/simplesurance/reviewflow/internal/pullrequest"
)

const loggerName = "automerge"

// sideEffectTimeout limits the duration of best-effort operations,
// storing audit records and sending notifications.
const sideEffectTimeout = 30 * time.Second

const (
	rebaseCheckUnchecked = "[ ] <!-- rebase-check -->"
	rebaseCheckChecked   = "[x] <!-- rebase-check -->"
	rebaseCheckMarker    = "<!-- rebase-check -->"
	rebaseTitlePrefix    = "rebase!"
)

//go:generate mockgen -source=engine.go -destination=mocks/githubclient.go -package=mocks

// GithubClient is the subset of GitHub operations the engine uses.
type GithubClient interface {
	PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	CIStatus(ctx context.Context, owner, repo string, prNumber int) (*githubclt.CIStatus, error)
	UpdatePullRequest(ctx context.Context, owner, repo string, number int, title, body *string) error
	MergePullRequest(ctx context.Context, owner, repo string, number int, opts *githubclt.MergeOptions) error
	MergeBranch(ctx context.Context, owner, repo, base, head string) (bool, error)
	ListIssueComments(ctx context.Context, owner, repo string, issueOrPRNr int) ([]*github.IssueComment, error)
}

// Engine evaluates the pull requests of a single repository.
// Evaluate and Reevaluate must be called while the pull request lock of
// the evaluated pull request is held.
type Engine struct {
	account string
	repo    mergequeue.RepositoryID

	clt    GithubClient
	queue  *mergequeue.Queue
	labels *labels.Machine

	automergeLabelKey     string
	featureBranchLabelKey string
	skipCILabelKey        string

	defaultOptions       commentbody.Options
	automationWithSkipCI bool
	automation           *pullrequest.AutomationMatcher

	sink  notification.Sink
	audit auditlog.Store

	logger *zap.Logger
}

type Option func(*Engine)

// WithDefaultOptions sets the options that are used for pull requests
// without options comment.
func WithDefaultOptions(opts commentbody.Options) Option {
	return func(e *Engine) {
		e.defaultOptions = opts.Clone()
	}
}

// WithOptionLabels sets the keys of the labels that enable the
// featureBranch and the autoMergeWithSkipCi option.
func WithOptionLabels(featureBranchKey, skipCIKey string) Option {
	return func(e *Engine) {
		e.featureBranchLabelKey = featureBranchKey
		e.skipCILabelKey = skipCIKey
	}
}

// WithAutomation sets the matcher that detects pull requests of dependency
// update bots. If skipCI is true, their merge commits skip CI.
func WithAutomation(m *pullrequest.AutomationMatcher, skipCI bool) Option {
	return func(e *Engine) {
		e.automation = m
		e.automationWithSkipCI = skipCI
	}
}

func WithNotificationSink(sink notification.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

func WithAuditStore(store auditlog.Store) Option {
	return func(e *Engine) {
		e.audit = store
	}
}

// New creates an Engine and registers Reevaluate as evaluate function of
// queue.
func New(
	account string,
	clt GithubClient,
	queue *mergequeue.Queue,
	labelMachine *labels.Machine,
	automergeLabelKey string,
	opts ...Option,
) *Engine {
	e := Engine{
		account:           account,
		repo:              queue.Repository(),
		clt:               clt,
		queue:             queue,
		labels:            labelMachine,
		automergeLabelKey: automergeLabelKey,
		defaultOptions:    commentbody.Options{}.Clone(),
		sink:              notification.NewLogSink(),
		logger:            zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&e)
	}

	e.logger = e.logger.With(logfields.Account(account))

	queue.SetEvaluateFunc(e.Reevaluate)

	return &e
}

// QueueState returns Active if the pull request holds the merge slot,
// Queued if it waits in the overflow queue and otherwise Ineligible.
func (e *Engine) QueueState(prNumber int) State {
	inSlot, inOverflow := e.queue.Contains(prNumber)

	switch {
	case inSlot:
		return Active
	case inOverflow:
		return Queued
	default:
		return Ineligible
	}
}

func (e *Engine) String() string {
	return e.repo.String()
}

// Reevaluate fetches the current state of the pull request of entry and
// evaluates it. It is the evaluate function of the merge queue.
// Pull requests that became ineligible since the entry was queued are
// removed from the queue.
func (e *Engine) Reevaluate(ctx context.Context, entry *mergequeue.Entry) {
	logger := e.logger.With(entry.LogFields...)

	ghPR, err := e.clt.PullRequest(ctx, e.repo.Owner, e.repo.Repository, entry.PRNumber)
	if err != nil {
		if githubclt.IsNotFound(err) {
			e.queue.Remove(entry.PRNumber, "pull request does not exist")
			logger.Info(
				"removed pull request from merge queue, it does not exist anymore",
				logfields.Event("automerge_pull_request_not_found"),
			)
			return
		}

		logger.Warn(
			"re-evaluation failed, fetching pull request failed, rescheduling",
			logfields.Event("automerge_reevaluation_failed"),
			zap.Error(err),
		)
		e.queue.Reschedule(entry)

		return
	}

	pr, err := e.snapshot(ctx, ghPR)
	if err != nil {
		e.queue.Remove(entry.PRNumber, "invalid pull request")
		logger.Error(
			"removed pull request from merge queue, converting it failed",
			logfields.Event("automerge_invalid_pull_request"),
			zap.Error(err),
		)
		return
	}

	res := e.Evaluate(ctx, pr)
	logger.Debug(
		"re-evaluation finished",
		logfields.Event("automerge_reevaluation_finished"),
		zap.Stringer("result", res),
	)
}

func (e *Engine) snapshot(ctx context.Context, pr *github.PullRequest) (*pullrequest.Snapshot, error) {
	return e.automation.Snapshot(ctx, e.repo.Owner, e.repo.Repository, pr)
}

// Evaluate decides the next step for pr and executes it.
func (e *Engine) Evaluate(ctx context.Context, pr *pullrequest.Snapshot) Result {
	logger := e.logger.With(pr.LogFields...)

	entry, err := mergequeue.NewEntry(pr.ID, pr.Number, pr.HeadRef)
	if err != nil {
		logger.Warn(
			"ignoring pull request, incomplete information",
			logfields.Event("automerge_pull_request_invalid"),
			zap.Error(err),
		)
		return Result{State: Ineligible, Reason: err.Error()}
	}

	if !pr.IsOpen() {
		return e.evict(ctx, pr, entry, Ineligible, ReasonNotOpen)
	}

	labelSet := pr.LabelSet()

	if !e.labels.HasKey(labelSet, e.automergeLabelKey) {
		return e.evict(ctx, pr, entry, Removed, ReasonLabelRemoved)
	}

	if e.labels.AnyPendingReview(labelSet) || pr.HasRequestedReviewers() {
		return e.evict(ctx, pr, entry, Blocked, ReasonPendingReview)
	}

	if acquired, enqueued := e.queue.AcquireOrEnqueue(entry); !acquired {
		if enqueued {
			e.record(ctx, pr, ReasonLocked, auditlog.ActionQueue)
		}

		logger.Info(
			"automerge not possible, another pull request holds the merge slot",
			logfields.Event("automerge_queued"),
		)

		return Result{State: Queued, Reason: ReasonLocked}
	}

	// webhook payloads often do not contain the mergeability
	if pr.Mergeable == pullrequest.MergeableUnknown {
		refreshed, err := e.refetch(ctx, pr)
		if err != nil {
			logger.Warn(
				"fetching pull request failed, rescheduling",
				logfields.Event("automerge_fetch_failed"),
				zap.Error(err),
			)
			return e.reschedule(ctx, pr, entry, ReasonFetchFailed)
		}

		pr = refreshed
		logger = e.logger.With(pr.LogFields...)
	}

	if pr.Merged {
		e.queue.Release(entry, ReasonAlreadyMerged)
		e.record(ctx, pr, ReasonAlreadyMerged, auditlog.ActionRemove)

		return Result{State: Merged, Reason: ReasonAlreadyMerged}
	}

	logger.Info(
		"evaluating mergeability",
		logfields.Event("automerge_evaluating"),
		zap.Stringer("github.mergeable", pr.Mergeable),
		logfields.MergeableState(string(pr.MergeableState)),
		zap.Bool("github.is_automation", pr.IsAutomation),
	)

	switch pr.MergeableState {
	case pullrequest.MergeableStateClean, pullrequest.MergeableStateHasHooks, pullrequest.MergeableStateUnstable:
		return e.merge(ctx, pr, entry)

	case pullrequest.MergeableStateUnknown:
		// GitHub is still computing the mergeability
		return e.reschedule(ctx, pr, entry, ReasonUnknownState)

	case pullrequest.MergeableStateBehind, pullrequest.MergeableStateDirty:
		if pr.IsAutomation {
			return e.requestRebase(ctx, pr, entry)
		}

		if pr.MergeableState == pullrequest.MergeableStateBehind {
			return e.updateBranch(ctx, pr, entry)
		}

	case pullrequest.MergeableStateBlocked:
		return e.evaluateBlocked(ctx, pr, entry)
	}

	return e.evictNotMergeable(ctx, pr, entry)
}

func (e *Engine) refetch(ctx context.Context, pr *pullrequest.Snapshot) (*pullrequest.Snapshot, error) {
	ghPR, err := e.clt.PullRequest(ctx, e.repo.Owner, e.repo.Repository, pr.Number)
	if err != nil {
		return nil, err
	}

	return e.snapshot(ctx, ghPR)
}

// evict removes the pull request from the merge queue.
// An audit record is only stored if the pull request was queued.
func (e *Engine) evict(ctx context.Context, pr *pullrequest.Snapshot, entry *mergequeue.Entry, state State, reason string) Result {
	inSlot, inOverflow := e.queue.Contains(pr.Number)
	if inSlot || inOverflow {
		e.queue.Release(entry, reason)
		e.record(ctx, pr, reason, auditlog.ActionRemove)

		e.logger.Info(
			"pull request removed from merge queue",
			append([]zap.Field{
				logfields.Event("automerge_pull_request_removed"),
				logfields.Reason(reason),
			}, pr.LogFields...)...,
		)
	}

	return Result{State: state, Reason: reason}
}

func (e *Engine) reschedule(ctx context.Context, pr *pullrequest.Snapshot, entry *mergequeue.Entry, reason string) Result {
	e.queue.Reschedule(entry)
	e.record(ctx, pr, reason, auditlog.ActionReschedule)

	return Result{State: Blocked, Reason: reason}
}

// requestRebase asks the automation to rebase its pull request by checking
// the rebase checkbox or by prefixing the title. The wait audit record is
// only stored when the request is made, not when it is already pending.
func (e *Engine) requestRebase(ctx context.Context, pr *pullrequest.Snapshot, entry *mergequeue.Entry) Result {
	var title, body *string

	if strings.Contains(pr.Body, rebaseCheckMarker) {
		if strings.Contains(pr.Body, rebaseCheckChecked) {
			return Result{State: Blocked, Reason: ReasonRebaseAutomation}
		}

		newBody := strings.Replace(pr.Body, rebaseCheckUnchecked, rebaseCheckChecked, 1)
		if newBody == pr.Body {
			return Result{State: Blocked, Reason: ReasonRebaseAutomation}
		}

		body = &newBody
	} else {
		if strings.HasPrefix(pr.Title, rebaseTitlePrefix) {
			return Result{State: Blocked, Reason: ReasonRebaseAutomation}
		}

		newTitle := rebaseTitlePrefix + pr.Title
		title = &newTitle
	}

	err := e.clt.UpdatePullRequest(ctx, e.repo.Owner, e.repo.Repository, pr.Number, title, body)
	if err != nil {
		e.logger.Warn(
			"requesting rebase of automation pull request failed",
			append([]zap.Field{
				logfields.Event("automerge_rebase_request_failed"),
				zap.Error(err),
			}, pr.LogFields...)...,
		)

		return e.reschedule(ctx, pr, entry, ReasonRebaseRequestFailed)
	}

	e.record(ctx, pr, ReasonRebaseAutomation, auditlog.ActionWait)

	e.logger.Info(
		"rebase of automation pull request requested",
		append([]zap.Field{logfields.Event("automerge_rebase_requested")}, pr.LogFields...)...,
	)

	return Result{State: Blocked, Reason: ReasonRebaseAutomation}
}

// evaluateBlocked removes pull requests with failed CI jobs from the queue.
// Otherwise it waits for a status event.
func (e *Engine) evaluateBlocked(ctx context.Context, pr *pullrequest.Snapshot, entry *mergequeue.Entry) Result {
	status, err := e.clt.CIStatus(ctx, e.repo.Owner, e.repo.Repository, pr.Number)
	if err != nil {
		e.logger.Warn(
			"retrieving ci status failed",
			append([]zap.Field{
				logfields.Event("automerge_ci_status_failed"),
				zap.Error(err),
			}, pr.LogFields...)...,
		)

		return e.reschedule(ctx, pr, entry, ReasonCIStatusFailed)
	}

	if failed := status.Failed(); len(failed) > 0 {
		e.queue.Release(entry, ReasonFailedChecks)
		e.record(ctx, pr, ReasonFailedChecks, auditlog.ActionRemove)

		e.logger.Info(
			"automerge not possible, failed status or checks",
			append([]zap.Field{
				logfields.Event("automerge_failed_checks"),
				zap.Strings("ci.failed_jobs", failed),
			}, pr.LogFields...)...,
		)

		e.notify(ctx, pr, notification.CategoryPRLifecycle, fmt.Sprintf(
			"%s was removed from the merge queue, failed status or checks: %s",
			pr, strings.Join(failed, ", "),
		))

		return Result{State: Removed, Reason: ReasonFailedChecks}
	}

	e.record(ctx, pr, ReasonBlocked, auditlog.ActionWait)

	return Result{State: Blocked, Reason: ReasonBlocked}
}

// updateBranch merges the base branch into the head branch. The pull
// request leaves the merge slot, the push event of the update triggers the
// next evaluation.
func (e *Engine) updateBranch(ctx context.Context, pr *pullrequest.Snapshot, entry *mergequeue.Entry) Result {
	logger := e.logger.With(pr.LogFields...)

	e.record(ctx, pr, ReasonBehind, auditlog.ActionUpdateBranch)

	logger.Info(
		"automerge not possible, updating branch",
		logfields.Event("automerge_update_branch"),
	)

	_, err := e.clt.MergeBranch(ctx, e.repo.Owner, e.repo.Repository, pr.HeadRef, pr.BaseRef)
	if err != nil {
		if errors.Is(err, githubclt.ErrMergeConflict) {
			e.queue.Release(entry, ReasonMergeConflict)
			e.record(ctx, pr, ReasonMergeConflict, auditlog.ActionRemove)

			e.notify(ctx, pr, notification.CategoryPRMergeConflicts, fmt.Sprintf(
				"%s was removed from the merge queue, %s can not be merged into %s because of a conflict",
				pr, pr.BaseRef, pr.HeadRef,
			))

			return Result{State: Removed, Reason: ReasonMergeConflict}
		}

		logger.Warn(
			"updating branch failed",
			logfields.Event("automerge_update_branch_failed"),
			zap.Error(err),
		)

		return e.reschedule(ctx, pr, entry, ReasonUpdateBranchFailed)
	}

	e.queue.Release(entry, ReasonBehind)

	return Result{State: Blocked, Reason: ReasonBehind}
}

func (e *Engine) evictNotMergeable(ctx context.Context, pr *pullrequest.Snapshot, entry *mergequeue.Entry) Result {
	e.queue.Release(entry, ReasonNotMergeable)
	e.record(ctx, pr, ReasonNotMergeable, auditlog.ActionRemove)

	e.logger.Info(
		"automerge not possible, pull request is not mergeable",
		append([]zap.Field{
			logfields.Event("automerge_not_mergeable"),
			logfields.MergeableState(string(pr.MergeableState)),
		}, pr.LogFields...)...,
	)

	category := notification.CategoryPRLifecycle
	if pr.MergeableState == pullrequest.MergeableStateDirty {
		category = notification.CategoryPRMergeConflicts
	}

	e.notify(ctx, pr, category, fmt.Sprintf(
		"%s was removed from the merge queue, it is not mergeable (mergeable_state=%s)",
		pr, pr.MergeableState,
	))

	return Result{State: Removed, Reason: ReasonNotMergeable}
}

// Options returns the options of the pull request.
// The defaults are overridden by the presence of the option labels, the
// options comment overrides both.
func (e *Engine) Options(ctx context.Context, pr *pullrequest.Snapshot) (commentbody.Options, error) {
	defaults := e.defaultOptions.Clone()
	labelSet := pr.LabelSet()

	if _, exists := e.labels.Label(e.featureBranchLabelKey); exists {
		defaults[commentbody.OptionFeatureBranch] = e.labels.HasKey(labelSet, e.featureBranchLabelKey)
	}

	if _, exists := e.labels.Label(e.skipCILabelKey); exists {
		defaults[commentbody.OptionAutoMergeWithSkipCi] = e.labels.HasKey(labelSet, e.skipCILabelKey)
	}

	comments, err := e.clt.ListIssueComments(ctx, e.repo.Owner, e.repo.Repository, pr.Number)
	if err != nil {
		return nil, err
	}

	for _, c := range comments {
		if commentbody.IsOptionsComment(c.GetBody()) {
			return commentbody.ParseOptions(c.GetBody(), defaults), nil
		}
	}

	return defaults, nil
}

// MergeOptions returns the merge parameters for pr.
// Feature branches are merged with a merge commit to preserve their
// commits, other pull requests are squashed.
func (e *Engine) MergeOptions(pr *pullrequest.Snapshot, opts commentbody.Options) *githubclt.MergeOptions {
	if opts[commentbody.OptionFeatureBranch] {
		return &githubclt.MergeOptions{Method: "merge", SHA: pr.HeadSHA}
	}

	skipCI := opts[commentbody.OptionAutoMergeWithSkipCi] || (pr.IsAutomation && e.automationWithSkipCI)

	var title strings.Builder
	title.WriteString(pr.Title)
	if skipCI {
		title.WriteString(" [skip ci]")
	}
	fmt.Fprintf(&title, " (#%d)", pr.Number)

	return &githubclt.MergeOptions{
		Method:      "squash",
		CommitTitle: title.String(),
		SHA:         pr.HeadSHA,
	}
}

func (e *Engine) merge(ctx context.Context, pr *pullrequest.Snapshot, entry *mergequeue.Entry) Result {
	logger := e.logger.With(pr.LogFields...)

	opts, err := e.Options(ctx, pr)
	if err != nil {
		logger.Warn(
			"reading options comment failed",
			logfields.Event("automerge_options_failed"),
			zap.Error(err),
		)

		return e.reschedule(ctx, pr, entry, ReasonOptionsFailed)
	}

	mergeOpts := e.MergeOptions(pr, opts)

	logger = logger.With(
		logfields.MergeMethod(mergeOpts.Method),
		zap.String("github.commit_title", mergeOpts.CommitTitle),
	)

	logger.Info("merging pull request", logfields.Event("automerge_merging"))

	err = e.clt.MergePullRequest(ctx, e.repo.Owner, e.repo.Repository, pr.Number, mergeOpts)
	if err != nil {
		logger.Info(
			"merging pull request failed, rescheduling",
			logfields.Event("automerge_merge_failed"),
			zap.Error(err),
		)

		return e.reschedule(ctx, pr, entry, ReasonMergeFailed)
	}

	e.queue.Release(entry, ReasonMerged)
	e.record(ctx, pr, ReasonMerged, auditlog.ActionMerge)

	logger.Info("pull request merged", logfields.Event("automerge_merged"))

	e.notify(ctx, pr, notification.CategoryPRLifecycle, fmt.Sprintf("%s was merged", pr))

	return Result{State: Merged, Reason: ReasonMerged}
}

// record stores an audit record and counts the decision.
// Failures are logged.
func (e *Engine) record(ctx context.Context, pr *pullrequest.Snapshot, typ string, action auditlog.Action) {
	metrics.decisionInc(e.repo, typ, action)

	if e.audit == nil {
		return
	}

	ctx, cancelFn := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancelFn()

	rec := auditlog.NewRecord(e.account, e.repo.String(), pr.Number, typ, action)
	if err := e.audit.Append(ctx, rec); err != nil {
		e.logger.Warn(
			"storing audit record failed",
			append([]zap.Field{
				logfields.Event("audit_record_store_failed"),
				zap.String("audit.type", typ),
				zap.String("audit.action", string(action)),
				zap.Error(err),
			}, pr.LogFields...)...,
		)
	}
}

// notify sends a message to the author of pr.
// Failures are logged.
func (e *Engine) notify(ctx context.Context, pr *pullrequest.Snapshot, category notification.MessageCategory, text string) {
	if e.sink == nil || pr.Author == "" {
		return
	}

	ctx, cancelFn := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancelFn()

	if _, err := e.sink.PostMessage(ctx, category, pr.AuthorID, pr.Author, text); err != nil {
		e.logger.Warn(
			"sending notification failed",
			append([]zap.Field{
				logfields.Event("notification_failed"),
				zap.String("notification.category", string(category)),
				zap.Error(err),
			}, pr.LogFields...)...,
		)
	}
}
