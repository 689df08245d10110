package reviewflow

import (
	"context"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/mergequeue"
)

func ghBranchesAsStrings(branches []*github.Branch) []string {
	result := make([]string, 0, len(branches))

	for _, branch := range branches {
		result = append(result, branch.GetName())
	}

	return result
}

// HandleStatusEvent processes a status webhook event.
// When the status belongs to the pull request in the merge slot, its
// evaluation is rescheduled.
func (r *RepoContext) HandleStatusEvent(_ context.Context, logger *zap.Logger, ev *github.StatusEvent) error {
	branches := ghBranchesAsStrings(ev.Branches)

	logger = logger.With(
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
		zap.Strings("git.branches", branches),
		zap.String("github.status_event.state", ev.GetState()),
	)

	if ev.GetState() == "pending" {
		return ignored("status is pending")
	}

	if len(branches) == 0 {
		return ignored("branch field is empty")
	}

	entry := r.Queue.LockedWithBranch(branches)
	if entry == nil {
		return ignored("status is not for the pull request in the merge slot")
	}

	r.Queue.Reschedule(entry)

	logger.Debug(
		"evaluation of pull request in merge slot rescheduled",
		append([]zap.Field{logfields.Event("automerge_rescheduled_on_status")}, entry.LogFields...)...,
	)

	return nil
}

// HandleCheckRunEvent processes a check_run webhook event.
func (r *RepoContext) HandleCheckRunEvent(ctx context.Context, logger *zap.Logger, ev *github.CheckRunEvent) error {
	if ev.GetAction() != "completed" {
		return ignored("action %s is not handled", ev.GetAction())
	}

	return r.reevaluateLockedBranch(ctx, logger, ev.GetCheckRun().GetCheckSuite().GetHeadBranch())
}

// HandleCheckSuiteEvent processes a check_suite webhook event.
func (r *RepoContext) HandleCheckSuiteEvent(ctx context.Context, logger *zap.Logger, ev *github.CheckSuiteEvent) error {
	if ev.GetAction() != "completed" {
		return ignored("action %s is not handled", ev.GetAction())
	}

	return r.reevaluateLockedBranch(ctx, logger, ev.GetCheckSuite().GetHeadBranch())
}

// reevaluateLockedBranch re-evaluates the pull request in the merge slot
// if its head branch is branch.
func (r *RepoContext) reevaluateLockedBranch(ctx context.Context, logger *zap.Logger, branch string) error {
	logger = logger.With(
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
		logfields.Branch(branch),
	)

	if branch == "" {
		return ignored("head branch is empty")
	}

	entry := r.Queue.LockedWithBranch([]string{branch})
	if entry == nil {
		return ignored("check is not for the pull request in the merge slot")
	}

	return r.WithPullRequestLock(ctx, entry.PRID, func(ctx context.Context) error {
		if !sameEntry(r.Queue.Locked(), entry) {
			return ignored("merge slot changed while waiting for the lock")
		}

		logger.Debug(
			"re-evaluating pull request in merge slot",
			append([]zap.Field{logfields.Event("automerge_reevaluate_on_check")}, entry.LogFields...)...,
		)

		r.Engine.Reevaluate(ctx, entry)

		return nil
	})
}

func sameEntry(a, b *mergequeue.Entry) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.PRNumber == b.PRNumber
}
