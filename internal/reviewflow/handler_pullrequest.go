package reviewflow

import (
	"context"
	"fmt"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/labels"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/pullrequest"
)

const senderTypeBot = "Bot"

func isBot(u *github.User) bool {
	return u.GetType() == senderTypeBot
}

func withoutLabel(ls []labels.Label, id int64) []labels.Label {
	result := make([]labels.Label, 0, len(ls))

	for _, l := range ls {
		if l.ID != id {
			result = append(result, l)
		}
	}

	return result
}

// HandlePullRequestEvent processes a pull_request webhook event.
func (r *RepoContext) HandlePullRequestEvent(ctx context.Context, logger *zap.Logger, ev *github.PullRequestEvent) error {
	ghPR := ev.GetPullRequest()
	action := ev.GetAction()

	logger = logger.With(
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
		logfields.PullRequest(ghPR.GetNumber()),
		logfields.Branch(ghPR.GetHead().GetRef()),
		zap.String("github.pull_request_event.action", action),
	)

	switch action {
	case "opened", "closed":
	case "reopened", "synchronize", "review_requested", "review_request_removed":
	case "edited", "labeled", "unlabeled":
		if isBot(ev.GetSender()) {
			return ignored("%s by bot %s", action, ev.GetSender().GetLogin())
		}

	default:
		return ignored("action %s is not handled", action)
	}

	return r.WithPullRequestLock(ctx, ghPR.GetID(), func(ctx context.Context) error {
		var pr *pullrequest.Snapshot
		var err error

		// the state of the pull request can have changed while waiting
		// for the lock
		if action == "opened" || action == "closed" {
			pr, err = r.snapshot(ctx, ghPR)
		} else {
			pr, err = r.fetchPullRequest(ctx, ghPR.GetNumber())
		}
		if err != nil {
			return err
		}

		switch action {
		case "opened":
			return r.onOpened(ctx, logger, pr)
		case "reopened":
			return r.onReopened(ctx, logger, pr)
		case "edited":
			return r.onChanged(ctx, logger, pr, false)
		case "synchronize":
			return r.onChanged(ctx, logger, pr, true)
		case "labeled":
			return r.onLabeled(ctx, logger, pr, ev.GetLabel())
		case "unlabeled":
			return r.onUnlabeled(ctx, logger, pr, ev.GetLabel())
		case "closed":
			return r.onClosed(ctx, logger, pr, ghPR, ev.GetRepo())
		case "review_requested":
			return r.onReviewRequested(ctx, logger, pr, ev.GetSender(), ev.GetRequestedReviewer())
		case "review_request_removed":
			return r.onReviewRequestRemoved(ctx, logger, pr, ev.GetSender(), ev.GetRequestedReviewer())
		}

		return nil
	})
}

func (r *RepoContext) evaluate(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot) {
	res := r.Engine.Evaluate(ctx, pr)

	logger.Debug(
		"automerge evaluated",
		logfields.Event("automerge_evaluated"),
		zap.Stringer("result", res),
	)
}

func (r *RepoContext) onOpened(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot) error {
	opts, err := r.ensureOptionsComment(ctx, pr)
	if err != nil {
		return err
	}

	if err := r.syncOptionLabels(ctx, pr, opts); err != nil {
		return err
	}

	if err := r.updateInfosAndNotes(ctx, pr, true); err != nil {
		return err
	}

	if group, ok := r.PrimaryGroup(); ok {
		req := labels.DiffRequest{
			Remove: []labels.ReviewKey{labels.Approved, labels.ChangesRequested},
			Author: pr.Author,
		}

		if r.Config.RequiresReviewRequestEnabled() {
			req.Add = []labels.ReviewKey{labels.NeedsReview}
		}

		if err := r.updateReviewLabels(ctx, pr, group, req); err != nil {
			return err
		}
	} else if err := r.updateStatus(ctx, pr); err != nil {
		return err
	}

	logger.Info("pull request opened", logfields.Event("pull_request_opened"))

	r.evaluate(ctx, logger, pr)

	return nil
}

func (r *RepoContext) onReopened(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot) error {
	if _, err := r.ensureOptionsComment(ctx, pr); err != nil {
		return err
	}

	if group, ok := r.PrimaryGroup(); ok {
		err := r.updateReviewLabels(ctx, pr, group, labels.DiffRequest{
			Add:    []labels.ReviewKey{labels.NeedsReview},
			Remove: []labels.ReviewKey{labels.Approved},
			Author: pr.Author,
		})
		if err != nil {
			return err
		}
	}

	r.evaluate(ctx, logger, pr)

	return nil
}

// onChanged handles edits of the title or body and pushes to the head
// branch. The commits are only read when they changed.
func (r *RepoContext) onChanged(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot, commitsChanged bool) error {
	opts, err := r.ensureOptionsComment(ctx, pr)
	if err != nil {
		return err
	}

	if err := r.syncOptionLabels(ctx, pr, opts); err != nil {
		return err
	}

	if err := r.updateInfosAndNotes(ctx, pr, commitsChanged); err != nil {
		return err
	}

	if err := r.updateStatus(ctx, pr); err != nil {
		return err
	}

	r.evaluate(ctx, logger, pr)

	return nil
}

func (r *RepoContext) onLabeled(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot, ghLabel *github.Label) error {
	logger = logger.With(logfields.Label(ghLabel.GetName()))

	if r.Labels.IsProtected(ghLabel.GetID()) {
		logger.Info(
			"protected label was added manually, removing it",
			logfields.Event("protected_label_reverted"),
		)

		return r.retryer.Run(ctx, func(ctx context.Context) error {
			return r.clt.RemoveLabel(ctx, r.Owner, r.Name, pr.Number, ghLabel.GetName())
		}, append([]zap.Field{logfields.Event("github_remove_label")}, pr.LogFields...))
	}

	if l, exists := r.Labels.Label(r.Config.UpdateBranchLabel); exists && l.ID == ghLabel.GetID() {
		return r.updateBranch(ctx, logger, pr, l)
	}

	if key, isOption := r.optionKeyOfLabel(ghLabel.GetID()); isOption {
		if err := r.updateOptionsComment(ctx, pr, commentbody.Options{key: true}); err != nil {
			return err
		}
	}

	if err := r.updateStatus(ctx, pr); err != nil {
		return err
	}

	if l, exists := r.Labels.Label(r.Config.AutomergeLabel); exists && l.ID == ghLabel.GetID() {
		logger.Info("automerge requested", logfields.Event("automerge_label_added"))
		r.evaluate(ctx, logger, pr)
	}

	return nil
}

func (r *RepoContext) onUnlabeled(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot, ghLabel *github.Label) error {
	logger = logger.With(logfields.Label(ghLabel.GetName()))

	if r.Labels.IsProtected(ghLabel.GetID()) {
		logger.Info(
			"protected label was removed manually, adding it again",
			logfields.Event("protected_label_reverted"),
		)

		return r.retryer.Run(ctx, func(ctx context.Context) error {
			return r.clt.AddLabels(ctx, r.Owner, r.Name, pr.Number, []string{ghLabel.GetName()})
		}, append([]zap.Field{logfields.Event("github_add_labels")}, pr.LogFields...))
	}

	if key, isOption := r.optionKeyOfLabel(ghLabel.GetID()); isOption {
		if err := r.updateOptionsComment(ctx, pr, commentbody.Options{key: false}); err != nil {
			return err
		}
	}

	if err := r.updateStatus(ctx, pr); err != nil {
		return err
	}

	if l, exists := r.Labels.Label(r.Config.AutomergeLabel); exists && l.ID == ghLabel.GetID() {
		logger.Info("automerge cancelled", logfields.Event("automerge_label_removed"))
		r.evaluate(ctx, logger, pr)
	}

	return nil
}

// updateBranch merges the base branch into the head branch of pr and
// removes the update-branch label.
func (r *RepoContext) updateBranch(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot, l labels.Label) error {
	var merged bool

	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		merged, err = r.clt.MergeBranch(ctx, r.Owner, r.Name, pr.HeadRef, pr.BaseRef)
		return err
	}, append([]zap.Field{logfields.Event("github_merge_branch")}, pr.LogFields...))

	var comment string
	switch {
	case err != nil:
		comment = fmt.Sprintf("Could not update branch: %s", err)
		logger.Info("updating branch failed", logfields.Event("update_branch_failed"), zap.Error(err))
	case merged:
		comment = fmt.Sprintf("Branch updated with the changes of %s.", pr.BaseRef)
		logger.Info("branch updated", logfields.Event("branch_updated"))
	default:
		comment = "Branch is already up to date."
		logger.Info("branch is up to date", logfields.Event("branch_up_to_date"))
	}

	err = r.retryer.Run(ctx, func(ctx context.Context) error {
		_, err := r.clt.CreateIssueComment(ctx, r.Owner, r.Name, pr.Number, comment)
		return err
	}, append([]zap.Field{logfields.Event("github_create_issue_comment")}, pr.LogFields...))
	if err != nil {
		logger.Warn(
			"creating update branch result comment failed",
			logfields.Event("github_create_issue_comment_failed"),
			zap.Error(err),
		)
	}

	return r.retryer.Run(ctx, func(ctx context.Context) error {
		return r.clt.RemoveLabel(ctx, r.Owner, r.Name, pr.Number, l.Name)
	}, append([]zap.Field{logfields.Event("github_remove_label"), logfields.Label(l.Name)}, pr.LogFields...))
}

func isFork(pr *github.PullRequest, repo *github.Repository) bool {
	headRepo := pr.GetHead().GetRepo()
	if headRepo == nil {
		return false
	}

	return headRepo.GetID() != repo.GetID()
}

func (r *RepoContext) onClosed(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot, ghPR *github.PullRequest, ghRepo *github.Repository) error {
	r.evaluate(ctx, logger, pr)

	if !pr.Merged {
		logger.Info("pull request closed", logfields.Event("pull_request_closed"))

		group, ok := r.PrimaryGroup()
		if !ok {
			return nil
		}

		return r.updateReviewLabels(ctx, pr, group, labels.DiffRequest{
			Remove: []labels.ReviewKey{labels.NeedsReview},
		})
	}

	logger.Info("pull request merged", logfields.Event("pull_request_merged"))

	if isFork(ghPR, ghRepo) {
		return nil
	}

	opts, err := r.Engine.Options(ctx, pr)
	if err != nil {
		return fmt.Errorf("reading options failed: %w", err)
	}

	if !opts[commentbody.OptionDeleteAfterMerge] {
		return nil
	}

	err = r.retryer.Run(ctx, func(ctx context.Context) error {
		return r.clt.DeleteBranch(ctx, r.Owner, r.Name, pr.HeadRef)
	}, append([]zap.Field{logfields.Event("github_delete_branch")}, pr.LogFields...))
	if err != nil {
		return fmt.Errorf("deleting branch %s failed: %w", pr.HeadRef, err)
	}

	logger.Info("branch deleted after merge", logfields.Event("branch_deleted"))

	return nil
}
