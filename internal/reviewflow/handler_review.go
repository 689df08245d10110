package reviewflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/labels"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/notification"
	"github.com/simplesurance/reviewflow/internal/pullrequest"
	"github.com/simplesurance/reviewflow/internal/reviewgroup"
)

func keys(ks ...labels.ReviewKey) []labels.ReviewKey {
	return ks
}

// when returns keys if cond is true, otherwise nil.
func when(cond bool, ks ...labels.ReviewKey) []labels.ReviewKey {
	if !cond {
		return nil
	}

	return ks
}

func (r *RepoContext) reviewStates(ctx context.Context, pr *pullrequest.Snapshot) (map[string]*reviewgroup.ReviewState, error) {
	var ghReviews []*github.PullRequestReview

	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		ghReviews, err = r.clt.ListReviews(ctx, r.Owner, r.Name, pr.Number)
		return err
	}, append([]zap.Field{logfields.Event("github_list_reviews")}, pr.LogFields...))
	if err != nil {
		return nil, fmt.Errorf("listing reviews failed: %w", err)
	}

	reviews := make([]reviewgroup.Review, 0, len(ghReviews))
	for _, rv := range ghReviews {
		reviews = append(reviews, reviewgroup.Review{
			Login: rv.GetUser().GetLogin(),
			State: rv.GetState(),
		})
	}

	return reviewgroup.StatesFromReviews(r.Groups, reviews), nil
}

func (r *RepoContext) onReviewRequested(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot, sender, reviewer *github.User) error {
	if reviewer == nil {
		return ignored("review of a team was requested")
	}

	logger = logger.With(logfields.Reviewer(reviewer.GetLogin()))

	if group, ok := r.Groups.GroupOf(reviewer.GetLogin()); ok {
		err := r.updateReviewLabels(ctx, pr, group, labels.DiffRequest{
			Add:    keys(labels.NeedsReview, labels.Requested),
			Remove: keys(labels.Approved),
		})
		if err != nil {
			return err
		}

		logger.Info(
			"review requested",
			logfields.Event("review_requested"),
			logfields.ReviewGroup(group),
		)
	}

	if sender.GetLogin() != reviewer.GetLogin() {
		r.notify(ctx, notification.CategoryPRReview, reviewer, fmt.Sprintf(
			":eyes: %s requests your review on %s", r.mention(sender.GetLogin()), pr,
		))
	}

	r.evaluate(ctx, logger, pr)

	return nil
}

func (r *RepoContext) onReviewRequestRemoved(ctx context.Context, logger *zap.Logger, pr *pullrequest.Snapshot, sender, reviewer *github.User) error {
	if reviewer == nil {
		return ignored("review request of a team was removed")
	}

	logger = logger.With(logfields.Reviewer(reviewer.GetLogin()))

	if group, ok := r.Groups.GroupOf(reviewer.GetLogin()); ok {
		waiting := r.Groups.ShouldWait(group, pr.RequestedReviewers, reviewgroup.WaitOptions{
			IncludeSameGroup: true,
		})

		states, err := r.reviewStates(ctx, pr)
		if err != nil {
			return err
		}

		st := states[group]
		changesRequested := st.ChangesRequested > 0
		approved := !waiting && !changesRequested && st.Approved > 0

		err = r.updateReviewLabels(ctx, pr, group, labels.DiffRequest{
			Add: append(
				when(changesRequested, labels.ChangesRequested),
				when(approved, labels.Approved)...,
			),
			Remove: append(
				when(approved, labels.NeedsReview),
				when(!waiting, labels.Requested)...,
			),
		})
		if err != nil {
			return err
		}

		logger.Info(
			"review request removed",
			logfields.Event("review_request_removed"),
			logfields.ReviewGroup(group),
		)
	}

	if sender.GetLogin() != reviewer.GetLogin() {
		r.notify(ctx, notification.CategoryPRReview, reviewer, fmt.Sprintf(
			":skull_and_crossbones: %s removed the request for your review on %s",
			r.mention(sender.GetLogin()), pr,
		))
	}

	r.evaluate(ctx, logger, pr)

	return nil
}

// HandlePullRequestReviewEvent processes a pull_request_review webhook
// event.
func (r *RepoContext) HandlePullRequestReviewEvent(ctx context.Context, logger *zap.Logger, ev *github.PullRequestReviewEvent) error {
	ghPR := ev.GetPullRequest()
	action := ev.GetAction()
	reviewer := ev.GetReview().GetUser()

	logger = logger.With(
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
		logfields.PullRequest(ghPR.GetNumber()),
		logfields.Reviewer(reviewer.GetLogin()),
		zap.String("github.pull_request_review_event.action", action),
	)

	if action != "submitted" && action != "dismissed" {
		return ignored("action %s is not handled", action)
	}

	if reviewer.GetLogin() == ghPR.GetUser().GetLogin() {
		return ignored("review by the pull request author")
	}

	group, ok := r.Groups.GroupOf(reviewer.GetLogin())
	if !ok {
		return ignored("reviewer %s is not member of a review group", reviewer.GetLogin())
	}

	logger = logger.With(logfields.ReviewGroup(group))

	return r.WithPullRequestLock(ctx, ghPR.GetID(), func(ctx context.Context) error {
		pr, err := r.fetchPullRequest(ctx, ghPR.GetNumber())
		if err != nil {
			return err
		}

		states, err := r.reviewStates(ctx, pr)
		if err != nil {
			return err
		}

		if action == "dismissed" {
			return r.onReviewDismissed(ctx, logger, pr, group, states[group], reviewer)
		}

		return r.onReviewSubmitted(ctx, logger, pr, group, states[group], ev.GetReview(), ev.GetSender())
	})
}

func (r *RepoContext) onReviewSubmitted(
	ctx context.Context,
	logger *zap.Logger,
	pr *pullrequest.Snapshot,
	group string,
	st *reviewgroup.ReviewState,
	review *github.PullRequestReview,
	sender *github.User,
) error {
	state := strings.ToUpper(review.GetState())
	stateApproved := state == reviewgroup.ReviewStateApproved
	stateChangesRequested := state == reviewgroup.ReviewStateChangesRequested

	if !stateApproved && !stateChangesRequested {
		return ignored("review state %s does not change labels", state)
	}

	waiting := r.Groups.ShouldWait(group, pr.RequestedReviewers, reviewgroup.WaitOptions{
		IncludeSameGroup:    true,
		IncludeDependencies: true,
	})
	changesRequested := st.ChangesRequested > 0
	approved := stateApproved && !waiting && !changesRequested

	err := r.updateReviewLabels(ctx, pr, group, labels.DiffRequest{
		Add: append(
			when(approved, labels.Approved),
			when(stateChangesRequested, labels.ChangesRequested)...,
		),
		Remove: append(append(append(
			when(approved, labels.NeedsReview),
			when(!waiting && !stateChangesRequested, labels.Requested)...),
			when(stateApproved && !changesRequested, labels.ChangesRequested)...),
			when(stateChangesRequested, labels.Approved)...,
		),
	})
	if err != nil {
		return err
	}

	logger.Info(
		"review submitted",
		logfields.Event("review_submitted"),
		zap.String("github.review.state", state),
		zap.Bool("review_group_approved", approved),
	)

	author := &github.User{Login: &pr.Author, ID: &pr.AuthorID}
	if stateApproved {
		r.notify(ctx, notification.CategoryPRReview, author, fmt.Sprintf(
			":white_check_mark: %s approved %s", r.mention(sender.GetLogin()), pr,
		))
	} else {
		r.notify(ctx, notification.CategoryPRReview, author, fmt.Sprintf(
			":x: %s requested changes on %s", r.mention(sender.GetLogin()), pr,
		))
	}

	r.evaluate(ctx, logger, pr)

	return nil
}

func (r *RepoContext) onReviewDismissed(
	ctx context.Context,
	logger *zap.Logger,
	pr *pullrequest.Snapshot,
	group string,
	st *reviewgroup.ReviewState,
	reviewer *github.User,
) error {
	waiting := r.Groups.ShouldWait(group, pr.RequestedReviewers, reviewgroup.WaitOptions{
		IncludeSameGroup: true,
	})

	err := r.updateReviewLabels(ctx, pr, group, labels.DiffRequest{
		Add: append(
			keys(labels.NeedsReview),
			when(waiting, labels.Requested)...,
		),
		Remove: append(append(
			when(!waiting, labels.Requested),
			when(st.Approved == 0, labels.Approved)...),
			when(st.ChangesRequested == 0, labels.ChangesRequested)...,
		),
	})
	if err != nil {
		return err
	}

	logger.Info("review dismissed", logfields.Event("review_dismissed"))

	r.notify(ctx, notification.CategoryPRReview, reviewer, fmt.Sprintf(
		":skull_and_crossbones: your review on %s was dismissed", pr,
	))

	r.evaluate(ctx, logger, pr)

	return nil
}
