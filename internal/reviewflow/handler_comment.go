package reviewflow

import (
	"context"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/logfields"
)

// HandleIssueCommentEvent processes an issue_comment webhook event.
// Edits of the options comment are applied to the option labels of the
// pull request.
func (r *RepoContext) HandleIssueCommentEvent(ctx context.Context, logger *zap.Logger, ev *github.IssueCommentEvent) error {
	issue := ev.GetIssue()
	body := ev.GetComment().GetBody()

	logger = logger.With(
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
		logfields.PullRequest(issue.GetNumber()),
		zap.String("github.issue_comment_event.action", ev.GetAction()),
	)

	if ev.GetAction() != "edited" {
		return ignored("action %s is not handled", ev.GetAction())
	}

	if !issue.IsPullRequest() {
		return ignored("comment is not on a pull request")
	}

	if isBot(ev.GetSender()) {
		return ignored("comment was edited by bot %s", ev.GetSender().GetLogin())
	}

	if !commentbody.IsOptionsComment(body) {
		return ignored("comment is not the options comment")
	}

	// the issue payload does not contain the pull request id that is
	// used as lock key
	pr, err := r.fetchPullRequest(ctx, issue.GetNumber())
	if err != nil {
		return err
	}

	return r.WithPullRequestLock(ctx, pr.ID, func(ctx context.Context) error {
		pr, err := r.fetchPullRequest(ctx, issue.GetNumber())
		if err != nil {
			return err
		}

		defaults := r.labelOptions(pr)
		opts := commentbody.ParseOptions(body, defaults)

		if from := ev.GetChanges().GetBody().GetFrom(); from != "" {
			if commentbody.ParseOptions(from, defaults).Equal(opts) {
				return ignored("options did not change")
			}
		}

		logger.Info(
			"options comment edited",
			logfields.Event("options_comment_edited"),
			zap.Stringer("options", opts),
		)

		if err := r.syncOptionLabels(ctx, pr, opts); err != nil {
			return err
		}

		r.evaluate(ctx, logger, pr)

		return nil
	})
}
