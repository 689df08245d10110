package reviewflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/commitnotes"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/pullrequest"
	"github.com/simplesurance/reviewflow/internal/titlerule"
)

// checkTitle reports the results of the title rules as commit statuses of
// the head commit and returns the info lines for the options comment.
// If no title rules are configured nil is returned.
func (r *RepoContext) checkTitle(ctx context.Context, pr *pullrequest.Snapshot) ([]commentbody.Info, error) {
	if len(r.TitleRules) == 0 || pr.HeadSHA == "" {
		return nil, nil
	}

	res := titlerule.Check(r.TitleRules, pr.Title, pr.AuthorIsBot)

	for _, st := range res.Statuses {
		err := r.retryer.Run(ctx, func(ctx context.Context) error {
			return r.clt.CreateStatus(ctx, r.Owner, r.Name, pr.HeadSHA, st.State, st.Context, st.Description)
		}, append([]zap.Field{
			logfields.Event("github_create_status"),
			logfields.Commit(pr.HeadSHA),
			zap.String("github.status.context", st.Context),
		}, pr.LogFields...))
		if err != nil {
			return nil, fmt.Errorf("creating %s commit status failed: %w", st.Context, err)
		}
	}

	r.logger.Debug(
		"title checked",
		append([]zap.Field{
			logfields.Event("title_checked"),
			zap.Bool("title_valid", res.Valid()),
			zap.Int("infos", len(res.Infos)),
		}, pr.LogFields...)...,
	)

	return res.Infos, nil
}

// breakingChangeNotes returns the commit notes section content that lists
// the breaking change notes of the commits of pr.
func (r *RepoContext) breakingChangeNotes(ctx context.Context, pr *pullrequest.Snapshot) (string, error) {
	var ghCommits []*github.RepositoryCommit

	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		ghCommits, err = r.clt.ListPullRequestCommits(ctx, r.Owner, r.Name, pr.Number)
		return err
	}, append([]zap.Field{logfields.Event("github_list_pull_request_commits")}, pr.LogFields...))
	if err != nil {
		return "", fmt.Errorf("listing commits failed: %w", err)
	}

	commits := make([]*commitnotes.Commit, 0, len(ghCommits))
	for _, c := range ghCommits {
		commits = append(commits, &commitnotes.Commit{SHA: c.GetSHA(), Message: c.GetCommit().GetMessage()})
	}

	return commitnotes.Render(commitnotes.Collect(commits)), nil
}

// syncBreakingChangesLabel adds the breaking changes label to pr if want
// is true, otherwise it is removed. Nothing is done if the label does not
// exist in the repository.
func (r *RepoContext) syncBreakingChangesLabel(ctx context.Context, pr *pullrequest.Snapshot, want bool) error {
	l, exists := r.Labels.Label(r.Config.BreakingChangesLabel)
	if !exists {
		return nil
	}

	has := pr.LabelSet().Has(l)

	switch {
	case want && !has:
		err := r.retryer.Run(ctx, func(ctx context.Context) error {
			return r.clt.AddLabels(ctx, r.Owner, r.Name, pr.Number, []string{l.Name})
		}, append([]zap.Field{logfields.Event("github_add_labels"), logfields.Label(l.Name)}, pr.LogFields...))
		if err != nil {
			return fmt.Errorf("adding label %q failed: %w", l.Name, err)
		}

		pr.Labels = append(pr.Labels, l)

	case !want && has:
		err := r.retryer.Run(ctx, func(ctx context.Context) error {
			return r.clt.RemoveLabel(ctx, r.Owner, r.Name, pr.Number, l.Name)
		}, append([]zap.Field{logfields.Event("github_remove_label"), logfields.Label(l.Name)}, pr.LogFields...))
		if err != nil {
			return fmt.Errorf("removing label %q failed: %w", l.Name, err)
		}

		pr.Labels = withoutLabel(pr.Labels, l.ID)
	}

	return nil
}

// updateInfosAndNotes refreshes the infos and, if readCommits is true,
// the commit notes section of the options comment of pr.
func (r *RepoContext) updateInfosAndNotes(ctx context.Context, pr *pullrequest.Snapshot, readCommits bool) error {
	infos, err := r.checkTitle(ctx, pr)
	if err != nil {
		return err
	}

	var notes *string
	if readCommits && r.Config.BreakingChangesLabel != "" {
		n, err := r.breakingChangeNotes(ctx, pr)
		if err != nil {
			return err
		}

		if err := r.syncBreakingChangesLabel(ctx, pr, n != ""); err != nil {
			return err
		}

		notes = &n
	}

	if infos == nil && notes == nil {
		return nil
	}

	comment, err := r.optionsComment(ctx, pr)
	if err != nil {
		return err
	}

	if comment == nil {
		return nil
	}

	body := comment.GetBody()
	if strings.TrimSpace(body) == commentbody.PlaceholderBody {
		body = commentbody.DefaultBody(r.labelOptions(pr), nil)
	}

	if infos != nil {
		body = commentbody.UpdateInfos(body, infos)
	}

	if notes != nil {
		body = commentbody.UpdateCommitNotes(body, *notes)
	}

	if !commentbody.Changed(comment.GetBody(), body) {
		return nil
	}

	err = r.retryer.Run(ctx, func(ctx context.Context) error {
		return r.clt.EditIssueComment(ctx, r.Owner, r.Name, comment.GetID(), body)
	}, append([]zap.Field{logfields.Event("github_edit_issue_comment")}, pr.LogFields...))
	if err != nil {
		return fmt.Errorf("editing options comment failed: %w", err)
	}

	r.logger.Info(
		"options comment infos updated",
		append([]zap.Field{logfields.Event("options_comment_infos_updated")}, pr.LogFields...)...,
	)

	return nil
}
