package reviewflow

import (
	"context"
	"fmt"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/commentbody"
	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/pullrequest"
)

// labelOptions returns the account default options, overridden by the
// option labels of pr whose label exists in the repository.
func (r *RepoContext) labelOptions(pr *pullrequest.Snapshot) commentbody.Options {
	opts := r.Config.DefaultOptions()
	set := pr.LabelSet()

	for key, labelKey := range r.optionLabelKeys {
		if _, exists := r.Labels.Label(labelKey); !exists {
			continue
		}

		opts[key] = r.Labels.HasKey(set, labelKey)
	}

	return opts
}

// optionsComment returns the options comment of pr, nil if it has none.
func (r *RepoContext) optionsComment(ctx context.Context, pr *pullrequest.Snapshot) (*github.IssueComment, error) {
	var comments []*github.IssueComment

	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		comments, err = r.clt.ListIssueComments(ctx, r.Owner, r.Name, pr.Number)
		return err
	}, append([]zap.Field{logfields.Event("github_list_issue_comments")}, pr.LogFields...))
	if err != nil {
		return nil, fmt.Errorf("listing comments failed: %w", err)
	}

	for _, c := range comments {
		if commentbody.IsOptionsComment(c.GetBody()) {
			return c, nil
		}
	}

	return nil, nil
}

// ensureOptionsComment returns the options of pr.
// If pr has no options comment, one is created from the label options.
func (r *RepoContext) ensureOptionsComment(ctx context.Context, pr *pullrequest.Snapshot) (commentbody.Options, error) {
	defaults := r.labelOptions(pr)

	comment, err := r.optionsComment(ctx, pr)
	if err != nil {
		return nil, err
	}

	if comment != nil {
		return commentbody.ParseOptions(comment.GetBody(), defaults), nil
	}

	body := commentbody.DefaultBody(defaults, nil)

	err = r.retryer.Run(ctx, func(ctx context.Context) error {
		_, err := r.clt.CreateIssueComment(ctx, r.Owner, r.Name, pr.Number, body)
		return err
	}, append([]zap.Field{logfields.Event("github_create_issue_comment")}, pr.LogFields...))
	if err != nil {
		return nil, fmt.Errorf("creating options comment failed: %w", err)
	}

	r.logger.Info(
		"options comment created",
		append([]zap.Field{
			logfields.Event("options_comment_created"),
			zap.Stringer("options", defaults),
		}, pr.LogFields...)...,
	)

	return defaults, nil
}

// updateOptionsComment applies update to the options comment of pr.
// The comment is only edited if its content changes.
func (r *RepoContext) updateOptionsComment(ctx context.Context, pr *pullrequest.Snapshot, update commentbody.Options) error {
	comment, err := r.optionsComment(ctx, pr)
	if err != nil {
		return err
	}

	if comment == nil {
		_, err := r.ensureOptionsComment(ctx, pr)
		return err
	}

	opts, body := commentbody.UpdateOptions(comment.GetBody(), r.labelOptions(pr), update)
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
		"options comment updated",
		append([]zap.Field{
			logfields.Event("options_comment_updated"),
			zap.Stringer("options", opts),
		}, pr.LogFields...)...,
	)

	return nil
}

// syncOptionLabels adds and removes the option labels of pr to match
// opts. pr.Labels is updated.
func (r *RepoContext) syncOptionLabels(ctx context.Context, pr *pullrequest.Snapshot, opts commentbody.Options) error {
	for _, key := range commentbody.OptionKeys {
		labelKey, exists := r.optionLabelKeys[key]
		if !exists {
			continue
		}

		l, exists := r.Labels.Label(labelKey)
		if !exists {
			continue
		}

		has := pr.LabelSet().Has(l)
		want := opts[key]

		switch {
		case want && !has:
			err := r.retryer.Run(ctx, func(ctx context.Context) error {
				return r.clt.AddLabels(ctx, r.Owner, r.Name, pr.Number, []string{l.Name})
			}, append([]zap.Field{logfields.Event("github_add_labels"), logfields.Label(l.Name)}, pr.LogFields...))
			if err != nil {
				return fmt.Errorf("adding option label %q failed: %w", l.Name, err)
			}

			pr.Labels = append(pr.Labels, l)

		case !want && has:
			err := r.retryer.Run(ctx, func(ctx context.Context) error {
				return r.clt.RemoveLabel(ctx, r.Owner, r.Name, pr.Number, l.Name)
			}, append([]zap.Field{logfields.Event("github_remove_label"), logfields.Label(l.Name)}, pr.LogFields...))
			if err != nil {
				return fmt.Errorf("removing option label %q failed: %w", l.Name, err)
			}

			pr.Labels = withoutLabel(pr.Labels, l.ID)
		}
	}

	return nil
}

// optionKeyOfLabel returns the option that is represented by the label
// with the given ID.
func (r *RepoContext) optionKeyOfLabel(labelID int64) (commentbody.OptionKey, bool) {
	for key, labelKey := range r.optionLabelKeys {
		l, exists := r.Labels.Label(labelKey)
		if exists && l.ID == labelID {
			return key, true
		}
	}

	return "", false
}
