package githubclt

import (
	"context"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

// DryClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All all other operations are forwarded to a wrapped API.
type DryClient struct {
	clt    API
	logger *zap.Logger
}

func NewDryClient(clt API, logger *zap.Logger) *DryClient {
	return &DryClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryClient) simulated(msg, event, owner, repo string, fields ...zap.Field) {
	c.logger.Info(
		msg,
		append([]zap.Field{
			logfields.Event(event),
			logfields.RepositoryOwner(owner),
			logfields.Repository(repo),
		}, fields...)...,
	)
}

func (c *DryClient) PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	return c.clt.PullRequest(ctx, owner, repo, number)
}

func (c *DryClient) ListReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error) {
	return c.clt.ListReviews(ctx, owner, repo, number)
}

func (c *DryClient) CIStatus(ctx context.Context, owner, repo string, prNumber int) (*CIStatus, error) {
	return c.clt.CIStatus(ctx, owner, repo, prNumber)
}

func (c *DryClient) UpdatePullRequest(_ context.Context, owner, repo string, number int, _, _ *string) error {
	c.simulated("simulated updating pull request", "dry_update_pull_request", owner, repo, logfields.PullRequest(number))
	return nil
}

func (c *DryClient) MergePullRequest(_ context.Context, owner, repo string, number int, opts *MergeOptions) error {
	c.simulated(
		"simulated merging pull request", "dry_merge_pull_request", owner, repo,
		logfields.PullRequest(number),
		logfields.MergeMethod(opts.Method),
		zap.String("commit_title", opts.CommitTitle),
	)
	return nil
}

func (c *DryClient) MergeBranch(_ context.Context, owner, repo, base, head string) (bool, error) {
	c.simulated(
		"simulated merging branches, returning branch is uptodate", "dry_merge_branch", owner, repo,
		logfields.BaseBranch(base),
		logfields.Branch(head),
	)
	return false, nil
}

func (c *DryClient) DeleteBranch(_ context.Context, owner, repo, branch string) error {
	c.simulated("simulated deleting branch", "dry_delete_branch", owner, repo, logfields.Branch(branch))
	return nil
}

func (c *DryClient) ListIssueComments(ctx context.Context, owner, repo string, issueOrPRNr int) ([]*github.IssueComment, error) {
	return c.clt.ListIssueComments(ctx, owner, repo, issueOrPRNr)
}

func (c *DryClient) CreateIssueComment(_ context.Context, owner, repo string, issueOrPRNr int, comment string) (*github.IssueComment, error) {
	c.simulated("simulated creating of github issue comment, no comment created on github", "dry_create_comment", owner, repo, logfields.PullRequest(issueOrPRNr))
	return &github.IssueComment{Body: &comment}, nil
}

func (c *DryClient) EditIssueComment(_ context.Context, owner, repo string, commentID int64, _ string) error {
	c.simulated("simulated editing comment", "dry_edit_comment", owner, repo, zap.Int64("github.comment_id", commentID))
	return nil
}

func (c *DryClient) AddLabels(_ context.Context, owner, repo string, number int, labels []string) error {
	c.simulated("simulated adding labels", "dry_add_labels", owner, repo, logfields.PullRequest(number), zap.Strings("labels", labels))
	return nil
}

func (c *DryClient) RemoveLabel(_ context.Context, owner, repo string, number int, label string) error {
	c.simulated("simulated removing label", "dry_remove_label", owner, repo, logfields.PullRequest(number), logfields.Label(label))
	return nil
}

func (c *DryClient) ReplaceLabels(_ context.Context, owner, repo string, number int, labels []string) error {
	c.simulated("simulated replacing labels", "dry_replace_labels", owner, repo, logfields.PullRequest(number), zap.Strings("labels", labels))
	return nil
}

func (c *DryClient) ListRepositoryLabels(ctx context.Context, owner, repo string) ([]*github.Label, error) {
	return c.clt.ListRepositoryLabels(ctx, owner, repo)
}

func (c *DryClient) ListPullRequestCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error) {
	return c.clt.ListPullRequestCommits(ctx, owner, repo, number)
}

func (c *DryClient) CreateStatus(_ context.Context, owner, repo, sha, state, _, description string) error {
	c.simulated(
		"simulated creating commit status", "dry_create_status", owner, repo,
		logfields.Commit(sha),
		zap.String("status_state", state),
		zap.String("status_description", description),
	)
	return nil
}

func (c *DryClient) ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) PRIterator {
	return c.clt.ListPullRequests(ctx, owner, repo, state, sort, sortDirection)
}
