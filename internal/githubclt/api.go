package githubclt

import (
	"context"

	"github.com/google/go-github/v59/github"
)

//go:generate mockgen -source=api.go -destination=mocks/api.go -package=mocks

// API contains all GitHub operations reviewflow uses.
// It is implemented by Client and DryClient.
type API interface {
	PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	ListReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error)
	CIStatus(ctx context.Context, owner, repo string, prNumber int) (*CIStatus, error)
	UpdatePullRequest(ctx context.Context, owner, repo string, number int, title, body *string) error
	MergePullRequest(ctx context.Context, owner, repo string, number int, opts *MergeOptions) error
	MergeBranch(ctx context.Context, owner, repo, base, head string) (bool, error)
	DeleteBranch(ctx context.Context, owner, repo, branch string) error
	ListIssueComments(ctx context.Context, owner, repo string, issueOrPRNr int) ([]*github.IssueComment, error)
	ListPullRequestCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) (*github.IssueComment, error)
	EditIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error
	ReplaceLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	ListRepositoryLabels(ctx context.Context, owner, repo string) ([]*github.Label, error)
	CreateStatus(ctx context.Context, owner, repo, sha, state, statusContext, description string) error
	ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) PRIterator
}

var (
	_ API = &Client{}
	_ API = &DryClient{}
)
