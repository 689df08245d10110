// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/reviewflow/internal/flowerr"
	"github.com/simplesurance/reviewflow/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

const perPage = 100

var (
	ErrPullRequestIsClosed = errors.New("pull request is closed")
	// ErrMergeConflict is returned when merging two branches failed
	// because of a conflict.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrNotMergeable is returned when GitHub rejected merging a pull
	// request, e.g. because required checks did not pass or the head
	// branch changed.
	ErrNotMergeable = errors.New("pull request is not mergeable")
)

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return a flowerr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// PullRequest fetches a pull request.
func (clt *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	return pr, nil
}

// ListReviews returns all reviews of a pull request in chronological order.
func (clt *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error) {
	var result []*github.PullRequestReview

	opts := github.ListOptions{PerPage: perPage}
	for {
		reviews, resp, err := clt.restClt.PullRequests.ListReviews(ctx, owner, repo, number, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		result = append(result, reviews...)

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// UpdatePullRequest changes the title and body of a pull request.
// nil values are not changed.
func (clt *Client) UpdatePullRequest(ctx context.Context, owner, repo string, number int, title, body *string) error {
	if title == nil && body == nil {
		return nil
	}

	_, _, err := clt.restClt.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{
		Title: title,
		Body:  body,
	})

	return clt.wrapRetryableErrors(err)
}

// MergeOptions are the parameters of a pull request merge.
type MergeOptions struct {
	// Method is one of "merge", "squash", "rebase".
	Method        string
	CommitTitle   string
	CommitMessage string
	// SHA must match the head commit of the pull request if set.
	SHA string
}

// MergePullRequest merges a pull request.
// If GitHub refuses the merge ErrNotMergeable is returned.
func (clt *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, opts *MergeOptions) error {
	_, _, err := clt.restClt.PullRequests.Merge(ctx, owner, repo, number, opts.CommitMessage, &github.PullRequestOptions{
		CommitTitle: opts.CommitTitle,
		MergeMethod: opts.Method,
		SHA:         opts.SHA,
	})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil {
			switch respErr.Response.StatusCode {
			case http.StatusMethodNotAllowed, http.StatusConflict:
				return fmt.Errorf("%w: %s", ErrNotMergeable, respErr.Message)
			}
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// MergeBranch merges the branch head into the branch base.
// If base already contains all commits of head, false is returned.
// If the branches can not be merged because of a conflict, ErrMergeConflict
// is returned.
func (clt *Client) MergeBranch(ctx context.Context, owner, repo, base, head string) (merged bool, err error) {
	_, resp, err := clt.restClt.Repositories.Merge(ctx, owner, repo, &github.RepositoryMergeRequest{
		Base: &base,
		Head: &head,
	})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusConflict {
			return false, fmt.Errorf("%w: %s", ErrMergeConflict, respErr.Message)
		}

		return false, clt.wrapRetryableErrors(err)
	}

	// 204 is returned when base already contains head
	return resp.StatusCode != http.StatusNoContent, nil
}

// DeleteBranch deletes a branch.
// Deleting a branch that does not exist succeeds.
func (clt *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	_, err := clt.restClt.Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusUnprocessableEntity {
			clt.logger.Debug("branch does not exist, interpreting deletion as success",
				logfields.RepositoryOwner(owner),
				logfields.Repository(repo),
				logfields.Branch(branch),
				logfields.Event("github_delete_branch_not_found"),
			)

			return nil
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// ListIssueComments returns all comments of an issue or pull request.
func (clt *Client) ListIssueComments(ctx context.Context, owner, repo string, issueOrPRNr int) ([]*github.IssueComment, error) {
	var result []*github.IssueComment

	opts := github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		comments, resp, err := clt.restClt.Issues.ListComments(ctx, owner, repo, issueOrPRNr, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		result = append(result, comments...)

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// ListPullRequestCommits returns the commits of a pull request, oldest
// first.
func (clt *Client) ListPullRequestCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error) {
	var result []*github.RepositoryCommit

	opts := github.ListOptions{PerPage: perPage}
	for {
		commits, resp, err := clt.restClt.PullRequests.ListCommits(ctx, owner, repo, number, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		result = append(result, commits...)

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// CreateIssueComment creates a comment in a issue or pull request
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) (*github.IssueComment, error) {
	c, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	return c, nil
}

// EditIssueComment replaces the body of a comment.
func (clt *Client) EditIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	_, _, err := clt.restClt.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: &body})
	return clt.wrapRetryableErrors(err)
}

// AddLabels adds labels to Pull-Request or Issue.
func (clt *Client) AddLabels(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, labels []string) error {
	if len(labels) == 0 {
		return errors.New("provided label list is empty")
	}

	for _, l := range labels {
		if l == "" {
			return errors.New("provided label is empty")
		}
	}

	_, _, err := clt.restClt.Issues.AddLabelsToIssue(ctx, owner, repo, pullRequestOrIssueNumber, labels)
	return clt.wrapRetryableErrors(err)
}

// RemoveLabel removes a label from a Pull-Request or issue.
// If the issue or PR does not have the label, the operation succeeds.
func (clt *Client) RemoveLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	_, err := clt.restClt.Issues.RemoveLabelForIssue(
		ctx,
		owner,
		repo,
		pullRequestOrIssueNumber,
		label,
	)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound {
			clt.logger.Debug("removing label returned a not found response, interpreting it as success",
				logfields.RepositoryOwner(owner),
				logfields.Repository(repo),
				logfields.PullRequest(pullRequestOrIssueNumber),
				logfields.Label(label),
				logfields.Event("github_remove_label_returned_not_found"),
				zap.Error(err),
			)

			return nil
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// ReplaceLabels replaces all labels of a Pull-Request or issue.
func (clt *Client) ReplaceLabels(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, labels []string) error {
	if labels == nil {
		labels = []string{}
	}

	_, _, err := clt.restClt.Issues.ReplaceLabelsForIssue(ctx, owner, repo, pullRequestOrIssueNumber, labels)
	return clt.wrapRetryableErrors(err)
}

// ListRepositoryLabels returns all labels that exist in a repository.
func (clt *Client) ListRepositoryLabels(ctx context.Context, owner, repo string) ([]*github.Label, error) {
	var result []*github.Label

	opts := github.ListOptions{PerPage: perPage}
	for {
		labels, resp, err := clt.restClt.Issues.ListLabels(ctx, owner, repo, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		result = append(result, labels...)

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// CreateStatus creates a commit status.
// state is one of "error", "failure", "pending", "success".
func (clt *Client) CreateStatus(ctx context.Context, owner, repo, sha, state, statusContext, description string) error {
	_, _, err := clt.restClt.Repositories.CreateStatus(ctx, owner, repo, sha, &github.RepoStatus{
		State:       &state,
		Context:     &statusContext,
		Description: &description,
	})

	return clt.wrapRetryableErrors(err)
}

type PRIterator interface {
	Next() (*github.PullRequest, error)
}

type PRIter struct {
	clt *Client

	ctx   context.Context
	owner string
	repo  string

	filterState   string
	sortBy        string
	sortDirection string

	unseen []*github.PullRequest

	nextPage int
	finished bool
}

// Next returns the next pullRequest.
// When the last result was returned a nil PullRequest is returned.
func (it *PRIter) Next() (*github.PullRequest, error) {
	if len(it.unseen) > 0 {
		result := it.unseen[0]
		it.unseen = it.unseen[1:]

		return result, nil
	}

	if it.finished {
		return nil, nil
	}

	prs, resp, err := it.clt.restClt.PullRequests.List(it.ctx, it.owner, it.repo, &github.PullRequestListOptions{
		State:     it.filterState,
		Sort:      it.sortBy,
		Direction: it.sortDirection,
		ListOptions: github.ListOptions{
			Page:    it.nextPage,
			PerPage: perPage,
		},
	})
	if err != nil {
		return nil, it.clt.wrapRetryableErrors(err)
	}

	if resp.NextPage == 0 || len(prs) == 0 {
		it.finished = true
	} else {
		it.nextPage = resp.NextPage
	}

	it.unseen = prs

	return it.Next()
}

// ListPullRequests returns an iterator for receiving all pull requests.
// The parameters state, sort, sortDirection expect the same values then their pendants in the struct github.PullRequestListOptions.
func (clt *Client) ListPullRequests(ctx context.Context, owner, repo, state, sort, sortDirection string) PRIterator { // interface is returned to make the method mockable
	return &PRIter{
		clt:           clt,
		ctx:           ctx,
		owner:         owner,
		repo:          repo,
		sortBy:        sort,
		sortDirection: sortDirection,
		filterState:   state,
		nextPage:      1,
	}
}

func (clt *Client) wrapRetryableErrors(err error) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", rateLimitErr.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", rateLimitErr.Rate.Reset.Time),
		)

		return flowerr.NewRetryableError(err, rateLimitErr.Rate.Reset.Time)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		retryAfter := time.Minute
		if abuseErr.RetryAfter != nil {
			retryAfter = *abuseErr.RetryAfter
		}

		clt.logger.Info(
			"secondary rate limit exceeded",
			logfields.Event("github_api_secondary_rate_limit_exceeded"),
			zap.Duration("github_api_retry_after", retryAfter),
		)

		return flowerr.NewRetryableError(err, time.Now().Add(retryAfter))
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if respErr.Response.StatusCode >= 500 && respErr.Response.StatusCode < 600 {
			return flowerr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			logfields.Event("github_graphql_parsing_status_code_failed"),
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return flowerr.NewRetryableAnytimeError(err)
	}

	return err
}

// IsNotFound returns true if err is a 404 response of the REST API.
func IsNotFound(err error) bool {
	var respErr *github.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
}
