package githubclt

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shurcooL/githubv4"
)

// CIState abstracts the multiple result values of GitHub check runs and
// commit statuses into a single value.
type CIState string

const (
	CIStateSuccess CIState = "SUCCESS"
	CIStatePending CIState = "PENDING"
	CIStateFailure CIState = "FAILURE"
)

// CIJob is the result of a single check run or commit status.
type CIJob struct {
	Name     string
	State    CIState
	Required bool
}

// CIStatus is the combined CI result of the head commit of a pull request.
type CIStatus struct {
	// State is the GitHub status check rollup state.
	State  CIState
	Jobs   []*CIJob
	Commit string
}

// Failed returns the names of all failed jobs, required or not.
func (s *CIStatus) Failed() []string {
	var result []string

	for _, job := range s.Jobs {
		if job.State == CIStateFailure {
			result = append(result, job.Name)
		}
	}

	return result
}

// HasFailures returns true if a check run or commit status failed.
func (s *CIStatus) HasFailures() bool {
	return len(s.Failed()) > 0
}

// CIStatus returns the [status check rollup] of the head commit of a pull
// request. Required jobs that did not report a result yet are returned as
// pending.
//
// [status check rollup]: https://docs.github.com/en/graphql/reference/objects#statuscheckrollup
func (clt *Client) CIStatus(ctx context.Context, owner, repo string, prNumber int) (*CIStatus, error) {
	res, err := clt.queryStatusRollup(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	jobs, err := res.jobs()
	if err != nil {
		return nil, err
	}

	return &CIStatus{
		State:  rollupState(res.state),
		Jobs:   jobs,
		Commit: res.commit,
	}, nil
}

func rollupState(state githubv4.StatusState) CIState {
	switch state {
	case githubv4.StatusStateSuccess:
		return CIStateSuccess
	case githubv4.StatusStateError, githubv4.StatusStateFailure:
		return CIStateFailure
	default:
		return CIStatePending
	}
}

func checkRunState(status githubv4.CheckStatusState, conclusion githubv4.CheckConclusionState) (CIState, error) {
	if status != githubv4.CheckStatusStateCompleted {
		switch status {
		case githubv4.CheckStatusStateInProgress,
			githubv4.CheckStatusStatePending,
			githubv4.CheckStatusStateQueued,
			githubv4.CheckStatusStateRequested,
			githubv4.CheckStatusStateWaiting:
			return CIStatePending, nil
		}

		return "", fmt.Errorf("unsupported check run status: %q", status)
	}

	switch conclusion {
	case githubv4.CheckConclusionStateNeutral,
		githubv4.CheckConclusionStateSkipped,
		githubv4.CheckConclusionStateSuccess:
		return CIStateSuccess, nil

	case githubv4.CheckConclusionStateActionRequired:
		return CIStatePending, nil

	case githubv4.CheckConclusionStateCancelled,
		githubv4.CheckConclusionStateFailure,
		githubv4.CheckConclusionStateStale,
		githubv4.CheckConclusionStateStartupFailure,
		githubv4.CheckConclusionStateTimedOut:
		return CIStateFailure, nil
	}

	return "", fmt.Errorf("unsupported check run conclusion: %q", conclusion)
}

func commitStatusState(state githubv4.StatusState) (CIState, error) {
	switch state {
	case githubv4.StatusStateSuccess:
		return CIStateSuccess, nil
	case githubv4.StatusStateExpected, githubv4.StatusStatePending:
		return CIStatePending, nil
	case githubv4.StatusStateError, githubv4.StatusStateFailure:
		return CIStateFailure, nil
	}

	return "", fmt.Errorf("unsupported commit status state: %q", state)
}

type checkRunNode struct {
	Name       string
	Conclusion githubv4.CheckConclusionState
	Status     githubv4.CheckStatusState
}

type statusContextNode struct {
	Context string
	State   githubv4.StatusState
}

type statusRollup struct {
	commit     string
	state      githubv4.StatusState
	required   []string
	checkRuns  []checkRunNode
	statusCtxs []statusContextNode
}

// jobs merges check runs and commit statuses by name.
// Results are sorted by name.
func (r *statusRollup) jobs() ([]*CIJob, error) {
	byName := make(map[string]*CIJob, len(r.required)+len(r.checkRuns)+len(r.statusCtxs))

	for _, name := range r.required {
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("required status check context %q is defined multiple times", name)
		}

		byName[name] = &CIJob{Name: name, State: CIStatePending, Required: true}
	}

	set := func(name string, state CIState) {
		if job, exists := byName[name]; exists {
			job.State = state
			return
		}

		byName[name] = &CIJob{Name: name, State: state}
	}

	for _, run := range r.checkRuns {
		state, err := checkRunState(run.Status, run.Conclusion)
		if err != nil {
			return nil, fmt.Errorf("check run %q: %w", run.Name, err)
		}

		set(run.Name, state)
	}

	for _, sc := range r.statusCtxs {
		state, err := commitStatusState(sc.State)
		if err != nil {
			return nil, fmt.Errorf("status context %q: %w", sc.Context, err)
		}

		set(sc.Context, state)
	}

	result := make([]*CIJob, 0, len(byName))
	for _, job := range byName {
		result = append(result, job)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

type statusRollupQuery struct {
	Repository struct {
		PullRequest struct {
			BaseRef struct {
				BranchProtectionRule struct {
					RequiredStatusCheckContexts []string
				}
			}
			Commits struct {
				Nodes []struct {
					Commit struct {
						Oid               string
						StatusCheckRollup struct {
							State    githubv4.StatusState
							Contexts struct {
								PageInfo struct {
									EndCursor   string
									HasNextPage bool
								}
								Nodes []struct {
									CheckRun      checkRunNode      `graphql:"... on CheckRun"`
									StatusContext statusContextNode `graphql:"... on StatusContext"`
								}
							} `graphql:"contexts(first: $contextsFirst, after: $contextsAfter)"`
						}
					}
				}
			} `graphql:"commits(last: 1)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// maxHeadChanges is the number of times the paging through the status
// contexts is restarted because the head commit changed.
const maxHeadChanges = 3

func (clt *Client) queryStatusRollup(ctx context.Context, owner, repo string, prNumber int) (*statusRollup, error) {
	vars := map[string]any{
		"owner":         githubv4.String(owner),
		"name":          githubv4.String(repo),
		"number":        githubv4.Int(prNumber),
		"contextsFirst": githubv4.Int(100),
		"contextsAfter": (*githubv4.String)(nil),
	}

	var result statusRollup
	headChanges := 0

	for {
		var q statusRollupQuery

		if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
			return nil, err
		}

		if len(q.Repository.PullRequest.Commits.Nodes) == 0 {
			return nil, errors.New("pull request has no commits")
		}

		commit := q.Repository.PullRequest.Commits.Nodes[0].Commit

		if result.commit != "" && result.commit != commit.Oid {
			headChanges++
			if headChanges > maxHeadChanges {
				return nil, fmt.Errorf("head commit changed %d times while querying status contexts", headChanges)
			}

			result = statusRollup{}
			vars["contextsAfter"] = (*githubv4.String)(nil)

			continue
		}

		result.commit = commit.Oid

		for _, node := range commit.StatusCheckRollup.Contexts.Nodes {
			if node.CheckRun.Name != "" {
				result.checkRuns = append(result.checkRuns, node.CheckRun)
				continue
			}

			if node.StatusContext.Context != "" {
				result.statusCtxs = append(result.statusCtxs, node.StatusContext)
			}
		}

		pageInfo := commit.StatusCheckRollup.Contexts.PageInfo
		if !pageInfo.HasNextPage {
			result.state = commit.StatusCheckRollup.State
			result.required = q.Repository.PullRequest.BaseRef.BranchProtectionRule.RequiredStatusCheckContexts

			return &result, nil
		}

		if pageInfo.EndCursor == "" {
			return nil, errors.New("retrieving all status contexts failed, HasNextPage is true but EndCursor is empty")
		}

		vars["contextsAfter"] = githubv4.String(pageInfo.EndCursor)
	}
}
