// Package pullrequest provides a point-in-time view of a GitHub pull
// request.
package pullrequest

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/labels"
	"github.com/simplesurance/reviewflow/internal/logfields"
)

// Mergeable is the tri-state mergeable flag reported by GitHub.
// It is unknown while GitHub computes the mergeability in the background.
type Mergeable int

const (
	MergeableUnknown Mergeable = iota
	MergeableTrue
	MergeableFalse
)

func (m Mergeable) String() string {
	switch m {
	case MergeableTrue:
		return "true"
	case MergeableFalse:
		return "false"
	default:
		return "unknown"
	}
}

// MergeableState is the mergeable_state value of a pull request.
type MergeableState string

const (
	MergeableStateClean    MergeableState = "clean"
	MergeableStateHasHooks MergeableState = "has_hooks"
	MergeableStateUnstable MergeableState = "unstable"
	MergeableStateBlocked  MergeableState = "blocked"
	MergeableStateDirty    MergeableState = "dirty"
	MergeableStateBehind   MergeableState = "behind"
	MergeableStateDraft    MergeableState = "draft"
	MergeableStateUnknown  MergeableState = "unknown"
)

// ParseMergeableState converts a mergeable_state value.
// An empty value is MergeableStateUnknown, unrecognized values are kept
// unchanged.
func ParseMergeableState(s string) MergeableState {
	if s == "" {
		return MergeableStateUnknown
	}

	return MergeableState(s)
}

const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Snapshot is the state of a pull request at the time it was fetched.
// A Snapshot is owned by a single handler invocation and must not be
// shared between goroutines.
type Snapshot struct {
	ID     int64
	Number int

	Owner      string
	Repository string

	HeadRef string
	HeadSHA string
	BaseRef string

	Title    string
	Body     string
	Author   string
	AuthorID int64
	State    string
	Merged   bool
	Draft    bool

	// AuthorIsBot is true if the pull request was opened by a GitHub App
	// or bot account.
	AuthorIsBot bool

	Mergeable      Mergeable
	MergeableState MergeableState

	Assignees          []string
	RequestedReviewers []string
	Labels             []labels.Label

	// IsAutomation is true when the pull request was opened by a
	// dependency update bot.
	IsAutomation bool

	LogFields []zap.Field
}

// FromGithub converts a pull request returned by the GitHub API.
// IsAutomation is not set, it is evaluated by an AutomationMatcher.
func FromGithub(owner, repo string, pr *github.PullRequest) (*Snapshot, error) {
	if pr == nil {
		return nil, errors.New("pull request is nil")
	}

	if pr.GetNumber() <= 0 {
		return nil, fmt.Errorf("pull request number is %d, must be >0", pr.GetNumber())
	}

	s := Snapshot{
		ID:             pr.GetID(),
		Number:         pr.GetNumber(),
		Owner:          owner,
		Repository:     repo,
		HeadRef:        pr.GetHead().GetRef(),
		HeadSHA:        pr.GetHead().GetSHA(),
		BaseRef:        pr.GetBase().GetRef(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		Author:         pr.GetUser().GetLogin(),
		AuthorID:       pr.GetUser().GetID(),
		AuthorIsBot:    pr.GetUser().GetType() == "Bot",
		State:          pr.GetState(),
		Merged:         pr.GetMerged(),
		Draft:          pr.GetDraft(),
		MergeableState: ParseMergeableState(pr.GetMergeableState()),
	}

	if pr.Mergeable != nil {
		if *pr.Mergeable {
			s.Mergeable = MergeableTrue
		} else {
			s.Mergeable = MergeableFalse
		}
	}

	for _, u := range pr.Assignees {
		s.Assignees = append(s.Assignees, u.GetLogin())
	}

	for _, u := range pr.RequestedReviewers {
		s.RequestedReviewers = append(s.RequestedReviewers, u.GetLogin())
	}

	for _, l := range pr.Labels {
		s.Labels = append(s.Labels, labels.Label{ID: l.GetID(), Name: l.GetName()})
	}

	s.LogFields = []zap.Field{
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(s.Number),
		logfields.Branch(s.HeadRef),
		logfields.BaseBranch(s.BaseRef),
	}

	return &s, nil
}

func (s *Snapshot) IsOpen() bool {
	return s.State == StateOpen
}

// LabelSet returns the labels of the pull request as set.
func (s *Snapshot) LabelSet() *labels.Set {
	return labels.NewSet(s.Labels)
}

// HasRequestedReviewers returns true if reviews of users are pending.
func (s *Snapshot) HasRequestedReviewers() bool {
	return len(s.RequestedReviewers) > 0
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("%s/%s#%d", s.Owner, s.Repository, s.Number)
}
