package mergequeue

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

// RepositoryID identifies a GitHub repository.
type RepositoryID struct {
	Owner      string
	Repository string
}

func (r RepositoryID) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Repository)
}

// Entry is a pull request in the merge slot or the overflow queue.
// Entries are identified by their PRNumber.
type Entry struct {
	PRID     int64
	PRNumber int
	Branch   string

	LogFields []zap.Field
}

func NewEntry(prID int64, prNumber int, branch string) (*Entry, error) {
	if prNumber <= 0 {
		return nil, fmt.Errorf("number is %d, must be >0", prNumber)
	}

	if prID <= 0 {
		return nil, fmt.Errorf("id is %d, must be >0", prID)
	}

	if branch == "" {
		return nil, errors.New("branch is empty")
	}

	return &Entry{
		PRID:     prID,
		PRNumber: prNumber,
		Branch:   branch,
		LogFields: []zap.Field{
			logfields.PullRequest(prNumber),
			logfields.PullRequestID(prID),
			logfields.Branch(branch),
		},
	}, nil
}

func (e *Entry) String() string {
	return fmt.Sprintf("#%d (%s)", e.PRNumber, e.Branch)
}
