// Package auditlog stores the decisions of the merge queue for later
// inspection. Storing records is best effort, a failing store must never
// influence merge decisions.
package auditlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Action is what was done as result of a decision.
type Action string

const (
	ActionMerge        Action = "merge"
	ActionRemove       Action = "remove"
	ActionReschedule   Action = "reschedule"
	ActionWait         Action = "wait"
	ActionQueue        Action = "queue"
	ActionUpdateBranch Action = "update branch"
)

// Record is a single merge decision.
type Record struct {
	ID         uuid.UUID
	Account    string
	Repository string
	PRNumber   int
	// Type describes the observed state that lead to the decision, e.g.
	// "behind mergeable_state".
	Type      string
	Action    Action
	Timestamp time.Time
}

var ErrInvalidRecord = errors.New("invalid record")

// NewRecord creates a record with a new random ID and the current time.
func NewRecord(account, repository string, prNumber int, typ string, action Action) *Record {
	return &Record{
		ID:         uuid.New(),
		Account:    account,
		Repository: repository,
		PRNumber:   prNumber,
		Type:       typ,
		Action:     action,
		Timestamp:  time.Now(),
	}
}

func (r *Record) validate() error {
	if r == nil {
		return ErrInvalidRecord
	}

	if r.Repository == "" || r.PRNumber <= 0 || r.Action == "" {
		return ErrInvalidRecord
	}

	return nil
}

// Store persists records.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	// List returns the newest records of a repository, newest first.
	// If repository is empty records of all repositories are returned.
	List(ctx context.Context, repository string, limit int) ([]*Record, error)
}
