package reviewflow

import (
	"time"

	"github.com/simplesurance/reviewflow/internal/auditlog"
	"github.com/simplesurance/reviewflow/internal/mergequeue"
)

type httpQueueEntry struct {
	Number int    `json:"number"`
	Branch string `json:"branch"`
}

type httpRepositoryStatus struct {
	Repository         string            `json:"repository"`
	Locked             *httpQueueEntry   `json:"locked"`
	Queue              []*httpQueueEntry `json:"queue"`
	PendingReschedules int               `json:"pending_reschedules"`
}

// httpStatusData is the response of the status endpoint.
type httpStatusData struct {
	Repositories []*httpRepositoryStatus `json:"repositories"`
	// CreatedAt is the time when this datastructure was created.
	CreatedAt time.Time `json:"created_at"`
}

type httpAuditRecord struct {
	ID         string    `json:"id"`
	Account    string    `json:"account"`
	Repository string    `json:"repository"`
	PRNumber   int       `json:"pr_number"`
	Type       string    `json:"type"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}

func newHTTPQueueEntry(e *mergequeue.Entry) *httpQueueEntry {
	if e == nil {
		return nil
	}

	return &httpQueueEntry{Number: e.PRNumber, Branch: e.Branch}
}

func (r *Registry) httpStatusData() *httpStatusData {
	result := httpStatusData{
		Repositories: []*httpRepositoryStatus{},
		CreatedAt:    time.Now(),
	}

	for _, repo := range r.Repos() {
		status := httpRepositoryStatus{
			Repository:         repo.String(),
			Locked:             newHTTPQueueEntry(repo.Queue.Locked()),
			Queue:              []*httpQueueEntry{},
			PendingReschedules: repo.Queue.PendingReschedules(),
		}

		for _, e := range repo.Queue.Overflow() {
			status.Queue = append(status.Queue, newHTTPQueueEntry(e))
		}

		result.Repositories = append(result.Repositories, &status)
	}

	return &result
}

func newHTTPAuditRecords(recs []*auditlog.Record) []*httpAuditRecord {
	result := make([]*httpAuditRecord, 0, len(recs))

	for _, rec := range recs {
		result = append(result, &httpAuditRecord{
			ID:         rec.ID.String(),
			Account:    rec.Account,
			Repository: rec.Repository,
			PRNumber:   rec.PRNumber,
			Type:       rec.Type,
			Action:     string(rec.Action),
			Timestamp:  rec.Timestamp,
		})
	}

	return result
}
