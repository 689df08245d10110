package auditlog

import (
	"context"
	"fmt"
	"sync"
)

// DefMemoryCapacity is the default number of records a MemoryStore keeps.
const DefMemoryCapacity = 1000

// MemoryStore keeps the newest records in memory, older ones are
// discarded.
type MemoryStore struct {
	lock    sync.Mutex
	records []*Record
	// next is the index in records the next record is written to
	next int
	full bool
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefMemoryCapacity
	}

	return &MemoryStore{records: make([]*Record, capacity)}
}

func (s *MemoryStore) Append(_ context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return fmt.Errorf("%w: %+v", err, rec)
	}

	cpy := *rec

	s.lock.Lock()
	defer s.lock.Unlock()

	s.records[s.next] = &cpy
	s.next = (s.next + 1) % len(s.records)
	if s.next == 0 {
		s.full = true
	}

	return nil
}

func (s *MemoryStore) List(_ context.Context, repository string, limit int) ([]*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	n := s.next
	if s.full {
		n = len(s.records)
	}

	var result []*Record

	for i := 1; i <= n; i++ {
		if limit > 0 && len(result) >= limit {
			break
		}

		rec := s.records[(s.next-i+len(s.records))%len(s.records)]
		if repository != "" && rec.Repository != repository {
			continue
		}

		cpy := *rec
		result = append(result, &cpy)
	}

	return result, nil
}
