// Package labels maps pull request labels to the review state of reviewer
// groups and computes the label changes required for state transitions.
package labels

import (
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

// Label is a GitHub label. Labels are compared by ID, names can be
// decorated (emojis, localisation) and are only used for API calls.
type Label struct {
	ID   int64
	Name string
}

// Definition is the configuration of a label, referenced by a key.
type Definition struct {
	Name        string
	Color       string
	Description string
}

// Resolve maps label keys to the labels that exist in a repository.
// Keys whose label does not exist in the repository are omitted.
func Resolve(defs map[string]Definition, repoLabels []Label) map[string]Label {
	byName := make(map[string]Label, len(repoLabels))
	for _, l := range repoLabels {
		byName[l.Name] = l
	}

	result := make(map[string]Label, len(defs))
	logger := zap.L().Named(loggerName)

	for key, def := range defs {
		l, exists := byName[def.Name]
		if !exists {
			logger.Debug(
				"configured label does not exist in repository, ignoring it",
				logfields.Event("label_unresolved"),
				zap.String("label_key", key),
				logfields.Label(def.Name),
			)
			continue
		}

		result[key] = l
	}

	return result
}

// Set is an immutable set of labels indexed by ID.
type Set struct {
	byID  map[int64]Label
	order []Label
}

func NewSet(labels []Label) *Set {
	s := Set{byID: make(map[int64]Label, len(labels))}

	for _, l := range labels {
		if _, exists := s.byID[l.ID]; exists {
			continue
		}

		s.byID[l.ID] = l
		s.order = append(s.order, l)
	}

	return &s
}

func (s *Set) Has(l Label) bool {
	_, exists := s.byID[l.ID]
	return exists
}

func (s *Set) HasID(id int64) bool {
	_, exists := s.byID[id]
	return exists
}

// Labels returns the labels in their original order.
func (s *Set) Labels() []Label {
	return append([]Label(nil), s.order...)
}

func (s *Set) Len() int {
	return len(s.order)
}

// Names returns the label names in their original order.
func Names(labels []Label) []string {
	result := make([]string, 0, len(labels))
	for _, l := range labels {
		result = append(result, l.Name)
	}

	return result
}
