package labels

import (
	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/set"
)

const loggerName = "labels"

// ReplaceLabelsThreshold is the number of labels to remove from which all
// labels of a pull request are replaced in one API call instead of removing
// them one by one.
const ReplaceLabelsThreshold = 4

// ReviewKey identifies the review state a label represents for a group.
type ReviewKey string

const (
	NeedsReview      ReviewKey = "needsReview"
	Requested        ReviewKey = "requested"
	ChangesRequested ReviewKey = "changesRequested"
	Approved         ReviewKey = "approved"
)

// ReviewKeys are all review keys in canonical order.
var ReviewKeys = []ReviewKey{NeedsReview, Requested, ChangesRequested, Approved}

// GroupLabels maps the review states of a reviewer group to label keys.
// A missing entry means the state is not tracked for the group.
type GroupLabels map[ReviewKey]string

// Team is a set of logins whose pull requests always get the team labels.
type Team struct {
	Name      string
	Logins    []string
	LabelKeys []string
}

// Machine evaluates and changes the review labels of pull requests of one
// repository.
type Machine struct {
	labels      map[string]Label
	groupLabels map[string]GroupLabels
	groupOrder  []string
	teams       []*Team
	protected   set.Set[int64]

	replaceThreshold int
	logger           *zap.Logger
}

type Option func(*Machine)

// WithReplaceThreshold overwrites ReplaceLabelsThreshold.
func WithReplaceThreshold(n int) Option {
	return func(m *Machine) {
		m.replaceThreshold = n
	}
}

// WithProtectedLabels marks the labels with the given keys as protected in
// addition to the review labels.
func WithProtectedLabels(keys ...string) Option {
	return func(m *Machine) {
		for _, key := range keys {
			if l, ok := m.labels[key]; ok {
				m.protected.Add(l.ID)
			}
		}
	}
}

// NewMachine creates a Machine.
// resolved contains the labels that exist in the repository by key,
// groupOrder defines the order in which groups are evaluated.
func NewMachine(resolved map[string]Label, groupOrder []string, groupLabels map[string]GroupLabels, teams []*Team, opts ...Option) *Machine {
	m := Machine{
		labels:           resolved,
		groupLabels:      groupLabels,
		groupOrder:       groupOrder,
		teams:            teams,
		protected:        set.New[int64](),
		replaceThreshold: ReplaceLabelsThreshold,
		logger:           zap.L().Named(loggerName),
	}

	for _, gl := range groupLabels {
		for _, key := range gl {
			if l, ok := resolved[key]; ok {
				m.protected.Add(l.ID)
			}
		}
	}

	for _, opt := range opts {
		opt(&m)
	}

	return &m
}

// Label returns the repository label for a label key.
func (m *Machine) Label(key string) (Label, bool) {
	l, ok := m.labels[key]
	return l, ok
}

// HasKey returns true if the label with the given key is in s.
func (m *Machine) HasKey(s *Set, key string) bool {
	l, ok := m.labels[key]
	if !ok {
		return false
	}

	return s.Has(l)
}

// ReviewLabel resolves the label of a review state of a group.
func (m *Machine) ReviewLabel(group string, key ReviewKey) (Label, bool) {
	gl, ok := m.groupLabels[group]
	if !ok {
		return Label{}, false
	}

	labelKey, ok := gl[key]
	if !ok || labelKey == "" {
		return Label{}, false
	}

	return m.Label(labelKey)
}

// IsProtected returns true if the label represents a review state.
// Protected labels are managed exclusively by reviewflow.
func (m *Machine) IsProtected(labelID int64) bool {
	return m.protected.Contains(labelID)
}

// Groups returns the groups in evaluation order.
func (m *Machine) Groups() []string {
	return m.groupOrder
}

func (m *Machine) hasReviewLabel(s *Set, group string, key ReviewKey) bool {
	l, ok := m.ReviewLabel(group, key)
	if !ok {
		return false
	}

	return s.Has(l)
}

func (m *Machine) HasNeedsReview(s *Set, group string) bool {
	return m.hasReviewLabel(s, group, NeedsReview)
}

func (m *Machine) HasRequestedReview(s *Set, group string) bool {
	return m.hasReviewLabel(s, group, Requested)
}

func (m *Machine) HasChangesRequestedReview(s *Set, group string) bool {
	return m.hasReviewLabel(s, group, ChangesRequested)
}

func (m *Machine) HasApprovedReview(s *Set, group string) bool {
	return m.hasReviewLabel(s, group, Approved)
}

// GroupsWith returns the groups, in evaluation order, for that s contains
// the review label of key.
func (m *Machine) GroupsWith(s *Set, key ReviewKey) []string {
	var result []string

	for _, g := range m.groupOrder {
		if m.hasReviewLabel(s, g, key) {
			result = append(result, g)
		}
	}

	return result
}

// AnyPendingReview returns true if a needs-review or review-requested label
// of any group is in s.
func (m *Machine) AnyPendingReview(s *Set) bool {
	return len(m.GroupsWith(s, NeedsReview)) > 0 || len(m.GroupsWith(s, Requested)) > 0
}

// TeamLabels returns the labels all pull requests of author get.
func (m *Machine) TeamLabels(author string) []Label {
	var result []Label
	seen := set.New[int64]()

	for _, team := range m.teams {
		if !set.From(team.Logins).Contains(author) {
			continue
		}

		for _, key := range team.LabelKeys {
			l, ok := m.labels[key]
			if !ok || seen.Contains(l.ID) {
				continue
			}

			seen.Add(l.ID)
			result = append(result, l)
		}
	}

	return result
}
