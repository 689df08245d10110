package labels

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
	"github.com/simplesurance/reviewflow/internal/set"
)

// DiffRequest describes a review state transition of a group.
type DiffRequest struct {
	Add    []ReviewKey
	Remove []ReviewKey
	// Author is the login of the pull request author, the labels of
	// the teams they belong to are added when missing.
	Author string
}

// Diff is the set of label changes for a pull request.
type Diff struct {
	ToAdd    []Label
	ToRemove []Label
	// Result is the label set after the diff was applied.
	Result []Label
	// ReplaceAll is true when all labels should be replaced by Result in
	// a single API call instead of adding and removing them one by one.
	ReplaceAll bool
}

func (d *Diff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// ComputeDiff computes the label changes to apply the transition req for
// group to a pull request with the labels current.
// Keys that can not be resolved to a repository label are skipped.
// Labels that are added by the diff are never removed by it.
func (m *Machine) ComputeDiff(current []Label, group string, req DiffRequest) *Diff {
	cur := NewSet(current)
	diff := Diff{}
	adding := set.New[int64]()

	add := func(l Label) {
		if cur.Has(l) || adding.Contains(l.ID) {
			return
		}

		adding.Add(l.ID)
		diff.ToAdd = append(diff.ToAdd, l)
	}

	for _, key := range req.Add {
		l, ok := m.ReviewLabel(group, key)
		if !ok {
			m.logger.Debug(
				"review label not configured, skipping it",
				logfields.Event("label_key_unresolved"),
				logfields.ReviewGroup(group),
				zap.String("review_key", string(key)),
			)
			continue
		}

		add(l)
	}

	for _, l := range m.TeamLabels(req.Author) {
		add(l)
	}

	removing := set.New[int64]()
	for _, key := range req.Remove {
		l, ok := m.ReviewLabel(group, key)
		if !ok || !cur.Has(l) || removing.Contains(l.ID) {
			continue
		}

		// a label that is added by the same diff wins
		if adding.Contains(l.ID) {
			continue
		}

		if m.isWantedByAdd(group, req.Add, l) {
			continue
		}

		removing.Add(l.ID)
		diff.ToRemove = append(diff.ToRemove, l)
	}

	for _, l := range current {
		if !removing.Contains(l.ID) {
			diff.Result = append(diff.Result, l)
		}
	}
	diff.Result = append(diff.Result, diff.ToAdd...)

	diff.ReplaceAll = len(diff.ToRemove) >= m.replaceThreshold

	return &diff
}

// isWantedByAdd returns true if l is the label of one of the add keys,
// this is the case when the add key is already present on the PR.
func (m *Machine) isWantedByAdd(group string, add []ReviewKey, l Label) bool {
	for _, key := range add {
		if al, ok := m.ReviewLabel(group, key); ok && al.ID == l.ID {
			return true
		}
	}

	return false
}

//go:generate mockgen -source=diff.go -destination=mocks/client.go -package=mocks

// Client is the subset of GitHub operations used to change labels.
type Client interface {
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error
	ReplaceLabels(ctx context.Context, owner, repo string, number int, labels []string) error
}

// Target identifies the pull request a diff is applied to.
type Target struct {
	Owner     string
	Repo      string
	Number    int
	LogFields []zap.Field
}

// Apply applies diff via clt.
// Failing to remove a single label is logged and ignored.
func (m *Machine) Apply(ctx context.Context, clt Client, target *Target, diff *Diff) error {
	if diff.IsEmpty() {
		return nil
	}

	logger := m.logger.With(target.LogFields...)

	if diff.ReplaceAll {
		if err := clt.ReplaceLabels(ctx, target.Owner, target.Repo, target.Number, Names(diff.Result)); err != nil {
			return fmt.Errorf("replacing labels failed: %w", err)
		}

		logger.Debug(
			"labels replaced",
			logfields.Event("labels_replaced"),
			zap.Strings("labels", Names(diff.Result)),
		)

		return nil
	}

	if len(diff.ToAdd) > 0 {
		if err := clt.AddLabels(ctx, target.Owner, target.Repo, target.Number, Names(diff.ToAdd)); err != nil {
			return fmt.Errorf("adding labels failed: %w", err)
		}

		logger.Debug(
			"labels added",
			logfields.Event("labels_added"),
			zap.Strings("labels", Names(diff.ToAdd)),
		)
	}

	for _, l := range diff.ToRemove {
		if err := clt.RemoveLabel(ctx, target.Owner, target.Repo, target.Number, l.Name); err != nil {
			logger.Warn(
				"removing label failed",
				logfields.Event("label_removal_failed"),
				logfields.Label(l.Name),
				zap.Error(err),
			)

			continue
		}

		logger.Debug(
			"label removed",
			logfields.Event("label_removed"),
			logfields.Label(l.Name),
		)
	}

	return nil
}
