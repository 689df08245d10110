// Package reviewgroup models the configured reviewer groups and the
// wait-for dependencies between them.
package reviewgroup

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrCyclicDependency = errors.New("cyclic wait-for dependency")
	ErrUnknownGroup     = errors.New("unknown review group")
	ErrDuplicateGroup   = errors.New("duplicate review group")
)

// Group is a named partition of reviewers.
type Group struct {
	Name    string
	Members []string
	// WaitFor lists the groups whose pending review requests delay the
	// completion of this group's review.
	WaitFor []string
}

// WaitOptions select the rules evaluated by Model.ShouldWait.
type WaitOptions struct {
	IncludeSameGroup    bool
	IncludeDependencies bool
}

// Model answers group membership and wait-for queries.
// It is immutable after creation and safe for concurrent use.
type Model struct {
	groups      map[string]*Group
	order       []string
	loginGroups map[string]string
}

// NewModel validates the groups and creates a Model.
// When a login is member of multiple groups, the first group wins.
func NewModel(groups []*Group) (*Model, error) {
	m := Model{
		groups:      make(map[string]*Group, len(groups)),
		loginGroups: map[string]string{},
	}

	for _, g := range groups {
		if g.Name == "" {
			return nil, errors.New("review group name is empty")
		}

		if _, exists := m.groups[g.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGroup, g.Name)
		}

		gCopy := Group{
			Name:    g.Name,
			Members: append([]string(nil), g.Members...),
			WaitFor: append([]string(nil), g.WaitFor...),
		}
		m.groups[g.Name] = &gCopy
		m.order = append(m.order, g.Name)

		for _, login := range g.Members {
			if _, exists := m.loginGroups[login]; !exists {
				m.loginGroups[login] = g.Name
			}
		}
	}

	for _, g := range m.groups {
		for _, dep := range g.WaitFor {
			if _, exists := m.groups[dep]; !exists {
				return nil, fmt.Errorf("group %q waits for %q: %w", g.Name, dep, ErrUnknownGroup)
			}
		}
	}

	if cycle := m.findCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(cycle, " -> "))
	}

	return &m, nil
}

// findCycle returns the groups forming a cycle in the wait-for graph or nil.
func (m *Model) findCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(m.groups))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case done:
			return false
		case inProgress:
			for i, n := range path {
				if n == name {
					cycle = append(append([]string{}, path[i:]...), name)
					break
				}
			}
			return true
		}

		state[name] = inProgress
		path = append(path, name)

		for _, dep := range m.groups[name].WaitFor {
			if visit(dep) {
				return true
			}
		}

		path = path[:len(path)-1]
		state[name] = done

		return false
	}

	for _, name := range m.order {
		if visit(name) {
			return cycle
		}
	}

	return nil
}

// Groups returns the group names in configuration order.
func (m *Model) Groups() []string {
	return append([]string(nil), m.order...)
}

// Group returns the group with the given name.
func (m *Model) Group(name string) (*Group, bool) {
	g, ok := m.groups[name]
	return g, ok
}

// GroupOf returns the group the login is member of.
func (m *Model) GroupOf(login string) (string, bool) {
	g, ok := m.loginGroups[login]
	return g, ok
}

// GroupsOf returns the deduplicated groups of logins, in order of their
// first occurrence. Logins that are not member of a group are ignored.
func (m *Model) GroupsOf(logins []string) []string {
	var result []string
	seen := map[string]struct{}{}

	for _, login := range logins {
		g, ok := m.loginGroups[login]
		if !ok {
			continue
		}

		if _, exists := seen[g]; exists {
			continue
		}

		seen[g] = struct{}{}
		result = append(result, g)
	}

	return result
}

// ReviewersByGroup partitions logins by their group.
func (m *Model) ReviewersByGroup(logins []string) map[string][]string {
	result := map[string][]string{}

	for _, login := range logins {
		if g, ok := m.loginGroups[login]; ok {
			result[g] = append(result[g], login)
		}
	}

	return result
}

// ShouldWait returns true if the review state of group must not be
// considered complete because of pending review requests.
// With IncludeSameGroup it is true when one of requestedReviewers belongs to
// group. With IncludeDependencies it is true when one of requestedReviewers
// belongs to a group that group waits for.
func (m *Model) ShouldWait(group string, requestedReviewers []string, opts WaitOptions) bool {
	g, exists := m.groups[group]
	if !exists {
		return false
	}

	for _, reviewerGroup := range m.GroupsOf(requestedReviewers) {
		if opts.IncludeSameGroup && reviewerGroup == group {
			return true
		}

		if opts.IncludeDependencies {
			for _, dep := range g.WaitFor {
				if dep == reviewerGroup {
					return true
				}
			}
		}
	}

	return false
}

// String returns a short description of the configured groups.
func (m *Model) String() string {
	var sb strings.Builder

	names := m.Groups()
	sort.Strings(names)

	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}

		g := m.groups[name]
		fmt.Fprintf(&sb, "%s(%d members", name, len(g.Members))
		if len(g.WaitFor) > 0 {
			fmt.Fprintf(&sb, ", waits for: %s", strings.Join(g.WaitFor, "|"))
		}
		sb.WriteString(")")
	}

	return sb.String()
}
