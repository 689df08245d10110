package pullrequest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v59/github"
	"github.com/itchyny/gojq"
)

// DefAutomationQuery matches pull requests created by renovate.
const DefAutomationQuery = `.head.ref | startswith("renovate/")`

// AutomationMatcher decides if a pull request was opened by a dependency
// update bot by evaluating a jq query on the JSON representation of the
// pull request. The query must return a single boolean.
type AutomationMatcher struct {
	query *gojq.Query
}

func NewAutomationMatcher(jqQuery string) (*AutomationMatcher, error) {
	if jqQuery == "" {
		jqQuery = DefAutomationQuery
	}

	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("parsing automation query failed: %w", err)
	}

	return &AutomationMatcher{query: query}, nil
}

func (m *AutomationMatcher) String() string {
	return m.query.String()
}

// Match evaluates the query for pr.
// A nil AutomationMatcher never matches.
func (m *AutomationMatcher) Match(ctx context.Context, pr *github.PullRequest) (bool, error) {
	if m == nil {
		return false, nil
	}

	b, err := json.Marshal(pr)
	if err != nil {
		return false, fmt.Errorf("marshaling pull request failed: %w", err)
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return false, fmt.Errorf("unmarshaling pull request failed: %w", err)
	}

	iter := m.query.RunWithContext(ctx, v)

	var result []any
	for {
		res, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := res.(error); isErr {
			return false, fmt.Errorf("query %q failed: %w", m.query, err)
		}

		result = append(result, res)
	}

	if len(result) != 1 {
		return false, fmt.Errorf("query %q returned %d results, expected 1", m.query, len(result))
	}

	val, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf("query %q returned non-bool result: %+v (%T)", m.query, result[0], result[0])
	}

	return val, nil
}

// Snapshot converts pr and evaluates the automation query for it.
func (m *AutomationMatcher) Snapshot(ctx context.Context, owner, repo string, pr *github.PullRequest) (*Snapshot, error) {
	s, err := FromGithub(owner, repo, pr)
	if err != nil {
		return nil, err
	}

	isAutomation, err := m.Match(ctx, pr)
	if err != nil {
		return nil, err
	}

	s.IsAutomation = isAutomation

	return s, nil
}
