// Package titlerule checks pull request titles against configured regular
// expressions.
//
// Rules are evaluated in order, evaluation stops at the first rule whose
// pattern does not match. A rule can report its result as commit status
// and can derive an info line for the options comment from the submatches
// of its pattern, e.g. a link to the issue referenced in the title.
package titlerule

import (
	"fmt"
	"regexp"

	"github.com/simplesurance/reviewflow/internal/commentbody"
)

// LintStatusContext is the context of the commit status that reports if
// the title passed all rules.
const LintStatusContext = "lint-pr"

const validDescription = "✓ Your PR is valid"

// Status states.
const (
	StateSuccess = "success"
	StateFailure = "failure"
)

// Definition is the configuration of a rule.
type Definition struct {
	Pattern string
	// Status is the context of the commit status that reports the result
	// of the rule, no status is created if it is empty.
	Status     string
	ErrorTitle string
	// IgnoreBots skips the rule for pull requests opened by bots.
	IgnoreBots bool
	// InfoTitle and InfoURL are expanded with the submatches of Pattern,
	// e.g. "${1}".
	InfoTitle string
	InfoURL   string
}

// Rule is a compiled Definition.
type Rule struct {
	pattern    *regexp.Regexp
	status     string
	errorTitle string
	ignoreBots bool
	infoTitle  string
	infoURL    string
}

// Compile compiles the patterns of defs.
func Compile(defs []Definition) ([]*Rule, error) {
	result := make([]*Rule, 0, len(defs))

	for i, def := range defs {
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		if def.ErrorTitle == "" {
			return nil, fmt.Errorf("rule %d: error title is empty", i)
		}

		result = append(result, &Rule{
			pattern:    re,
			status:     def.Status,
			errorTitle: def.ErrorTitle,
			ignoreBots: def.IgnoreBots,
			infoTitle:  def.InfoTitle,
			infoURL:    def.InfoURL,
		})
	}

	return result, nil
}

// Status is a commit status that reports the result of a rule.
type Status struct {
	Context     string
	State       string
	Description string
}

// Result is the outcome of checking a title.
type Result struct {
	// Statuses contains the statuses of the evaluated rules, followed by
	// the LintStatusContext status.
	Statuses []*Status
	// Infos are the info lines derived from the matching rules, it is
	// never nil.
	Infos []commentbody.Info
	// Failed is the ErrorTitle of the first rule that did not match, empty
	// if the title is valid.
	Failed string
}

// Valid returns true if the title matched all applicable rules.
func (r *Result) Valid() bool {
	return r.Failed == ""
}

// expand returns the template expanded with the submatches of the rule.
// If the pattern has capture groups and the first one is empty, an empty
// string is returned. This allows alternatives like "[no issue]" that do
// not produce an info.
func (r *Rule) expand(template string, title string, match []int) string {
	if template == "" {
		return ""
	}

	if len(match) >= 4 && match[2] == match[3] {
		return ""
	}

	return string(r.pattern.ExpandString(nil, template, title, match))
}

// Check evaluates rules for a pull request title.
func Check(rules []*Rule, title string, authorIsBot bool) *Result {
	result := Result{Infos: []commentbody.Info{}}

	for _, rule := range rules {
		if rule.ignoreBots && authorIsBot {
			continue
		}

		match := rule.pattern.FindStringSubmatchIndex(title)
		if match == nil {
			if rule.status != "" {
				result.Statuses = append(result.Statuses, &Status{
					Context:     rule.status,
					State:       StateFailure,
					Description: rule.errorTitle,
				})
			}

			result.Failed = rule.errorTitle

			break
		}

		infoTitle := rule.expand(rule.infoTitle, title, match)
		infoURL := rule.expand(rule.infoURL, title, match)

		if rule.status != "" {
			desc := infoTitle
			if desc == "" {
				desc = validDescription
			}

			result.Statuses = append(result.Statuses, &Status{
				Context:     rule.status,
				State:       StateSuccess,
				Description: desc,
			})
		}

		if infoTitle != "" && infoURL != "" {
			result.Infos = append(result.Infos, commentbody.Info{Title: infoTitle, URL: infoURL})
		}
	}

	lint := Status{Context: LintStatusContext, State: StateSuccess, Description: validDescription}
	if !result.Valid() {
		lint.State = StateFailure
		lint.Description = result.Failed
	}
	result.Statuses = append(result.Statuses, &lint)

	return &result
}
