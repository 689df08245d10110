// Package commitnotes extracts the breaking change notes from
// conventional commit messages.
package commitnotes

import (
	"regexp"
	"strings"
)

var breakingChangeRe = regexp.MustCompile(`^BREAKING[ -]CHANGE:\s*(.*)$`)

// Commit is a commit of a pull request.
type Commit struct {
	SHA     string
	Message string
}

// Note is a breaking change note of a commit.
type Note struct {
	SHA  string
	Text string
}

// BreakingChanges returns the texts of the "BREAKING CHANGE:" and
// "BREAKING-CHANGE:" footers of a commit message.
// The header line is ignored. A note ends at an empty line or at the next
// footer, continuation lines are joined with a space.
func BreakingChanges(message string) []string {
	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil
	}

	var result []string
	var cur []string

	flush := func() {
		if len(cur) > 0 {
			result = append(result, strings.Join(cur, " "))
		}
		cur = nil
	}

	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)

		if m := breakingChangeRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = []string{strings.TrimSpace(m[1])}
			continue
		}

		if cur == nil {
			continue
		}

		if line == "" {
			flush()
			continue
		}

		cur = append(cur, line)
	}

	flush()

	return result
}

// Collect returns the breaking change notes of commits in commit order.
func Collect(commits []*Commit) []*Note {
	var result []*Note

	for _, c := range commits {
		for _, text := range BreakingChanges(c.Message) {
			if text == "" {
				continue
			}

			result = append(result, &Note{SHA: c.SHA, Text: text})
		}
	}

	return result
}

// Render returns the content of the commit notes section for notes.
// An empty string is returned if notes is empty.
func Render(notes []*Note) string {
	if len(notes) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("Breaking Changes:\n")
	for _, n := range notes {
		sb.WriteString("- " + n.Text + " (" + n.SHA + ")\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}
