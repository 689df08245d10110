// Package commentbody reads and writes the options comment reviewflow
// maintains on every pull request.
//
// The comment consists of up to three sections in fixed order:
//
//	#### Infos:
//	#### Commits Notes:
//	#### Options:
//
// The options section is always present and always last. It contains a
// checkbox per option, the option key is stored in an HTML comment next to
// the checkbox.
package commentbody

import (
	"regexp"
	"strings"
)

const (
	headerInfos       = "#### Infos:"
	headerCommitNotes = "#### Commits Notes:"
	headerOptions     = "#### Options:"
)

// PlaceholderBody is the body of an options comment that was created but
// not filled yet.
const PlaceholderBody = "This will be auto filled by reviewflow."

var (
	sectionsRe    = regexp.MustCompile(`(?s)^\s*(?:#### Infos:(.*?))?(?:#### Commits Notes:(.*?))?(?:#### Options:(.*))?$`)
	commitNotesRe = regexp.MustCompile(`(?s)^.*#### Commits Notes:(.*)#### Options:.*$`)
	infoLinkRe    = regexp.MustCompile(`^\[(.*)\]\((.*)\)$`)
)

// Info is a line of the infos section, rendered as link when URL is set.
type Info struct {
	Title string
	URL   string
}

// Content is the decoded content of an options comment.
type Content struct {
	Infos       []Info
	CommitNotes string
	Options     Options
}

type sections struct {
	infos       string
	commitNotes string
	options     string
}

func splitSections(body string) *sections {
	m := sectionsRe.FindStringSubmatch(body)
	if m == nil {
		return &sections{}
	}

	return &sections{infos: m[1], commitNotes: m[2], options: m[3]}
}

// ParseCommitNotes returns the trimmed content of the commit notes
// section or an empty string.
func ParseCommitNotes(body string) string {
	m := commitNotesRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}

	return strings.TrimSpace(m[1])
}

func parseInfos(section string) []Info {
	var result []Info

	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := infoLinkRe.FindStringSubmatch(line); m != nil {
			result = append(result, Info{Title: m[1], URL: m[2]})
			continue
		}

		result = append(result, Info{Title: line})
	}

	return result
}

func renderInfos(infos []Info) string {
	lines := make([]string, 0, len(infos))

	for _, info := range infos {
		if info.URL != "" {
			lines = append(lines, "["+info.Title+"]("+info.URL+")")
			continue
		}

		lines = append(lines, info.Title)
	}

	return strings.Join(lines, "\n")
}

// Decode parses a comment body. Options missing in body are taken from
// defaults.
func Decode(body string, defaults Options) *Content {
	return &Content{
		Infos:       parseInfos(splitSections(body).infos),
		CommitNotes: ParseCommitNotes(body),
		Options:     ParseOptions(body, defaults),
	}
}

// Render renders c in canonical form. Empty infos and commit notes
// sections are omitted.
func Render(c *Content) string {
	var sb strings.Builder

	if len(c.Infos) > 0 {
		sb.WriteString(headerInfos + "\n\n")
		sb.WriteString(renderInfos(c.Infos))
		sb.WriteString("\n\n")
	}

	if c.CommitNotes != "" {
		sb.WriteString(headerCommitNotes + "\n\n")
		sb.WriteString(c.CommitNotes)
		sb.WriteString("\n\n")
	}

	sb.WriteString(headerOptions + "\n")
	sb.WriteString(RenderOptions(c.Options))

	return sb.String()
}

// Encode is an alias for Render.
func Encode(c *Content) string {
	return Render(c)
}

// DefaultBody returns the initial body of an options comment.
func DefaultBody(defaults Options, infos []Info) string {
	return Render(&Content{Infos: infos, Options: defaults.Clone()})
}

// UpdateOptions applies update to the options in body and returns the
// resulting options and the re-rendered body.
func UpdateOptions(body string, defaults, update Options) (Options, string) {
	c := Decode(body, defaults)
	c.Options = c.Options.Merge(update)

	return c.Options, Render(c)
}

// UpdateInfos replaces the infos section of body. If infos is nil the
// existing infos are kept, an empty slice removes the section.
func UpdateInfos(body string, infos []Info) string {
	c := Decode(body, nil)
	if infos != nil {
		c.Infos = infos
	}

	return Render(c)
}

// UpdateCommitNotes replaces the commit notes section of body. An empty
// notes string removes the section.
func UpdateCommitNotes(body, notes string) string {
	c := Decode(body, nil)
	c.CommitNotes = strings.TrimSpace(notes)

	return Render(c)
}

// IsOptionsComment returns true if body is an options comment or its
// placeholder.
func IsOptionsComment(body string) bool {
	body = normalizeLineEndings(body)

	if strings.TrimSpace(body) == PlaceholderBody {
		return true
	}

	return strings.Contains(body, headerOptions) && strings.Contains(body, marker(OptionAutoMerge))
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// Changed returns true if rendered differs from the stored comment body.
// Line endings are normalized before comparison.
func Changed(stored, rendered string) bool {
	return normalizeLineEndings(stored) != normalizeLineEndings(rendered)
}
